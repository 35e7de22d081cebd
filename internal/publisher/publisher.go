// Package publisher delivers formatted posts to Telegram channels.
package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
)

var dataURIPattern = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// Message is one outbound channel post. At most one of PhotoURL and Photo is set.
type Message struct {
	ChatID   string
	Text     string
	PhotoURL string
	Photo    []byte
}

// HasPhoto reports whether the message is sent as a captioned photo.
func (m Message) HasPhoto() bool {
	return m.PhotoURL != "" || len(m.Photo) > 0
}

// Sender pushes a single message using a bot token.
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

// Publisher resolves target channels and delivers through a Sender.
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// New creates a new Publisher.
func New(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{
		sender: sender,
		logger: logger,
	}
}

// Deliver sends text, with image as a photo when present, to every channel
// that choice selects from creds. It stops at the first failed channel and
// returns the number of channels published to.
func (p *Publisher) Deliver(ctx context.Context, creds *domain.Credentials, choice domain.ChannelChoice, text, image string) (int, error) {
	if !creds.HasToken() {
		return 0, domain.ErrMissingBotToken
	}

	channels := ResolveChannels(creds, choice)
	if len(channels) == 0 {
		return 0, domain.ErrNoChannels
	}

	tmpl := Message{Text: text}
	if image = strings.TrimSpace(image); image != "" {
		if strings.HasPrefix(image, "data:image") {
			data, err := DecodeDataURI(image)
			if err != nil {
				return 0, err
			}
			tmpl.Photo = data
		} else {
			tmpl.PhotoURL = image
		}
	}

	token := strings.TrimSpace(creds.TelegramToken)
	for i, ch := range channels {
		msg := tmpl
		msg.ChatID = ch
		if err := p.sender.Send(ctx, token, msg); err != nil {
			p.logger.Error("channel delivery failed", "channel", ch, "error", err)
			return i, domain.NewDeliveryError(ch, "send", err)
		}
		p.logger.Info("published to channel", "channel", ch, "photo", msg.HasPhoto())
	}

	return len(channels), nil
}

// FallbackCredentials returns the environment-level delivery credentials.
func FallbackCredentials(cfg config.TelegramConfig) *domain.Credentials {
	return &domain.Credentials{
		TelegramToken: cfg.BotToken,
		ChannelID:     cfg.ChannelID,
		ChannelID2:    cfg.ChannelID2,
	}
}

// FormatChannelID normalizes a channel reference to "@name" or a numeric
// "-100..." id. Accepted forms are t.me links, bare names and prefixed handles.
func FormatChannelID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if i := strings.LastIndex(id, "t.me/"); i >= 0 {
		name := id[i+len("t.me/"):]
		if j := strings.IndexAny(name, "/?"); j >= 0 {
			name = name[:j]
		}
		id = "@" + name
	}
	if !strings.HasPrefix(id, "@") && !strings.HasPrefix(id, "-") {
		id = "@" + id
	}
	return id
}

// ResolveChannels returns the normalized channel ids choice selects.
// An unknown choice selects both channels.
func ResolveChannels(creds *domain.Credentials, choice domain.ChannelChoice) []string {
	if creds == nil {
		return nil
	}
	if !choice.Valid() {
		choice = domain.ChannelBoth
	}

	var ids []string
	if choice == domain.ChannelFirst || choice == domain.ChannelBoth {
		ids = append(ids, creds.ChannelID)
	}
	if choice == domain.ChannelSecond || choice == domain.ChannelBoth {
		ids = append(ids, creds.ChannelID2)
	}

	var channels []string
	seen := make(map[string]bool)
	for _, id := range ids {
		ch := FormatChannelID(id)
		if ch == "" || ch == "@" || seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	return channels
}

// DecodeDataURI decodes a base64 "data:image/...;base64," payload.
func DecodeDataURI(uri string) ([]byte, error) {
	loc := dataURIPattern.FindStringIndex(uri)
	if loc == nil {
		return nil, fmt.Errorf("%w: not a base64 image data URI", domain.ErrInvalidImage)
	}
	payload := strings.TrimSpace(uri[loc[1]:])

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidImage)
	}
	return data, nil
}
