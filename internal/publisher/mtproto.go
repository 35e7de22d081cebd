package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/iconidentify/aliaff/internal/config"
)

// ErrChannelNotFound is returned when a channel handle resolves to no channel.
var ErrChannelNotFound = errors.New("channel not found")

// MTProtoSender delivers as a bot over MTProto. Each bot token gets its own
// session file, so repeated sends skip the bot login.
type MTProtoSender struct {
	appID      int
	appHash    string
	sessionDir string
	logger     *slog.Logger
}

// NewMTProtoSender creates a new MTProto sender.
func NewMTProtoSender(cfg config.TelegramConfig, logger *slog.Logger) *MTProtoSender {
	return &MTProtoSender{
		appID:      cfg.AppID,
		appHash:    cfg.AppHash,
		sessionDir: cfg.SessionDir,
		logger:     logger,
	}
}

// Send opens a client session for token and posts msg.
func (s *MTProtoSender) Send(ctx context.Context, token string, msg Message) error {
	if err := os.MkdirAll(s.sessionDir, 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	client := telegram.NewClient(s.appID, s.appHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: s.sessionPath(token)},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := client.Auth().Bot(ctx, token); err != nil {
				return fmt.Errorf("bot login: %w", err)
			}
			s.logger.Info("mtproto bot session created")
		}

		api := tg.NewClient(client)
		peer, err := resolvePeer(ctx, api, msg.ChatID)
		if err != nil {
			return err
		}

		if !msg.HasPhoto() {
			_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
				Peer:     peer,
				Message:  msg.Text,
				RandomID: rand.Int63(),
			})
			if err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			return nil
		}

		var media tg.InputMediaClass
		if len(msg.Photo) > 0 {
			file, err := uploader.NewUploader(api).FromBytes(ctx, "photo.jpg", msg.Photo)
			if err != nil {
				return fmt.Errorf("upload photo: %w", err)
			}
			media = &tg.InputMediaUploadedPhoto{File: file}
		} else {
			media = &tg.InputMediaPhotoExternal{URL: msg.PhotoURL}
		}

		_, err = api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     peer,
			Media:    media,
			Message:  msg.Text,
			RandomID: rand.Int63(),
		})
		if err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	})
}

func (s *MTProtoSender) sessionPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return filepath.Join(s.sessionDir, "bot-"+hex.EncodeToString(sum[:8])+".json")
}

// resolvePeer turns "@name" or "-100<id>" into an input peer.
func resolvePeer(ctx context.Context, api *tg.Client, chatID string) (tg.InputPeerClass, error) {
	if strings.HasPrefix(chatID, "-100") {
		id, err := strconv.ParseInt(strings.TrimPrefix(chatID, "-100"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse channel id %q: %w", chatID, err)
		}
		// bots may address channels they belong to with a zero access hash
		return &tg.InputPeerChannel{ChannelID: id}, nil
	}

	username := strings.TrimPrefix(chatID, "@")
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", chatID, err)
	}
	for _, chat := range resolved.GetChats() {
		if ch, ok := chat.(*tg.Channel); ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", chatID, ErrChannelNotFound)
}
