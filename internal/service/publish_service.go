package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/publisher"
)

// ChannelDeliverer delivers a message to the channels selected from creds.
type ChannelDeliverer interface {
	Deliver(ctx context.Context, creds *domain.Credentials, choice domain.ChannelChoice, text, image string) (int, error)
}

// PublishRequest is an immediate product post.
type PublishRequest struct {
	Title         string
	Price         string
	OriginalPrice string
	Discount      string
	Link          string
	Coupon        string
	Image         string
	// CustomMessage replaces the formatted caption when set.
	CustomMessage string
	// Template overrides the configured caption phrases.
	Template    *config.MessageConfig
	Credentials *domain.Credentials
}

// PublishService publishes posts immediately.
type PublishService struct {
	deliverer ChannelDeliverer
	fallback  *domain.Credentials
	template  config.MessageConfig
	logger    *slog.Logger
}

// NewPublishService creates a new publish service. fallback holds the
// environment-level credentials merged under request credentials.
func NewPublishService(
	deliverer ChannelDeliverer,
	fallback *domain.Credentials,
	template config.MessageConfig,
	logger *slog.Logger,
) *PublishService {
	return &PublishService{
		deliverer: deliverer,
		fallback:  fallback,
		template:  template,
		logger:    logger,
	}
}

// Publish formats a product post and sends it to the selected channels.
// It returns the number of channels published to.
func (s *PublishService) Publish(ctx context.Context, req PublishRequest) (int, error) {
	text := strings.TrimSpace(req.CustomMessage)
	if text == "" {
		tmpl := s.template
		if req.Template != nil {
			tmpl = *req.Template
		}
		text = publisher.FormatDeal(publisher.DealMessage{
			Title:         req.Title,
			Price:         req.Price,
			OriginalPrice: req.OriginalPrice,
			Discount:      req.Discount,
			Link:          req.Link,
			Coupon:        req.Coupon,
		}, tmpl)
	}

	return s.send(ctx, req.Credentials, text, req.Image)
}

// PublishCollection sends a preformatted message to the selected channels.
func (s *PublishService) PublishCollection(ctx context.Context, message, image string, creds *domain.Credentials) (int, error) {
	return s.send(ctx, creds, message, image)
}

func (s *PublishService) send(ctx context.Context, reqCreds *domain.Credentials, text, image string) (int, error) {
	creds := MergeCredentials(reqCreds, s.fallback)

	choice := creds.ChannelChoice
	if !choice.Valid() {
		choice = domain.ChannelFirst
	}

	n, err := s.deliverer.Deliver(ctx, creds, choice, text, image)
	if err != nil {
		return n, err
	}

	s.logger.Info("post published", "channels", n, "channel_choice", choice)
	return n, nil
}

// MergeCredentials fills every empty field of req from fallback. The result
// is a new value; neither input is modified.
func MergeCredentials(req, fallback *domain.Credentials) *domain.Credentials {
	out := req.Clone()
	if out == nil {
		out = &domain.Credentials{}
	}
	if fallback == nil {
		return out
	}

	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&out.TelegramToken, fallback.TelegramToken)
	fill(&out.ChannelID, fallback.ChannelID)
	fill(&out.ChannelID2, fallback.ChannelID2)
	fill(&out.Cookie, fallback.Cookie)
	if out.ChannelChoice == "" {
		out.ChannelChoice = fallback.ChannelChoice
	}
	return out
}
