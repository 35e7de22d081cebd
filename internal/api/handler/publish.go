package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/service"
)

// Publisher sends posts immediately.
type Publisher interface {
	Publish(ctx context.Context, req service.PublishRequest) (int, error)
	PublishCollection(ctx context.Context, message, image string, creds *domain.Credentials) (int, error)
}

// PublishHandler handles immediate publishing.
type PublishHandler struct {
	svc    Publisher
	logger *slog.Logger
}

// NewPublishHandler creates a new publish handler.
func NewPublishHandler(svc Publisher, logger *slog.Logger) *PublishHandler {
	return &PublishHandler{
		svc:    svc,
		logger: logger,
	}
}

// PublishRequest is the JSON request body for a product post.
type PublishRequest struct {
	Title         string              `json:"title"`
	Price         string              `json:"price"`
	OriginalPrice string              `json:"original_price,omitempty"`
	Discount      string              `json:"discount,omitempty"`
	Link          string              `json:"link"`
	Coupon        string              `json:"coupon,omitempty"`
	Image         string              `json:"image,omitempty"`
	CustomMessage string              `json:"custom_message,omitempty"`
	Settings      *MessageSettings    `json:"settings,omitempty"`
	Credentials   *domain.Credentials `json:"credentials,omitempty"`
}

// MessageSettings overrides the configured caption phrases for one post.
type MessageSettings struct {
	Prefix     string `json:"prefix"`
	SalePrice  string `json:"sale_price"`
	LinkText   string `json:"link_text"`
	CouponText string `json:"coupon_text"`
	Footer     string `json:"footer"`
	BotLink    string `json:"bot_link"`
	Hashtags   string `json:"hashtags"`
}

func (s *MessageSettings) template() *config.MessageConfig {
	if s == nil {
		return nil
	}
	return &config.MessageConfig{
		Prefix:     s.Prefix,
		SalePrice:  s.SalePrice,
		LinkText:   s.LinkText,
		CouponText: s.CouponText,
		Footer:     s.Footer,
		BotLink:    s.BotLink,
		Hashtags:   s.Hashtags,
	}
}

// CollectionRequest is the JSON request body for a preformatted post.
type CollectionRequest struct {
	Message     string              `json:"message"`
	Image       string              `json:"image,omitempty"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
}

// PublishResponse reports how many channels received the post.
type PublishResponse struct {
	Channels int `json:"channels"`
}

// Publish handles POST /api/v1/publish.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CustomMessage) == "" && (req.Title == "" || req.Link == "") {
		writeError(w, http.StatusBadRequest, "title and link are required")
		return
	}

	n, err := h.svc.Publish(r.Context(), service.PublishRequest{
		Title:         req.Title,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Discount:      req.Discount,
		Link:          req.Link,
		Coupon:        req.Coupon,
		Image:         req.Image,
		CustomMessage: req.CustomMessage,
		Template:      req.Settings.template(),
		Credentials:   req.Credentials,
	})
	h.respond(w, n, err)
}

// PublishCollection handles POST /api/v1/publish-collection.
func (h *PublishHandler) PublishCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	n, err := h.svc.PublishCollection(r.Context(), req.Message, req.Image, req.Credentials)
	h.respond(w, n, err)
}

func (h *PublishHandler) respond(w http.ResponseWriter, n int, err error) {
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("publish failed", "published", n, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{Channels: n})
}
