package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/iconidentify/aliaff/internal/config"
)

// APIError is an unsuccessful Bot API response.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (HTTP %d): %s", e.Method, e.StatusCode, e.Description)
}

// BotAPISender delivers through the Telegram Bot HTTP API.
type BotAPISender struct {
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewBotAPISender creates a new Bot API sender.
func NewBotAPISender(cfg config.TelegramConfig, logger *slog.Logger) *BotAPISender {
	return &BotAPISender{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryDelay: time.Second,
		logger:     logger,
	}
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send posts msg as sendMessage or sendPhoto.
func (s *BotAPISender) Send(ctx context.Context, token string, msg Message) error {
	method := "sendMessage"
	if msg.HasPhoto() {
		method = "sendPhoto"
	}

	_, err := retry.DoWithData(
		func() (*botResponse, error) {
			return s.call(ctx, token, method, msg)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(s.retryDelay),
		retry.MaxJitter(s.retryDelay/4),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying telegram call", "method", method, "chat_id", msg.ChatID, "attempt", n+1, "error", err)
		}),
	)
	return err
}

func (s *BotAPISender) call(ctx context.Context, token, method string, msg Message) (*botResponse, error) {
	body, contentType, err := encodeRequest(msg)
	if err != nil {
		return nil, err
	}

	endpoint := s.baseURL + "/bot" + token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// the request URL embeds the token; report the method only
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out botResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}
	return &out, nil
}

// encodeRequest builds a JSON body, or a multipart body for uploaded photos.
func encodeRequest(msg Message) (io.Reader, string, error) {
	if len(msg.Photo) == 0 {
		payload := map[string]string{"chat_id": msg.ChatID}
		if msg.PhotoURL != "" {
			payload["photo"] = msg.PhotoURL
			payload["caption"] = msg.Text
		} else {
			payload["text"] = msg.Text
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", msg.ChatID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("caption", msg.Text); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(msg.Photo); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// isRetryableError returns true for rate limits and server errors.
func isRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
