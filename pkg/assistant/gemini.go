// Package assistant rewrites product text with a generative model and
// falls back to local rules when the model is unavailable.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
)

// Generator produces text for a prompt using a single API key.
type Generator interface {
	Generate(ctx context.Context, key, prompt string) (string, error)
}

// APIError is returned for a non-quota error response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API error (status %d, %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API error (status %d): %s", e.StatusCode, e.Message)
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(cfg config.AssistantConfig, logger *slog.Logger) *GeminiClient {
	return &GeminiClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryDelay: 500 * time.Millisecond,
		logger:     logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends prompt with key. Quota rejections are returned as
// domain.ErrQuotaExceeded and are not retried here; transport failures are.
func (c *GeminiClient) Generate(ctx context.Context, key, prompt string) (string, error) {
	if key == "" {
		return "", domain.ErrAssistantUnavailable
	}

	return retry.DoWithData(
		func() (string, error) {
			return c.generate(ctx, key, prompt)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(c.retryDelay),
		retry.MaxJitter(c.retryDelay/4),
		retry.RetryIf(isTransportError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying gemini call", "attempt", n+1, "error", err)
		}),
	)
}

func (c *GeminiClient) generate(ctx context.Context, key, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &transportError{err: err}
	}

	var genResp generateResponse
	decodeErr := json.Unmarshal(respBody, &genResp)

	if resp.StatusCode != http.StatusOK || genResp.Error != nil {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if genResp.Error != nil {
			apiErr.Status = genResp.Error.Status
			apiErr.Message = genResp.Error.Message
		}
		if isQuota(apiErr) {
			return "", fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, apiErr.Message)
		}
		return "", apiErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("unmarshal response: %w", decodeErr)
	}

	var b strings.Builder
	for _, cand := range genResp.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("empty response from gemini")
	}
	return text, nil
}

func isQuota(e *APIError) bool {
	if e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return "send request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
