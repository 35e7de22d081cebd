// Package promo generates affiliate promotion links for every campaign surface.
package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
)

const cookieField = "xman_t"

var cookieFieldPattern = regexp.MustCompile(cookieField + `=([^;]+)`)

// HTTPError is a non-2xx response from the link generation endpoint.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Generator requests promotion links from the portal link generator.
type Generator struct {
	endpoint   string
	trackID    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Generator.
func New(cfg config.PromoConfig, logger *slog.Logger) *Generator {
	trackID := cfg.TrackID
	if trackID == "" {
		trackID = "default"
	}
	return &Generator{
		endpoint:   cfg.Endpoint,
		trackID:    trackID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// NormalizeCookie reduces raw to the single auth field the endpoint needs,
// formatted as "xman_t=<value>;". Raw may be a full cookie header or the bare
// value. It returns "" for blank input.
func NormalizeCookie(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, cookieField+"=") {
		if m := cookieFieldPattern.FindStringSubmatch(raw); m != nil {
			return cookieField + "=" + m[1] + ";"
		}
		return raw
	}
	return cookieField + "=" + raw + ";"
}

// TargetURL returns the campaign page a promotion link for code should point at.
func TargetURL(code, productID string) string {
	switch code {
	case "561":
		return "https://www.aliexpress.com/ssr/300000512/BundleDeals2?disableNav=YES&pha_manifest=ssr&_immersiveMode=true&productIds=" + productID + "&aff_fcid="
	case "555":
		return "https://m.aliexpress.com/p/coin-index/index.html?_immersiveMode=true&from=syicon&productIds=" + productID + "&aff_fcid="
	}
	sourceType := code
	if code == "620" {
		sourceType = "620%26channel%3Dcoin"
	}
	return "https://star.aliexpress.com/share/share.htm?redirectUrl=https%3A%2F%2Fvi.aliexpress.com%2Fitem%2F" + productID + ".html%3FsourceType%3D" + sourceType
}

// slotResult is the outcome of one slot request.
type slotResult struct {
	slot domain.PromoSlot
	url  string
	err  error
}

// Generate requests a link for every source type concurrently and waits for
// all of them. A failed request leaves its slot null.
func (g *Generator) Generate(ctx context.Context, cookie, productID string) domain.PromotionLinkSet {
	cookie = NormalizeCookie(cookie)
	results := make([]slotResult, len(domain.SourceTypes))

	var eg errgroup.Group
	for i, st := range domain.SourceTypes {
		eg.Go(func() error {
			link, err := g.requestLink(ctx, cookie, TargetURL(st.Code, productID))
			results[i] = slotResult{slot: st.Slot, url: link, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	var set domain.PromotionLinkSet
	for _, r := range results {
		if r.err != nil {
			g.logger.Warn("promotion link failed", "slot", r.slot, "product_id", productID, "error", r.err)
			continue
		}
		set.Set(r.slot, r.url)
	}

	g.logger.Info("promotion links generated", "product_id", productID, "links", set.Count())
	return set
}

func (g *Generator) requestLink(ctx context.Context, cookie, targetURL string) (string, error) {
	q := url.Values{}
	q.Set("trackId", g.trackID)
	q.Set("targetUrl", targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{URL: g.endpoint, StatusCode: resp.StatusCode}
	}

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return linkFromData(body.Data), nil
}

// linkFromData reads the link out of the response data field, which is
// either an object or a bare string.
func linkFromData(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{':
		var obj struct {
			PromotionURL string `json:"promotionUrl"`
			CouponURL    string `json:"couponUrl"`
			URL          string `json:"url"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		for _, v := range []string{obj.PromotionURL, obj.CouponURL, obj.URL} {
			if v != "" {
				return v
			}
		}
	}
	return ""
}
