// Package aliexpress is a client for the AliExpress affiliate open platform.
package aliexpress

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/iconidentify/aliaff/internal/config"
)

const methodProductDetail = "aliexpress.affiliate.productdetail.get"

var (
	// ErrNotConfigured is returned when the app key or secret is missing.
	ErrNotConfigured = errors.New("aliexpress: app key and secret are required")

	// ErrNoProduct is returned when the API answered without a product record.
	ErrNoProduct = errors.New("aliexpress: no product in response")
)

// APIError is an error envelope returned by the open platform.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aliexpress api error %s: %s", e.Code, e.Msg)
}

// HTTPError is a non-200 response from the open platform.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Product is the subset of the product detail record the service uses.
type Product struct {
	ID            string
	Title         string
	ImageURL      string
	SalePrice     string
	OriginalPrice string
	Discount      string
	Currency      string
	ShopName      string
	Rating        string
	Orders        string
	DetailURL     string
	PromotionLink string
}

// Client calls the signed affiliate API.
type Client struct {
	appKey     string
	appSecret  string
	endpoint   string
	currency   string
	language   string
	trackingID string
	callDelay  time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a new affiliate API client.
func NewClient(cfg config.AliExpressConfig, logger *slog.Logger) *Client {
	return &Client{
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		endpoint:   cfg.Endpoint,
		currency:   cfg.Currency,
		language:   cfg.Language,
		trackingID: cfg.TrackingID,
		callDelay:  cfg.CallDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Configured reports whether the client has credentials to sign requests.
func (c *Client) Configured() bool {
	return c.appKey != "" && c.appSecret != ""
}

// Sign computes the md5 request signature: the secret, then every
// key and value in key order, then the secret again, upper-case hex.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ProductDetail looks up a single product by ID.
func (c *Client) ProductDetail(ctx context.Context, productID string) (*Product, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	// The platform throttles bursts from one app key.
	if c.callDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.callDelay):
		}
	}

	body, err := retry.DoWithData(
		func() ([]byte, error) {
			return c.call(ctx, methodProductDetail, map[string]string{
				"product_ids":     productID,
				"target_currency": c.currency,
				"target_language": c.language,
				"tracking_id":     c.trackingID,
			})
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying affiliate API call", "attempt", n+1, "product_id", productID, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	return parseProductDetail(body)
}

func (c *Client) call(ctx context.Context, method string, extra map[string]string) ([]byte, error) {
	params := map[string]string{
		"method":      method,
		"app_key":     c.appKey,
		"sign_method": "md5",
		"timestamp":   strconv.FormatInt(c.now().UnixMilli(), 10),
		"format":      "json",
		"v":           "2.0",
	}
	for k, v := range extra {
		params[k] = v
	}
	params["sign"] = Sign(params, c.appSecret)

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: c.endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// isRetryableError returns true for transient failures.
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}

type detailEnvelope struct {
	Response *struct {
		RespResult struct {
			RespCode int    `json:"resp_code"`
			RespMsg  string `json:"resp_msg"`
			Result   struct {
				Products struct {
					Product json.RawMessage `json:"product"`
				} `json:"products"`
			} `json:"result"`
		} `json:"resp_result"`
	} `json:"aliexpress_affiliate_productdetail_get_response"`
	ErrorResponse *struct {
		Code flexString `json:"code"`
		Msg  string     `json:"msg"`
	} `json:"error_response"`
}

type productRecord struct {
	ProductID            flexString `json:"product_id"`
	ProductTitle         string     `json:"product_title"`
	ProductMainImageURL  string     `json:"product_main_image_url"`
	ProductSmallImageURLs struct {
		String []string `json:"string"`
	} `json:"product_small_image_urls"`
	TargetSalePrice         flexString `json:"target_sale_price"`
	TargetOriginalPrice     flexString `json:"target_original_price"`
	TargetSalePriceCurrency string     `json:"target_sale_price_currency"`
	Discount                flexString `json:"discount"`
	ShopTitle               string     `json:"shop_title"`
	EvaluateRate            flexString `json:"evaluate_rate"`
	LastestVolume           flexString `json:"lastest_volume"`
	ProductDetailURL        string     `json:"product_detail_url"`
	PromotionLink           string     `json:"promotion_link"`
}

func parseProductDetail(body []byte) (*Product, error) {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.ErrorResponse != nil {
		return nil, &APIError{Code: string(env.ErrorResponse.Code), Msg: env.ErrorResponse.Msg}
	}
	if env.Response == nil {
		return nil, ErrNoProduct
	}

	raw := bytes.TrimSpace(env.Response.RespResult.Result.Products.Product)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoProduct
	}

	// product is an array for multi-id lookups and a bare object otherwise
	var rec productRecord
	if raw[0] == '[' {
		var recs []productRecord
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
		if len(recs) == 0 {
			return nil, ErrNoProduct
		}
		rec = recs[0]
	} else if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}

	image := rec.ProductMainImageURL
	if image == "" && len(rec.ProductSmallImageURLs.String) > 0 {
		image = rec.ProductSmallImageURLs.String[0]
	}
	currency := rec.TargetSalePriceCurrency
	if currency == "" {
		currency = "USD"
	}

	return &Product{
		ID:            string(rec.ProductID),
		Title:         strings.TrimSpace(rec.ProductTitle),
		ImageURL:      image,
		SalePrice:     string(rec.TargetSalePrice),
		OriginalPrice: string(rec.TargetOriginalPrice),
		Discount:      string(rec.Discount),
		Currency:      currency,
		ShopName:      rec.ShopTitle,
		Rating:        string(rec.EvaluateRate),
		Orders:        string(rec.LastestVolume),
		DetailURL:     rec.ProductDetailURL,
		PromotionLink: rec.PromotionLink,
	}, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}
