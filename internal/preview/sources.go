package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/pkg/aliexpress"
)

var (
	brandSuffixPattern       = regexp.MustCompile(`(?i) - AliExpress.*$`)
	brandNumberSuffixPattern = regexp.MustCompile(`(?i)\s*-\s*AliExpress\s*\d*$`)
	pipeSuffixPattern        = regexp.MustCompile(`\|.*$`)
)

// TitleFilter rejects titles that look like site boilerplate.
type TitleFilter struct {
	MinLength int
	Blocklist []string
}

// Accept reports whether title is long enough and free of blocked phrases.
func (f TitleFilter) Accept(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) <= f.MinLength {
		return false
	}
	for _, b := range f.Blocklist {
		if b = strings.TrimSpace(b); b != "" && strings.Contains(title, b) {
			return false
		}
	}
	return true
}

// ProductLookup is the structured affiliate API.
type ProductLookup interface {
	Configured() bool
	ProductDetail(ctx context.Context, productID string) (*aliexpress.Product, error)
}

// APISource reads the official affiliate API.
type APISource struct {
	api ProductLookup
}

// NewAPISource creates a source backed by the affiliate API.
func NewAPISource(api ProductLookup) *APISource {
	return &APISource{api: api}
}

// Method returns FetchMethodAPI.
func (s *APISource) Method() domain.FetchMethod { return domain.FetchMethodAPI }

// Fetch looks the product up and accepts it iff it has a title.
func (s *APISource) Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error) {
	if s.api == nil || !s.api.Configured() {
		return nil, domain.ErrMissingSigningSecret
	}

	p, err := s.api.ProductDetail(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product detail: %w", err)
	}
	if p.Title == "" {
		return nil, ErrRejected
	}

	price := p.SalePrice
	if price == "" {
		price = p.OriginalPrice
	}
	if price == "" {
		price = domain.PlaceholderPrice
	}

	return &domain.ProductPreview{
		Title:         p.Title,
		ImageURL:      p.ImageURL,
		Price:         price,
		OriginalPrice: p.OriginalPrice,
		Discount:      p.Discount,
		Currency:      p.Currency,
		ShopName:      p.ShopName,
		Rating:        p.Rating,
		Orders:        p.Orders,
	}, nil
}

// LinkPreviewSource reads the linkpreview.xyz meta tag API.
type LinkPreviewSource struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewLinkPreviewSource creates a linkpreview.xyz source.
func NewLinkPreviewSource(endpoint string, timeout time.Duration, userAgent string) *LinkPreviewSource {
	return &LinkPreviewSource{
		endpoint:   endpoint,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Method returns FetchMethodLinkPreviewXyz.
func (s *LinkPreviewSource) Method() domain.FetchMethod { return domain.FetchMethodLinkPreviewXyz }

// Fetch accepts any response that carries a title or an image.
func (s *LinkPreviewSource) Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error) {
	var resp struct {
		Title string `json:"title"`
		Image string `json:"image"`
	}
	target := "https://www.aliexpress.com/item/" + productID + ".html"
	if err := getJSON(ctx, s.httpClient, s.endpoint, target, s.userAgent, &resp); err != nil {
		return nil, err
	}
	if resp.Title == "" && resp.Image == "" {
		return nil, ErrRejected
	}

	title := brandSuffixPattern.ReplaceAllString(resp.Title, "")
	title = pipeSuffixPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(strings.Replace(title, "AliExpress", "", 1))
	if title == "" {
		title = domain.NewPlaceholderPreview(productID).Title
	}

	return &domain.ProductPreview{
		Title:    title,
		ImageURL: resp.Image,
		Price:    domain.PlaceholderPrice,
	}, nil
}

// MicrolinkSource reads the microlink embed metadata API.
type MicrolinkSource struct {
	endpoint   string
	filter     TitleFilter
	httpClient *http.Client
}

// NewMicrolinkSource creates a microlink source.
func NewMicrolinkSource(endpoint string, timeout time.Duration, filter TitleFilter) *MicrolinkSource {
	return &MicrolinkSource{
		endpoint:   endpoint,
		filter:     filter,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Method returns FetchMethodMicrolink.
func (s *MicrolinkSource) Method() domain.FetchMethod { return domain.FetchMethodMicrolink }

// Fetch accepts the response iff its cleaned title passes the title filter.
func (s *MicrolinkSource) Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error) {
	var resp struct {
		Status string `json:"status"`
		Data   *struct {
			Title string `json:"title"`
			Image *struct {
				URL string `json:"url"`
			} `json:"image"`
		} `json:"data"`
	}
	target := "https://m.aliexpress.com/item/" + productID + ".html"
	if err := getJSON(ctx, s.httpClient, s.endpoint, target, "", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Data == nil {
		return nil, fmt.Errorf("microlink status %q: %w", resp.Status, ErrRejected)
	}

	title := brandSuffixPattern.ReplaceAllString(resp.Data.Title, "")
	title = strings.TrimSpace(brandNumberSuffixPattern.ReplaceAllString(title, ""))
	if !s.filter.Accept(title) {
		return nil, fmt.Errorf("title %q: %w", title, ErrRejected)
	}

	p := &domain.ProductPreview{
		Title: title,
		Price: domain.PlaceholderPrice,
	}
	if resp.Data.Image != nil {
		p.ImageURL = resp.Data.Image.URL
	}
	return p, nil
}

// getJSON requests endpoint?url=target and decodes the JSON response into v.
func getJSON(ctx context.Context, client *http.Client, endpoint, target, userAgent string, v any) error {
	q := url.Values{}
	q.Set("url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
