package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/aliaff/internal/domain"
)

// errNotFoundPage marks a regional page that rendered the site's 404 template.
var errNotFoundPage = errors.New("product page not found")

// ScrapeSource fetches product pages directly and reads their markup.
type ScrapeSource struct {
	hosts      []string
	userAgent  string
	filter     TitleFilter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScrapeSource creates a scrape source over the given regional hosts,
// tried in order.
func NewScrapeSource(hosts []string, timeout time.Duration, userAgent string, filter TitleFilter, logger *slog.Logger) *ScrapeSource {
	return &ScrapeSource{
		hosts:      hosts,
		userAgent:  userAgent,
		filter:     filter,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Method returns FetchMethodScrape.
func (s *ScrapeSource) Method() domain.FetchMethod { return domain.FetchMethodScrape }

// Fetch tries each regional page variant until one yields a product.
func (s *ScrapeSource) Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error) {
	lastErr := ErrRejected
	for _, host := range s.hosts {
		host = strings.TrimRight(strings.TrimSpace(host), "/")
		if host == "" {
			continue
		}
		pageURL := host + "/item/" + productID + ".html"

		p, err := s.scrapePage(ctx, pageURL)
		if err == nil {
			return p, nil
		}
		s.logger.Debug("scrape variant failed", "url", pageURL, "error", err)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *ScrapeSource) scrapePage(ctx context.Context, pageURL string) (*domain.ProductPreview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	if bytes.Contains(body, []byte("error/404")) {
		return nil, errNotFoundPage
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	return s.previewFromDocument(doc)
}

func (s *ScrapeSource) previewFromDocument(doc *goquery.Document) (*domain.ProductPreview, error) {
	pageTitle := cleanPageTitle(doc.Find("title").First().Text())

	var item *itemDetail
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		item = extractItem(sel.Text())
		return item == nil
	})

	if item != nil {
		title := item.Title
		if title == "" {
			title = pageTitle
		}
		if title != "" {
			price := item.Price
			if price == "" {
				price = domain.PlaceholderPrice
			}
			return &domain.ProductPreview{
				Title:    title,
				ImageURL: item.Image,
				Price:    price,
			}, nil
		}
	}

	title := cleanPageTitle(metaContent(doc, "og:title"))
	if title == "" {
		title = pageTitle
	}
	if !s.filter.Accept(title) {
		return nil, fmt.Errorf("page title %q: %w", title, ErrRejected)
	}
	return &domain.ProductPreview{
		Title:    title,
		ImageURL: metaContent(doc, "og:image"),
		Price:    domain.PlaceholderPrice,
	}, nil
}

func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(`meta[property="` + property + `"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`meta[name="` + property + `"]`).First()
	}
	return strings.TrimSpace(sel.AttrOr("content", ""))
}

func cleanPageTitle(title string) string {
	title = brandSuffixPattern.ReplaceAllString(strings.TrimSpace(title), "")
	return strings.TrimSpace(pipeSuffixPattern.ReplaceAllString(title, ""))
}
