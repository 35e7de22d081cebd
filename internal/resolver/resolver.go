// Package resolver turns raw user input into a canonical AliExpress product ID.
package resolver

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
)

var (
	numericInput = regexp.MustCompile(`^\d+$`)
	// 404 as its own token, so product IDs containing the digits do not match
	errorPage404 = regexp.MustCompile(`(^|[^0-9])404([^0-9]|$)`)
)

// Resolver follows redirect chains and extracts product IDs.
type Resolver struct {
	hopClient        *http.Client
	shortenerClient  *http.Client
	maxHops          int
	hopTimeout       time.Duration
	shortenerTimeout time.Duration
	shortenerHosts   []string
	userAgent        string
	logger           *slog.Logger
}

// New creates a new Resolver.
func New(cfg config.ResolverConfig, logger *slog.Logger) *Resolver {
	// Shortener chains sometimes end on hosts with broken certificates.
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // redirect chains end on misconfigured hosts
	}

	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = 10
	}

	return &Resolver{
		hopClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		shortenerClient:  &http.Client{Transport: transport},
		maxHops:          maxHops,
		hopTimeout:       cfg.HopTimeout,
		shortenerTimeout: cfg.ShortenerTimeout,
		shortenerHosts:   cfg.ShortenerHosts,
		userAgent:        cfg.UserAgent,
		logger:           logger,
	}
}

// Resolve returns the product ID for input. It never fails; an empty ID
// in the result means nothing could be extracted.
func (r *Resolver) Resolve(ctx context.Context, input string) domain.ResolvedIdentifier {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.ResolvedIdentifier{}
	}

	if numericInput.MatchString(input) {
		return domain.ResolvedIdentifier{ID: input}
	}

	if !strings.HasPrefix(strings.ToLower(input), "http") {
		input = "https://" + input
	}

	finalURL := r.FinalURL(ctx, input)
	id := ExtractProductID(finalURL)

	r.logger.Debug("resolved product link", "input", input, "final_url", finalURL, "product_id", id)

	return domain.ResolvedIdentifier{ID: id, FinalURL: finalURL}
}

// FinalURL chases redirects from start and returns the most useful URL seen.
func (r *Resolver) FinalURL(ctx context.Context, start string) string {
	current := start
	best := start

	if r.isShortener(start) {
		if landed, err := r.followAll(ctx, start); err != nil {
			r.logger.Warn("shortener redirect failed", "url", start, "error", err)
		} else {
			current = landed
			best = landed
		}
	}

	for hop := 0; hop < r.maxHops; hop++ {
		location, err := r.nextLocation(ctx, current)
		if err != nil {
			r.logger.Warn("redirect hop failed", "url", current, "hop", hop, "error", err)
			if best != start {
				return best
			}
			return current
		}
		if location == "" {
			return current
		}

		next := resolveRelativeURL(current, location)

		if hasProductSignal(next) {
			best = next
		}
		if isErrorPage(next) {
			r.logger.Debug("redirect reached error page", "url", next, "best_url", best)
			return best
		}

		current = next
	}

	return current
}

// nextLocation issues one non-following request and returns its Location header.
func (r *Resolver) nextLocation(ctx context.Context, target string) (string, error) {
	if r.hopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.hopTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.hopClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	// Error statuses still count when they carry a Location.
	return resp.Header.Get("Location"), nil
}

// followAll lets the HTTP client follow every redirect and returns where it landed.
func (r *Resolver) followAll(ctx context.Context, target string) (string, error) {
	if r.shortenerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.shortenerTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")

	resp, err := r.shortenerClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.Request.URL.String(), nil
}

func (r *Resolver) isShortener(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range r.shortenerHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && host == h {
			return true
		}
	}
	return false
}

func hasProductSignal(u string) bool {
	return strings.Contains(u, "productIds=") || strings.Contains(u, "/item/")
}

func isErrorPage(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	return strings.Contains(path, "/error/") || errorPage404.MatchString(path)
}

// resolveRelativeURL resolves ref against the URL it was served from.
func resolveRelativeURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
