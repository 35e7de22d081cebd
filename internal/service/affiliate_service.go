package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/promo"
)

// IdentifierResolver turns user input into a product id.
type IdentifierResolver interface {
	Resolve(ctx context.Context, input string) domain.ResolvedIdentifier
}

// PreviewFetcher produces a display preview for a product id.
type PreviewFetcher interface {
	Fetch(ctx context.Context, productID string) domain.ProductPreview
}

// LinkGenerator produces the promotion link set for a product id.
type LinkGenerator interface {
	Generate(ctx context.Context, cookie, productID string) domain.PromotionLinkSet
}

// AffiliateService turns a pasted link into a preview and promotion links.
type AffiliateService struct {
	resolver      IdentifierResolver
	previews      PreviewFetcher
	links         LinkGenerator
	defaultCookie string
	logger        *slog.Logger
}

// NewAffiliateService creates a new affiliate service. defaultCookie is used
// when a request carries no cookie of its own.
func NewAffiliateService(
	resolver IdentifierResolver,
	previews PreviewFetcher,
	links LinkGenerator,
	defaultCookie string,
	logger *slog.Logger,
) *AffiliateService {
	return &AffiliateService{
		resolver:      resolver,
		previews:      previews,
		links:         links,
		defaultCookie: defaultCookie,
		logger:        logger,
	}
}

// Affiliate resolves input, then builds the preview and the promotion links
// concurrently.
func (s *AffiliateService) Affiliate(ctx context.Context, input, cookie string) (*domain.AffiliateResult, error) {
	start := time.Now()

	resolved := s.resolver.Resolve(ctx, input)
	if !resolved.HasID() {
		s.logger.Info("no product id in input", "input", input, "final_url", resolved.FinalURL)
		return nil, domain.ErrProductIDNotFound
	}

	cookie = promo.NormalizeCookie(cookie)
	if cookie == "" {
		cookie = promo.NormalizeCookie(s.defaultCookie)
	}
	if cookie == "" {
		return nil, domain.ErrMissingCookie
	}

	result := &domain.AffiliateResult{ProductID: resolved.ID}

	// neither side returns an error; each degrades on its own
	var g errgroup.Group
	g.Go(func() error {
		result.Preview = s.previews.Fetch(ctx, resolved.ID)
		return nil
	})
	g.Go(func() error {
		result.Aff = s.links.Generate(ctx, cookie, resolved.ID)
		return nil
	})
	g.Wait()

	s.logger.Info("affiliate links generated",
		"product_id", resolved.ID,
		"links", result.Aff.Count(),
		"fetch_method", result.Preview.FetchMethod,
		"duration", time.Since(start).String(),
	)
	return result, nil
}
