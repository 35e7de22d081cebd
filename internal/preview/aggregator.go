// Package preview builds product previews from an ordered list of data sources.
package preview

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
)

// ErrRejected is returned by a source whose response failed its quality check.
var ErrRejected = errors.New("preview: result rejected")

// Source is one upstream that can describe a product.
type Source interface {
	// Method identifies the source in the preview's audit trail.
	Method() domain.FetchMethod
	// Fetch returns an acceptable preview or an error.
	Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error)
}

// Aggregator tries sources in order and returns the first acceptable preview.
type Aggregator struct {
	sources []Source
	logger  *slog.Logger
}

// NewAggregator creates an aggregator over sources, tried in the given order.
func NewAggregator(logger *slog.Logger, sources ...Source) *Aggregator {
	return &Aggregator{
		sources: sources,
		logger:  logger,
	}
}

// New creates the default aggregator: affiliate API, linkpreview.xyz,
// microlink, then a scrape of the regional product pages.
func New(cfg config.PreviewConfig, api ProductLookup, logger *slog.Logger) *Aggregator {
	filter := TitleFilter{MinLength: cfg.TitleMinLength, Blocklist: cfg.TitleBlocklist}
	return NewAggregator(logger,
		NewAPISource(api),
		NewLinkPreviewSource(cfg.LinkPreviewURL, cfg.LinkPreviewTimeout, cfg.UserAgent),
		NewMicrolinkSource(cfg.MicrolinkURL, cfg.MicrolinkTimeout, filter),
		NewScrapeSource(cfg.ScrapeHosts, cfg.ScrapeTimeout, cfg.UserAgent, filter, logger),
	)
}

// Fetch returns a preview for productID. It never fails; when every source
// fails the placeholder preview is returned.
func (a *Aggregator) Fetch(ctx context.Context, productID string) domain.ProductPreview {
	for _, src := range a.sources {
		if ctx.Err() != nil {
			break
		}

		p, err := src.Fetch(ctx, productID)
		if err != nil {
			a.logger.Debug("preview source skipped",
				"source", src.Method(),
				"product_id", productID,
				"error", err,
			)
			continue
		}

		p.FetchMethod = src.Method()
		a.logger.Info("preview fetched", "source", src.Method(), "product_id", productID)
		return *p
	}

	a.logger.Warn("all preview sources failed", "product_id", productID)
	return domain.NewPlaceholderPreview(productID)
}
