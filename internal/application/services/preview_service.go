package services

import (
	"context"
	"fmt"

	"github.com/fablepress/fablepress-go/internal/domain/entities/book"
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/infrastructure/media"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
)

// PreviewService produces and stores the per-page WebP rasters the dashboard
// shows: a sharp variant per page plus a blurred progressive-loading variant.
type PreviewService struct {
	generator   *media.PreviewGenerator
	store       storage.ObjectStore
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewPreviewService creates a new preview service.
func NewPreviewService(
	generator *media.PreviewGenerator,
	store storage.ObjectStore,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *PreviewService {
	return &PreviewService{
		generator:   generator,
		store:       store,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PreviewOptions are the caller-tunable raster parameters. Zero values fall
// back to the configured defaults.
type PreviewOptions struct {
	Quality         int
	Width           int
	GenerateBlurred bool
}

// DefaultPreviewOptions returns the configured raster parameters with the
// blurred variant enabled.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Quality:         config.PreviewWebPQuality,
		Width:           config.PreviewImageWidth,
		GenerateBlurred: true,
	}
}

// PreviewSet carries signed download URLs for the stored rasters of one run.
type PreviewSet struct {
	ClearURLs   []string `json:"clear"`
	BlurredURLs []string `json:"blurred,omitempty"`
}

// GenerateFromPages rasterizes resolved pages and uploads them to the web
// preview bucket under {projectID}/page-{n}.webp, with a blurred variant at
// {projectID}/page-{n}-blur.webp when requested. Page numbering follows each
// page's layout index so continuation runs slot in after earlier previews.
func (s *PreviewService) GenerateFromPages(ctx context.Context, projectID string, pages []book.RenderablePage, opts PreviewOptions) (*PreviewSet, error) {
	marker := s.perfTracker.StartOperation("generate_previews", projectID)
	defer marker.Complete()

	if opts.Quality <= 0 {
		opts.Quality = config.PreviewWebPQuality
	}
	if opts.Width <= 0 {
		opts.Width = config.PreviewImageWidth
	}
	// Height preserves the configured page aspect for any requested width.
	height := opts.Width * config.PreviewImageHeight / config.PreviewImageWidth

	rasters, err := s.generator.GenerateFromPages(pages, media.PageOptions{
		Width:           opts.Width,
		Height:          height,
		BackgroundColor: config.PreviewBackgroundHex,
		Quality:         opts.Quality,
	})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to rasterize previews: %w", err)
	}

	set := &PreviewSet{}
	for i, raster := range rasters {
		if raster == nil {
			s.logger.WithProject(logging.ChannelPreview, projectID).Warn(
				"Skipping preview upload for unencodable page", "pageIndex", pages[i].Index)
			continue
		}

		pagePath := fmt.Sprintf("%s/page-%d.webp", projectID, pages[i].Index)
		err := s.store.Upload(ctx, config.WebPreviewBucket, pagePath, raster,
			storage.UploadOptions{ContentType: "image/webp", Upsert: true})
		if err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to upload preview %s: %w", pagePath, err)
		}

		pageURL, err := s.store.CreateSignedURL(ctx, config.WebPreviewBucket, pagePath, config.SignedURLTTL)
		if err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to sign preview %s: %w", pagePath, err)
		}
		set.ClearURLs = append(set.ClearURLs, pageURL)

		if !opts.GenerateBlurred {
			continue
		}

		blurred, err := s.generator.Blur(raster, media.BlurOptions{
			Radius:  config.PreviewBlurRadius,
			Width:   config.BlurredPreviewWidth,
			Quality: config.BlurredWebPQuality,
		})
		if err != nil {
			s.logger.WithProject(logging.ChannelPreview, projectID).Warn(
				"Blurred variant failed, keeping sharp preview only",
				"pageIndex", pages[i].Index, "error", err.Error())
			continue
		}

		blurPath := fmt.Sprintf("%s/page-%d-blur.webp", projectID, pages[i].Index)
		err = s.store.Upload(ctx, config.WebPreviewBucket, blurPath, blurred,
			storage.UploadOptions{ContentType: "image/webp", Upsert: true})
		if err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to upload blurred preview %s: %w", blurPath, err)
		}

		blurURL, err := s.store.CreateSignedURL(ctx, config.WebPreviewBucket, blurPath, config.SignedURLTTL)
		if err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to sign blurred preview %s: %w", blurPath, err)
		}
		set.BlurredURLs = append(set.BlurredURLs, blurURL)
	}

	marker.AddMetadata("pageCount", len(set.ClearURLs))
	marker.SetSuccess(true)
	return set, nil
}

// GenerateFromDocument rasterizes previews straight from a layout document's
// own page specs. Used when resolved pages are no longer on hand, for
// example regenerating dashboard previews for an already-rendered book.
// Image pages whose generated file is gone degrade to placeholders, so the
// output is drawn from page content rather than the stored PDF.
func (s *PreviewService) GenerateFromDocument(ctx context.Context, projectID string, doc *layout.Document, pageLimit int, opts PreviewOptions) (*PreviewSet, error) {
	specs := doc.Pages
	if pageLimit > 0 && len(specs) > pageLimit {
		specs = specs[:pageLimit]
	}

	pages := make([]book.RenderablePage, 0, len(specs))
	for i, spec := range specs {
		if spec.Type == layout.PageText {
			pages = append(pages, book.TextPage(i, spec.Content, *spec.TextStyle))
			continue
		}
		// No stored raster for the page image; the generator substitutes a
		// placeholder canvas when the path does not resolve.
		pages = append(pages, book.ImagePage(i, "", *spec.ImageStyle))
	}

	return s.GenerateFromPages(ctx, projectID, pages, opts)
}

// GetStored re-signs the rasters an earlier run uploaded, checking the first
// pageCount deterministic paths. Pages never rasterized are skipped.
func (s *PreviewService) GetStored(ctx context.Context, projectID string, pageCount int) (*PreviewSet, error) {
	set := &PreviewSet{}

	for n := 0; n < pageCount; n++ {
		pagePath := fmt.Sprintf("%s/page-%d.webp", projectID, n)
		exists, err := s.store.Exists(ctx, config.WebPreviewBucket, pagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to check preview %s: %w", pagePath, err)
		}
		if !exists {
			continue
		}

		pageURL, err := s.store.CreateSignedURL(ctx, config.WebPreviewBucket, pagePath, config.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign preview %s: %w", pagePath, err)
		}
		set.ClearURLs = append(set.ClearURLs, pageURL)

		blurPath := fmt.Sprintf("%s/page-%d-blur.webp", projectID, n)
		exists, err = s.store.Exists(ctx, config.WebPreviewBucket, blurPath)
		if err != nil || !exists {
			continue
		}
		blurURL, err := s.store.CreateSignedURL(ctx, config.WebPreviewBucket, blurPath, config.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign blurred preview %s: %w", blurPath, err)
		}
		set.BlurredURLs = append(set.BlurredURLs, blurURL)
	}

	return set, nil
}
