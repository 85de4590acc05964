package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fablepress/fablepress-go/internal/domain/entities/book"
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/infrastructure/imagegen"
	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
)

// ReferenceImageUploadError means a project photo could not be staged for the
// image synthesis service. Unlike a single page failing, this poisons every
// image page, so the whole run aborts.
type ReferenceImageUploadError struct {
	PhotoURL string
	Err      error
}

func (e *ReferenceImageUploadError) Error() string {
	return fmt.Sprintf("failed to stage reference image %s: %v", e.PhotoURL, e.Err)
}

func (e *ReferenceImageUploadError) Unwrap() error { return e.Err }

// PageGenerationError reports one page's image synthesis failing. The
// resolver absorbs it into a fallback page; it never aborts a run.
type PageGenerationError struct {
	PageIndex int
	Err       error
}

func (e *PageGenerationError) Error() string {
	return fmt.Sprintf("image generation failed for page %d: %v", e.PageIndex, e.Err)
}

func (e *PageGenerationError) Unwrap() error { return e.Err }

// ResolveRequest describes one page resolution run.
type ResolveRequest struct {
	ProjectID string
	Document  *layout.Document
	PhotoURLs []string
	// ReferenceImageURLs are pre-staged reference images handed straight to
	// the synthesis service. When set, PhotoURLs staging is skipped.
	ReferenceImageURLs []string
	// StartPage is how many content pages an earlier preview run already
	// rendered; those pages are skipped. Zero means a fresh run.
	StartPage int
	// PageLimit caps how many pages this run resolves. Zero means no cap.
	PageLimit int
}

// ResolveResult is the ordered renderable page sequence for one run.
type ResolveResult struct {
	Pages []book.RenderablePage
	// Truncated reports the run stopped at PageLimit with layout pages left.
	Truncated bool
	// Failures counts pages that fell back because image generation failed.
	Failures int
}

// ResolverService turns layout page specs into renderable pages, generating
// illustrations for image pages with bounded concurrency.
type ResolverService struct {
	generator   imagegen.Generator
	store       storage.ObjectStore
	broadcaster *messaging.ProgressBroadcaster
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewResolverService creates a new page content resolver.
func NewResolverService(
	generator imagegen.Generator,
	store storage.ObjectStore,
	broadcaster *messaging.ProgressBroadcaster,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *ResolverService {
	return &ResolverService{
		generator:   generator,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Resolve produces renderable pages for the requested slice of the layout,
// in layout order. Image pages run concurrently, at most
// config.GenerationConcurrency at a time, and each failed page degrades to a
// text fallback rather than failing the run.
func (s *ResolverService) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	marker := s.perfTracker.StartOperation("resolve_pages", req.ProjectID)
	defer marker.Complete()

	specs := req.Document.Pages
	if req.StartPage > len(specs) {
		req.StartPage = len(specs)
	}
	specs = specs[req.StartPage:]

	truncated := false
	if req.PageLimit > 0 && len(specs) > req.PageLimit {
		specs = specs[:req.PageLimit]
		truncated = true
	}

	s.broadcaster.Publish(messaging.ProgressEvent{
		ProjectID: req.ProjectID,
		Stage:     messaging.StageResolving,
		PageCount: len(specs),
	})

	referenceURLs := req.ReferenceImageURLs
	if len(referenceURLs) == 0 {
		staged, err := s.stageReferenceImages(ctx, req.ProjectID, req.PhotoURLs)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		referenceURLs = staged
	}

	pages := make([]book.RenderablePage, len(specs))
	var failures int
	var failuresMu sync.Mutex

	sem := make(chan struct{}, config.GenerationConcurrency)
	var wg sync.WaitGroup

	for i, spec := range specs {
		layoutIndex := req.StartPage + i

		if spec.Type == layout.PageText {
			pages[i] = book.TextPage(layoutIndex, spec.Content, *spec.TextStyle)
			continue
		}

		// Image pages without a prompt have nothing to synthesize.
		if strings.TrimSpace(spec.Content) == "" {
			s.logger.WithProject(logging.ChannelResolve, req.ProjectID).Warn(
				"Image page has an empty prompt, substituting fallback", "pageIndex", layoutIndex)
			pages[i] = book.FallbackPage(layoutIndex)
			continue
		}

		wg.Add(1)
		go func(slot, layoutIndex int, spec layout.PageSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			page, err := s.resolveImagePage(ctx, req.ProjectID, layoutIndex, spec, referenceURLs)
			if err != nil {
				pageErr := &PageGenerationError{PageIndex: layoutIndex, Err: err}
				s.logger.WithProject(logging.ChannelResolve, req.ProjectID).Warn(
					"Page image generation failed, substituting fallback",
					"pageIndex", layoutIndex, "error", pageErr.Error())
				s.broadcaster.Publish(messaging.ProgressEvent{
					ProjectID: req.ProjectID,
					Stage:     messaging.StagePageFailed,
					PageIndex: layoutIndex,
					Message:   book.FallbackText,
				})
				failuresMu.Lock()
				failures++
				failuresMu.Unlock()
				pages[slot] = book.FallbackPage(layoutIndex)
				return
			}

			s.broadcaster.Publish(messaging.ProgressEvent{
				ProjectID: req.ProjectID,
				Stage:     messaging.StagePageReady,
				PageIndex: layoutIndex,
			})
			pages[slot] = *page
		}(i, layoutIndex, spec)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		marker.SetError(err)
		return nil, err
	}

	marker.AddMetadata("pageCount", len(pages))
	marker.AddMetadata("failures", failures)
	marker.SetSuccess(true)

	return &ResolveResult{
		Pages:     pages,
		Truncated: truncated,
		Failures:  failures,
	}, nil
}

// stageReferenceImages copies project photos into the reference bucket and
// returns signed URLs the synthesis service can fetch. Photos already staged
// under their deterministic path, for example by an earlier preview run, are
// re-signed without re-uploading. Any photo failing to stage aborts the run.
func (s *ResolverService) stageReferenceImages(ctx context.Context, projectID string, photoURLs []string) ([]string, error) {
	staged := make([]string, 0, len(photoURLs))

	for i, photoURL := range photoURLs {
		objectPath := fmt.Sprintf("%s/ref-%d.png", projectID, i)

		exists, err := s.store.Exists(ctx, config.ReferenceBucket, objectPath)
		if err != nil {
			return nil, &ReferenceImageUploadError{PhotoURL: photoURL, Err: err}
		}

		if !exists {
			data, err := s.generator.Fetch(ctx, photoURL)
			if err != nil {
				return nil, &ReferenceImageUploadError{PhotoURL: photoURL, Err: err}
			}

			err = s.store.Upload(ctx, config.ReferenceBucket, objectPath, data,
				storage.UploadOptions{ContentType: "image/png", Upsert: true})
			if err != nil {
				return nil, &ReferenceImageUploadError{PhotoURL: photoURL, Err: err}
			}
		}

		signedURL, err := s.store.CreateSignedURL(ctx, config.ReferenceBucket, objectPath, config.SignedURLTTL)
		if err != nil {
			return nil, &ReferenceImageUploadError{PhotoURL: photoURL, Err: err}
		}
		staged = append(staged, signedURL)
	}

	return staged, nil
}

// resolveImagePage runs one synthesis job and lands the result on disk for
// the renderer.
func (s *ResolverService) resolveImagePage(ctx context.Context, projectID string, layoutIndex int, spec layout.PageSpec, referenceURLs []string) (*book.RenderablePage, error) {
	result, err := s.generator.Generate(ctx, imagegen.Request{
		Prompt:             spec.Content,
		ReferenceImageURLs: referenceURLs,
		OutputFormat:       config.GenerationImageFormat,
		AspectRatio:        config.GenerationAspectRatio,
	})
	if err != nil {
		return nil, err
	}

	data, err := s.generator.Fetch(ctx, result.ImageURL)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(config.WorkingDir, projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	imagePath := filepath.Join(dir, fmt.Sprintf("page-%d.%s", layoutIndex, config.GenerationImageFormat))
	if err := os.WriteFile(imagePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to persist generated image: %w", err)
	}

	// The working copy feeds the renderer; the durable copy outlives the run.
	objectPath := fmt.Sprintf("%s/page-%d.%s", projectID, layoutIndex, config.GenerationImageFormat)
	err = s.store.Upload(ctx, config.ReferenceBucket, objectPath, data,
		storage.UploadOptions{ContentType: "image/png", Upsert: true})
	if err != nil {
		s.logger.WithProject(logging.ChannelResolve, projectID).Warn(
			"Durable upload of generated image failed, keeping working copy only",
			"pageIndex", layoutIndex, "error", err.Error())
	}

	page := book.ImagePage(layoutIndex, imagePath, *spec.ImageStyle)
	return &page, nil
}
