package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
	"github.com/fablepress/fablepress-go/internal/infrastructure/email"
	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/pdf"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
)

// ErrUnauthorizedFulfillment means the caller may not fulfill this project:
// wrong owner or no active subscription.
var ErrUnauthorizedFulfillment = errors.New("fulfillment not authorized for this project")

// ErrProjectNotFound means the requested project does not exist.
var ErrProjectNotFound = errors.New("project not found")

// ProjectStore is the persistence surface the orchestrator needs. The
// projects repository is the production implementation; tests substitute
// their own.
type ProjectStore interface {
	FindByID(ctx context.Context, id string) (*project.Project, error)
	GetTemplateLayout(ctx context.Context, templateID string) ([]byte, error)
	UpdateStatusAndMetadata(ctx context.Context, projectID string, status project.Status, metadata *project.GenerationMetadata) error
}

// FulfillRequest describes one purchase fulfillment.
type FulfillRequest struct {
	ProjectID string
	UserID    string
	// NotifyEmail, when set, receives the download link once the final
	// artifact is stored.
	NotifyEmail string
}

// FulfillmentResult reports where a generation run landed its artifact.
type FulfillmentResult struct {
	ProjectID   string                      `json:"projectId"`
	Status      project.Status              `json:"status"`
	Metadata    *project.GenerationMetadata `json:"metadata"`
	DownloadURL string                      `json:"downloadUrl,omitempty"`
	// AlreadyFulfilled reports an idempotent short-circuit: the artifact
	// existed before this call and no work ran.
	AlreadyFulfilled bool `json:"alreadyFulfilled,omitempty"`
}

// FulfillmentService orchestrates the two generation flows: watermark-free
// preview runs and purchased-book fulfillment runs.
type FulfillmentService struct {
	projects    ProjectStore
	layouts     *LayoutService
	resolver    *ResolverService
	renderer    *pdf.Renderer
	previews    *PreviewService
	store       storage.ObjectStore
	emailer     email.Service
	broadcaster *messaging.ProgressBroadcaster
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewFulfillmentService creates the generation orchestrator. The emailer may
// be nil when no email provider is configured.
func NewFulfillmentService(
	projects ProjectStore,
	layouts *LayoutService,
	resolver *ResolverService,
	renderer *pdf.Renderer,
	previews *PreviewService,
	store storage.ObjectStore,
	emailer email.Service,
	broadcaster *messaging.ProgressBroadcaster,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *FulfillmentService {
	return &FulfillmentService{
		projects:    projects,
		layouts:     layouts,
		resolver:    resolver,
		renderer:    renderer,
		previews:    previews,
		store:       store,
		emailer:     emailer,
		broadcaster: broadcaster,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GeneratePreview runs the capped preview flow: resolve the first pages,
// render a fresh document with cover, store it, and raster the dashboard
// previews. Calling it again after a preview exists returns the stored
// artifact without regenerating.
func (s *FulfillmentService) GeneratePreview(ctx context.Context, projectID string) (*FulfillmentResult, error) {
	marker := s.perfTracker.StartOperation("generate_preview", projectID)
	defer marker.Complete()

	proj, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if proj == nil {
		marker.SetError(ErrProjectNotFound)
		return nil, ErrProjectNotFound
	}

	log := s.logger.WithProject(logging.ChannelFulfillment, projectID)

	if proj.Status == project.StatusPreviewGenerated && proj.PDFMetadata != nil && proj.PDFMetadata.IsPreview {
		log.Info("Preview already generated, returning stored artifact")
		downloadURL, err := s.store.CreateSignedURL(ctx, config.PreviewBucket, proj.PDFMetadata.PDFPath, config.SignedURLTTL)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		marker.SetSuccess(true)
		return &FulfillmentResult{
			ProjectID:        projectID,
			Status:           proj.Status,
			Metadata:         proj.PDFMetadata,
			DownloadURL:      downloadURL,
			AlreadyFulfilled: true,
		}, nil
	}

	// The preview cap applies to unsubscribed users only; a subscriber's
	// preview run renders the whole book.
	pageLimit := config.PreviewPageLimit
	if proj.SubscriptionActive {
		pageLimit = 0
	}

	doc, result, err := s.resolveProject(ctx, proj, 0, pageLimit)
	if err != nil {
		marker.SetError(err)
		s.publishFailure(projectID, err)
		return nil, err
	}

	s.broadcaster.Publish(messaging.ProgressEvent{ProjectID: projectID, Stage: messaging.StageRendering})

	// Preview pages become the head of the purchased book, so they render
	// with print intent from the start.
	data, renderMeta, err := s.renderer.Render(doc, result.Pages, pdf.Options{OutputFormat: pdf.FormatPrint})
	if err != nil {
		marker.SetError(err)
		s.publishFailure(projectID, err)
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}

	pdfPath := fmt.Sprintf("%s/preview.pdf", projectID)
	s.broadcaster.Publish(messaging.ProgressEvent{ProjectID: projectID, Stage: messaging.StageUploading})

	if err := s.uploadArtifact(ctx, config.PreviewBucket, pdfPath, data); err != nil {
		marker.SetError(err)
		s.publishFailure(projectID, err)
		return nil, fmt.Errorf("failed to store preview: %w", err)
	}

	if _, err := s.previews.GenerateFromPages(ctx, projectID, result.Pages, DefaultPreviewOptions()); err != nil {
		// Dashboard rasters are a convenience; the preview PDF is already safe.
		log.Warn("Web preview generation failed", "error", err.Error())
	}

	metadata := &project.GenerationMetadata{
		PDFPath:     pdfPath,
		PageCount:   renderMeta.PageCount,
		FileSize:    renderMeta.FileSize,
		GeneratedAt: time.Now().UTC(),
		IsPreview:   true,
	}

	// Status flips only once the artifact is stored, so a crash mid-run
	// leaves the project retryable rather than pointing at nothing.
	if err := s.projects.UpdateStatusAndMetadata(ctx, projectID, project.StatusPreviewGenerated, metadata); err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to record preview: %w", err)
	}

	downloadURL, err := s.store.CreateSignedURL(ctx, config.PreviewBucket, pdfPath, config.SignedURLTTL)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.broadcaster.Publish(messaging.ProgressEvent{
		ProjectID: projectID,
		Stage:     messaging.StageComplete,
		PageCount: renderMeta.PageCount,
	})

	log.Info("Preview generated",
		"pageCount", renderMeta.PageCount,
		"fileSize", renderMeta.FileSize,
		"truncated", result.Truncated,
		"failures", result.Failures)

	marker.AddMetadata("pageCount", renderMeta.PageCount)
	marker.SetSuccess(true)

	return &FulfillmentResult{
		ProjectID:   projectID,
		Status:      project.StatusPreviewGenerated,
		Metadata:    metadata,
		DownloadURL: downloadURL,
	}, nil
}

// FulfillPurchase runs the full-book flow. When a preview artifact exists the
// run continues from where the preview stopped and appends onto the stored
// document; otherwise it renders the whole book fresh. Repeat calls after a
// successful fulfillment return the stored artifact.
func (s *FulfillmentService) FulfillPurchase(ctx context.Context, req FulfillRequest) (*FulfillmentResult, error) {
	marker := s.perfTracker.StartOperation("fulfill_purchase", req.ProjectID)
	defer marker.Complete()

	proj, err := s.projects.FindByID(ctx, req.ProjectID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if proj == nil {
		marker.SetError(ErrProjectNotFound)
		return nil, ErrProjectNotFound
	}

	if proj.UserID != req.UserID || !proj.SubscriptionActive {
		marker.SetError(ErrUnauthorizedFulfillment)
		return nil, ErrUnauthorizedFulfillment
	}

	log := s.logger.WithProject(logging.ChannelFulfillment, req.ProjectID)

	if proj.Status == project.StatusPurchased && proj.PDFMetadata != nil && !proj.PDFMetadata.IsPreview {
		log.Info("Purchase already fulfilled, returning stored artifact")
		downloadURL, err := s.store.CreateSignedURL(ctx, config.FinalBucket, proj.PDFMetadata.PDFPath, config.SignedURLTTL)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		marker.SetSuccess(true)
		return &FulfillmentResult{
			ProjectID:        req.ProjectID,
			Status:           proj.Status,
			Metadata:         proj.PDFMetadata,
			DownloadURL:      downloadURL,
			AlreadyFulfilled: true,
		}, nil
	}

	startPage := proj.PagesAlreadyRendered()

	var existing []byte
	if startPage > 0 {
		existing, err = s.store.Download(ctx, config.PreviewBucket, proj.PDFMetadata.PDFPath)
		if err != nil {
			// Preview artifact lost; fall back to a fresh full render.
			log.Warn("Stored preview unavailable, rendering full book fresh", "error", err.Error())
			existing = nil
			startPage = 0
		}
	}

	doc, result, err := s.resolveProject(ctx, proj, startPage, 0)
	if err != nil {
		marker.SetError(err)
		s.publishFailure(req.ProjectID, err)
		return nil, err
	}

	s.broadcaster.Publish(messaging.ProgressEvent{ProjectID: req.ProjectID, Stage: messaging.StageRendering})

	opts := pdf.Options{OutputFormat: pdf.FormatPrint}
	if existing != nil {
		opts.Append = true
		opts.ExistingDocument = existing
	}

	data, renderMeta, err := s.renderer.Render(doc, result.Pages, opts)
	if err != nil {
		marker.SetError(err)
		s.publishFailure(req.ProjectID, err)
		return nil, fmt.Errorf("failed to render final document: %w", err)
	}

	pdfPath := fmt.Sprintf("%s/final.pdf", req.ProjectID)
	s.broadcaster.Publish(messaging.ProgressEvent{ProjectID: req.ProjectID, Stage: messaging.StageUploading})

	if err := s.uploadArtifact(ctx, config.FinalBucket, pdfPath, data); err != nil {
		marker.SetError(err)
		s.publishFailure(req.ProjectID, err)
		return nil, fmt.Errorf("failed to store final document: %w", err)
	}

	metadata := &project.GenerationMetadata{
		PDFPath:     pdfPath,
		PageCount:   renderMeta.PageCount,
		FileSize:    renderMeta.FileSize,
		GeneratedAt: time.Now().UTC(),
		IsPreview:   false,
	}

	if err := s.projects.UpdateStatusAndMetadata(ctx, req.ProjectID, project.StatusPurchased, metadata); err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to record fulfillment: %w", err)
	}

	downloadURL, err := s.store.CreateSignedURL(ctx, config.FinalBucket, pdfPath, config.SignedURLTTL)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	if s.emailer != nil && req.NotifyEmail != "" {
		if err := s.emailer.SendFulfillmentEmail(req.NotifyEmail, proj.Title, downloadURL); err != nil {
			log.Warn("Fulfillment email failed", "error", err.Error())
		}
	}

	s.broadcaster.Publish(messaging.ProgressEvent{
		ProjectID: req.ProjectID,
		Stage:     messaging.StageComplete,
		PageCount: renderMeta.PageCount,
	})

	log.Info("Purchase fulfilled",
		"pageCount", renderMeta.PageCount,
		"fileSize", renderMeta.FileSize,
		"continuedFromPage", startPage,
		"failures", result.Failures)

	marker.AddMetadata("pageCount", renderMeta.PageCount)
	marker.AddMetadata("continuedFromPage", startPage)
	marker.SetSuccess(true)

	return &FulfillmentResult{
		ProjectID:   req.ProjectID,
		Status:      project.StatusPurchased,
		Metadata:    metadata,
		DownloadURL: downloadURL,
	}, nil
}

func (s *FulfillmentService) uploadArtifact(ctx context.Context, bucket, path string, data []byte) error {
	uploadCtx, cancel := context.WithTimeout(ctx, config.StorageTimeout)
	defer cancel()

	return s.store.Upload(uploadCtx, bucket, path, data,
		storage.UploadOptions{ContentType: "application/pdf", Upsert: true})
}

func (s *FulfillmentService) resolveProject(ctx context.Context, proj *project.Project, startPage, pageLimit int) (*layout.Document, *ResolveResult, error) {
	raw, err := s.projects.GetTemplateLayout(ctx, proj.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template layout: %w", err)
	}

	parsed := s.layouts.ParseOrDefault(raw, proj.TemplateID)

	result, err := s.resolver.Resolve(ctx, ResolveRequest{
		ProjectID: proj.ID,
		Document:  parsed,
		PhotoURLs: proj.PhotoURLs,
		StartPage: startPage,
		PageLimit: pageLimit,
	})
	if err != nil {
		return nil, nil, err
	}
	return parsed, result, nil
}

func (s *FulfillmentService) publishFailure(projectID string, err error) {
	s.broadcaster.Publish(messaging.ProgressEvent{
		ProjectID: projectID,
		Stage:     messaging.StageFailed,
		Message:   err.Error(),
	})
}
