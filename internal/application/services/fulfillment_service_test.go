package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
	"github.com/fablepress/fablepress-go/internal/infrastructure/media"
	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/pdf"
	"github.com/fablepress/fablepress-go/pkg/config"
)

type fulfillmentFixture struct {
	svc      *services.FulfillmentService
	projects *fakeProjects
	gen      *fakeGenerator
	store    *memStore
	emailer  *fakeEmailer
}

func newFulfillmentFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()
	config.WorkingDir = t.TempDir()

	logger := testLogger(t)
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())
	broadcaster := messaging.NewProgressBroadcaster()

	projects := newFakeProjects()
	gen := newFakeGenerator(t)
	store := newMemStore()
	emailer := &fakeEmailer{}

	layouts := services.NewLayoutService(logger)
	resolver := services.NewResolverService(gen, store, broadcaster, logger, tracker)
	renderer := pdf.NewRenderer(logger)
	previews := services.NewPreviewService(media.NewPreviewGenerator(logger), store, logger, tracker)

	svc := services.NewFulfillmentService(
		projects, layouts, resolver, renderer, previews,
		store, emailer, broadcaster, logger, tracker,
	)

	return &fulfillmentFixture{svc: svc, projects: projects, gen: gen, store: store, emailer: emailer}
}

// storybookLayoutJSON is a canonical six page layout: one text page followed
// by five image pages.
func storybookLayoutJSON(t *testing.T) []byte {
	t.Helper()
	textStyle := layout.DefaultTextStyle()
	imageStyle := layout.DefaultImageStyle()

	doc := layout.Document{
		Title:    "The Brave Explorer",
		Settings: layout.DefaultSettings(),
		Pages: []layout.PageSpec{
			{Type: layout.PageText, Content: "Once there was a brave explorer.", TextStyle: &textStyle},
		},
	}
	for i := 0; i < 5; i++ {
		doc.Pages = append(doc.Pages, layout.PageSpec{
			Type:       layout.PageImage,
			Content:    fmt.Sprintf("scene %d", i),
			ImageStyle: &imageStyle,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshaling layout: %v", err)
	}
	return raw
}

func (f *fulfillmentFixture) seedProject(t *testing.T, id string) {
	t.Helper()
	f.projects.layouts["tpl-1"] = storybookLayoutJSON(t)
	f.projects.projects[id] = &project.Project{
		ID:                 id,
		UserID:             "user-1",
		Title:              "The Brave Explorer",
		TemplateID:         "tpl-1",
		PhotoURLs:          []string{"https://photos/kid.jpg"},
		SubscriptionActive: false,
		Status:             project.StatusDraft,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
}

// subscribe flips the project to a paying user, as the dashboard does after
// checkout.
func (f *fulfillmentFixture) subscribe(t *testing.T, id string) {
	t.Helper()
	f.projects.mu.Lock()
	defer f.projects.mu.Unlock()
	f.projects.projects[id].SubscriptionActive = true
}

func TestGeneratePreviewStoresCappedArtifact(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")

	result, err := f.svc.GeneratePreview(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}

	if result.Status != project.StatusPreviewGenerated {
		t.Errorf("status = %s, want PREVIEW_GENERATED", result.Status)
	}
	if !result.Metadata.IsPreview {
		t.Error("preview metadata not tagged as preview")
	}
	// Three content pages under the unsubscribed preview cap, plus the cover.
	if result.Metadata.PageCount != config.PreviewPageLimit+1 {
		t.Errorf("preview page count = %d, want %d", result.Metadata.PageCount, config.PreviewPageLimit+1)
	}
	if result.DownloadURL == "" {
		t.Error("no preview download URL issued")
	}

	if !f.store.has(config.PreviewBucket, "proj-1/preview.pdf") {
		t.Error("preview PDF not stored")
	}

	data, err := f.store.Download(context.Background(), config.PreviewBucket, "proj-1/preview.pdf")
	if err != nil {
		t.Fatalf("downloading preview: %v", err)
	}
	if n, err := pdf.PageCount(data); err != nil || n != config.PreviewPageLimit+1 {
		t.Errorf("stored preview has %d pages (err %v), want %d", n, err, config.PreviewPageLimit+1)
	}

	// Dashboard rasters: sharp and blurred variant per content page.
	if got := f.store.countWithPrefix(config.WebPreviewBucket, "proj-1/"); got != 2*config.PreviewPageLimit {
		t.Errorf("web preview object count = %d, want %d", got, 2*config.PreviewPageLimit)
	}

	// Only the two image pages under the cap needed synthesis.
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != 2 {
		t.Errorf("generation calls = %d, want 2", calls)
	}

	if len(f.projects.updates) != 1 {
		t.Fatalf("expected one status update, got %d", len(f.projects.updates))
	}
}

func TestGeneratePreviewIsIdempotent(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")

	if _, err := f.svc.GeneratePreview(context.Background(), "proj-1"); err != nil {
		t.Fatalf("first preview failed: %v", err)
	}
	callsAfterFirst := atomic.LoadInt32(&f.gen.generateCalls)

	result, err := f.svc.GeneratePreview(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("second preview failed: %v", err)
	}
	if !result.AlreadyFulfilled {
		t.Error("second preview did not short-circuit")
	}
	if result.DownloadURL == "" {
		t.Error("short-circuit must still issue the preview download URL")
	}
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != callsAfterFirst {
		t.Errorf("idempotent preview ran generation: %d calls after %d", calls, callsAfterFirst)
	}
}

func TestGeneratePreviewSubscribedUserRendersAllPages(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")
	f.subscribe(t, "proj-1")

	result, err := f.svc.GeneratePreview(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}

	// Six content pages plus the cover; the cap applies to unsubscribed
	// users only.
	if result.Metadata.PageCount != 7 {
		t.Errorf("subscribed preview page count = %d, want 7", result.Metadata.PageCount)
	}
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != 5 {
		t.Errorf("generation calls = %d, want 5", calls)
	}
}

func TestGeneratePreviewUnknownProject(t *testing.T) {
	f := newFulfillmentFixture(t)
	_, err := f.svc.GeneratePreview(context.Background(), "missing")
	if !errors.Is(err, services.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestFulfillPurchaseRejectsWrongOwner(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")
	f.subscribe(t, "proj-1")

	_, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID: "proj-1",
		UserID:    "intruder",
	})
	if !errors.Is(err, services.ErrUnauthorizedFulfillment) {
		t.Fatalf("expected ErrUnauthorizedFulfillment, got %v", err)
	}
}

func TestFulfillPurchaseRejectsInactiveSubscription(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")

	_, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID: "proj-1",
		UserID:    "user-1",
	})
	if !errors.Is(err, services.ErrUnauthorizedFulfillment) {
		t.Fatalf("expected ErrUnauthorizedFulfillment, got %v", err)
	}
}

func TestFulfillPurchaseContinuesFromPreview(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")

	if _, err := f.svc.GeneratePreview(context.Background(), "proj-1"); err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	callsAfterPreview := atomic.LoadInt32(&f.gen.generateCalls)
	f.subscribe(t, "proj-1")

	result, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID:   "proj-1",
		UserID:      "user-1",
		NotifyEmail: "parent@example.com",
	})
	if err != nil {
		t.Fatalf("FulfillPurchase failed: %v", err)
	}

	if result.Status != project.StatusPurchased {
		t.Errorf("status = %s, want PURCHASED", result.Status)
	}
	if result.Metadata.IsPreview {
		t.Error("final metadata still tagged as preview")
	}
	// Six content pages plus the cover, no duplicate cover from the append.
	if result.Metadata.PageCount != 7 {
		t.Errorf("final page count = %d, want 7", result.Metadata.PageCount)
	}
	if result.DownloadURL == "" {
		t.Error("no download URL issued")
	}

	data, err := f.store.Download(context.Background(), config.FinalBucket, "proj-1/final.pdf")
	if err != nil {
		t.Fatalf("downloading final: %v", err)
	}
	if n, err := pdf.PageCount(data); err != nil || n != 7 {
		t.Errorf("stored final has %d pages (err %v), want 7", n, err)
	}

	// Continuation only synthesized the three remaining image pages.
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != callsAfterPreview+3 {
		t.Errorf("generation calls = %d, want %d", calls, callsAfterPreview+3)
	}

	// The reference photo staged during the preview run was reused.
	if n := f.store.uploadCount(config.ReferenceBucket, "proj-1/ref-0.png"); n != 1 {
		t.Errorf("reference photo uploaded %d times across preview and fulfillment, want 1", n)
	}

	if len(f.emailer.sends) != 1 || f.emailer.sends[0] != "parent@example.com" {
		t.Errorf("fulfillment email sends = %v", f.emailer.sends)
	}
}

func TestFulfillPurchaseFreshWhenNoPreview(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")
	f.subscribe(t, "proj-1")

	result, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID: "proj-1",
		UserID:    "user-1",
	})
	if err != nil {
		t.Fatalf("FulfillPurchase failed: %v", err)
	}

	if result.Metadata.PageCount != 7 {
		t.Errorf("fresh full render page count = %d, want 7", result.Metadata.PageCount)
	}
	// All five image pages synthesized in one run.
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != 5 {
		t.Errorf("generation calls = %d, want 5", calls)
	}
}

func TestFulfillPurchaseIsIdempotent(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.seedProject(t, "proj-1")
	f.subscribe(t, "proj-1")

	if _, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID: "proj-1", UserID: "user-1",
	}); err != nil {
		t.Fatalf("first fulfillment failed: %v", err)
	}
	callsAfterFirst := atomic.LoadInt32(&f.gen.generateCalls)

	result, err := f.svc.FulfillPurchase(context.Background(), services.FulfillRequest{
		ProjectID: "proj-1", UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("second fulfillment failed: %v", err)
	}
	if !result.AlreadyFulfilled {
		t.Error("second fulfillment did not short-circuit")
	}
	if result.DownloadURL == "" {
		t.Error("short-circuit must still issue a download URL")
	}
	if calls := atomic.LoadInt32(&f.gen.generateCalls); calls != callsAfterFirst {
		t.Errorf("idempotent fulfillment ran generation: %d calls after %d", calls, callsAfterFirst)
	}
}
