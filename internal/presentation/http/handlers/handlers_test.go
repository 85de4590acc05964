package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
	"github.com/fablepress/fablepress-go/internal/infrastructure/imagegen"
	"github.com/fablepress/fablepress-go/internal/infrastructure/media"
	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/pdf"
	"github.com/fablepress/fablepress-go/internal/infrastructure/security"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/internal/presentation/http/handlers"
	"github.com/fablepress/fablepress-go/pkg/config"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = false
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	return logger
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (s *memStore) Upload(ctx context.Context, bucket, path string, data []byte, opts storage.UploadOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+path] = data
	return nil
}

func (s *memStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+path]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, path)
	}
	return data, nil
}

func (s *memStore) Exists(ctx context.Context, bucket, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+path]
	return ok, nil
}

func (s *memStore) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return "mem://" + bucket + "/" + path, nil
}

type fakeProjects struct {
	projects map[string]*project.Project
	layouts  map[string][]byte
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		projects: make(map[string]*project.Project),
		layouts:  make(map[string][]byte),
	}
}

func (f *fakeProjects) FindByID(ctx context.Context, id string) (*project.Project, error) {
	return f.projects[id], nil
}

func (f *fakeProjects) GetTemplateLayout(ctx context.Context, templateID string) ([]byte, error) {
	return f.layouts[templateID], nil
}

func (f *fakeProjects) UpdateStatusAndMetadata(ctx context.Context, projectID string, status project.Status, metadata *project.GenerationMetadata) error {
	return nil
}

func (f *fakeProjects) Store(ctx context.Context, p *project.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjects) StoreTemplate(ctx context.Context, id, name string, layoutJSON []byte) error {
	f.layouts[id] = layoutJSON
	return nil
}

func TestServeFileRequiresToken(t *testing.T) {
	store := newMemStore()
	h := handlers.NewFileHandlers(store, testLogger(t))

	r := gin.New()
	r.GET("/files/:bucket/*path", h.ServeFile)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/storybook-finals/proj1/final.pdf", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestServeFileWithValidToken(t *testing.T) {
	store := newMemStore()
	pdfBytes := []byte("%PDF-1.4 test")
	store.Upload(context.Background(), "storybook-finals", "proj1/final.pdf", pdfBytes, storage.UploadOptions{})

	h := handlers.NewFileHandlers(store, testLogger(t))
	r := gin.New()
	r.GET("/files/:bucket/*path", h.ServeFile)

	token, err := security.GenerateArtifactToken("storybook-finals", "proj1/final.pdf", config.SignedURLSecret, time.Hour)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/storybook-finals/proj1/final.pdf?token="+token, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("content type = %s", got)
	}
	if w.Body.String() != string(pdfBytes) {
		t.Error("served bytes differ from stored bytes")
	}
}

func TestServeFileRejectsMismatchedScope(t *testing.T) {
	store := newMemStore()
	store.Upload(context.Background(), "storybook-finals", "proj2/final.pdf", []byte("x"), storage.UploadOptions{})

	h := handlers.NewFileHandlers(store, testLogger(t))
	r := gin.New()
	r.GET("/files/:bucket/*path", h.ServeFile)

	// Token grants proj1, request asks for proj2.
	token, err := security.GenerateArtifactToken("storybook-finals", "proj1/final.pdf", config.SignedURLSecret, time.Hour)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/storybook-finals/proj2/final.pdf?token="+token, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	return nil, fmt.Errorf("no synthesis in this test")
}

func (stubGenerator) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	return nil, fmt.Errorf("no fetching in this test")
}

func TestPostDataRendersTextOnlyBook(t *testing.T) {
	logger := testLogger(t)
	store := newMemStore()
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())

	h := handlers.NewLegacyHandlers(
		services.NewLayoutService(logger),
		services.NewResolverService(stubGenerator{}, store, messaging.NewProgressBroadcaster(), logger, tracker),
		pdf.NewRenderer(logger),
		store,
		logger,
	)

	r := gin.New()
	r.POST("/post-data", h.PostData)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("layout", `{"pages":[{"type":"text","content":"Hello"},{"type":"text","content":"Goodbye"}]}`); err != nil {
		t.Fatalf("writing layout field: %v", err)
	}
	mw.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/post-data", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %s", ct)
	}
	// Two text pages plus the cover.
	if n, err := pdf.PageCount(w.Body.Bytes()); err != nil || n != 3 {
		t.Errorf("rendered %d pages (err %v), want 3", n, err)
	}
}

func TestPostDataRequiresLayout(t *testing.T) {
	logger := testLogger(t)
	store := newMemStore()
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())

	h := handlers.NewLegacyHandlers(
		services.NewLayoutService(logger),
		services.NewResolverService(stubGenerator{}, store, messaging.NewProgressBroadcaster(), logger, tracker),
		pdf.NewRenderer(logger),
		store,
		logger,
	)

	r := gin.New()
	r.POST("/post-data", h.PostData)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/post-data", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetProjectStatus(t *testing.T) {
	projects := newFakeProjects()
	projects.projects["proj-1"] = &project.Project{
		ID:     "proj-1",
		UserID: "user-1",
		Title:  "The Brave Explorer",
		Status: project.StatusPreviewGenerated,
	}

	h := handlers.NewProjectHandlers(projects, testLogger(t), performance.NewTracker(performance.DefaultTrackerConfig()))
	r := gin.New()
	r.GET("/api/v1/projects/:id", h.GetProject)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects/missing", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func newPreviewRouter(t *testing.T, projects *fakeProjects, store *memStore) *gin.Engine {
	t.Helper()
	logger := testLogger(t)
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())

	h := handlers.NewPreviewHandlers(
		projects,
		services.NewLayoutService(logger),
		services.NewPreviewService(media.NewPreviewGenerator(logger), store, logger, tracker),
		logger,
	)

	r := gin.New()
	r.POST("/generate-previews", h.GeneratePreviews)
	r.GET("/previews/:id", h.GetPreviews)
	return r
}

func seedStorybook(projects *fakeProjects, id string) {
	projects.layouts["tpl-1"] = []byte(`{"title":"Tiny Tale","pages":[{"type":"text","content":"Hello"},{"type":"text","content":"World"}]}`)
	projects.projects[id] = &project.Project{
		ID:         id,
		UserID:     "user-1",
		Title:      "Tiny Tale",
		TemplateID: "tpl-1",
		Status:     project.StatusDraft,
	}
}

type previewsResponse struct {
	Previews struct {
		Clear   []string `json:"clear"`
		Blurred []string `json:"blurred"`
	} `json:"previews"`
}

func TestGeneratePreviewsReturnsSignedRasterURLs(t *testing.T) {
	projects := newFakeProjects()
	seedStorybook(projects, "book-1")
	store := newMemStore()
	r := newPreviewRouter(t, projects, store)

	body := `{"storybookId":"book-1","options":{"quality":70,"width":320,"generateBlurred":true}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-previews", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp previewsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Previews.Clear) != 2 {
		t.Errorf("clear URL count = %d, want 2", len(resp.Previews.Clear))
	}
	if len(resp.Previews.Blurred) != 2 {
		t.Errorf("blurred URL count = %d, want 2", len(resp.Previews.Blurred))
	}

	// The rasters are drawn from layout content, and the response says so.
	var flags map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &flags); err != nil {
		t.Fatalf("decoding response flags: %v", err)
	}
	if raw, ok := flags["rasterizedFromSource"]; !ok || string(raw) != "false" {
		t.Errorf("rasterizedFromSource = %s, want false", raw)
	}

	for n := 0; n < 2; n++ {
		if _, err := store.Download(context.Background(), config.WebPreviewBucket, fmt.Sprintf("book-1/page-%d.webp", n)); err != nil {
			t.Errorf("raster for page %d not stored: %v", n, err)
		}
	}
}

func TestGeneratePreviewsSkipsBlurWhenNotRequested(t *testing.T) {
	projects := newFakeProjects()
	seedStorybook(projects, "book-1")
	r := newPreviewRouter(t, projects, newMemStore())

	body := `{"storybookId":"book-1","options":{"generateBlurred":false}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-previews", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp previewsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Previews.Clear) != 2 {
		t.Errorf("clear URL count = %d, want 2", len(resp.Previews.Clear))
	}
	if len(resp.Previews.Blurred) != 0 {
		t.Errorf("blurred URL count = %d, want 0", len(resp.Previews.Blurred))
	}
}

func TestGeneratePreviewsValidatesRequest(t *testing.T) {
	projects := newFakeProjects()
	seedStorybook(projects, "book-1")
	r := newPreviewRouter(t, projects, newMemStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-previews", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing storybookId: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/generate-previews", strings.NewReader(`{"storybookId":"ghost"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown storybook: status = %d, want 404", w.Code)
	}
}

func TestGetPreviewsReturnsStoredRasters(t *testing.T) {
	projects := newFakeProjects()
	seedStorybook(projects, "book-1")
	store := newMemStore()
	r := newPreviewRouter(t, projects, store)

	// Nothing stored yet.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/previews/book-1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("empty store: status = %d, want 404", w.Code)
	}

	body := `{"storybookId":"book-1","options":{"generateBlurred":true}}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/generate-previews", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("generation status = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/previews/book-1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp previewsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Previews.Clear) != 2 || len(resp.Previews.Blurred) != 2 {
		t.Errorf("stored raster counts = %d clear, %d blurred, want 2 and 2",
			len(resp.Previews.Clear), len(resp.Previews.Blurred))
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/previews/ghost", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown storybook: status = %d, want 404", w.Code)
	}
}

func TestCreateProjectPersistsDraft(t *testing.T) {
	projects := newFakeProjects()
	h := handlers.NewProjectHandlers(projects, testLogger(t), performance.NewTracker(performance.DefaultTrackerConfig()))

	r := gin.New()
	r.POST("/api/v1/projects", h.CreateProject)

	body := `{"userId":"user-1","title":"Tiny Tale","templateId":"tpl-1","photoUrls":["https://photos/kid.jpg"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var created project.Project
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.ID == "" {
		t.Error("created project has no ID")
	}
	if created.Status != project.StatusDraft {
		t.Errorf("status = %s, want DRAFT", created.Status)
	}
	if stored := projects.projects[created.ID]; stored == nil || stored.Title != "Tiny Tale" {
		t.Errorf("project not persisted: %+v", stored)
	}

	// Required fields enforced.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateTemplateStoresLayout(t *testing.T) {
	projects := newFakeProjects()
	h := handlers.NewProjectHandlers(projects, testLogger(t), performance.NewTracker(performance.DefaultTrackerConfig()))

	r := gin.New()
	r.POST("/api/v1/templates", h.CreateTemplate)

	body := `{"id":"tpl-1","name":"Tiny Tale","layout":{"pages":[{"type":"text","content":"Hello"}]}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	stored, err := projects.GetTemplateLayout(context.Background(), "tpl-1")
	if err != nil || len(stored) == 0 {
		t.Fatalf("template layout not stored (err %v)", err)
	}
	if !strings.Contains(string(stored), `"Hello"`) {
		t.Errorf("stored layout lost its content: %s", stored)
	}
}
