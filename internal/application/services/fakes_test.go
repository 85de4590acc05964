package services_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
	"github.com/fablepress/fablepress-go/internal/infrastructure/imagegen"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
)

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

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 40))
	for x := 0; x < 30; x++ {
		for y := 0; y < 40; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 6), B: uint8(x * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

// memStore is an in-memory ObjectStore that counts uploads per object.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		uploads: make(map[string]int),
	}
}

func (s *memStore) key(bucket, path string) string { return bucket + "/" + path }

func (s *memStore) Upload(ctx context.Context, bucket, path string, data []byte, opts storage.UploadOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(bucket, path)
	if _, exists := s.objects[key]; exists && !opts.Upsert {
		return fmt.Errorf("object %s already exists", key)
	}
	s.objects[key] = append([]byte(nil), data...)
	s.uploads[key]++
	return nil
}

func (s *memStore) uploadCount(bucket, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[s.key(bucket, path)]
}

func (s *memStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, path)
	}
	return data, nil
}

func (s *memStore) Exists(ctx context.Context, bucket, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[s.key(bucket, path)]
	return ok, nil
}

func (s *memStore) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("mem://%s/%s?token=test", bucket, path), nil
}

func (s *memStore) has(bucket, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[s.key(bucket, path)]
	return ok
}

func (s *memStore) countWithPrefix(bucket, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, bucket+"/"+prefix) {
			n++
		}
	}
	return n
}

// fakeGenerator is an in-memory imagegen.Generator with controllable
// failures, optional latency, and concurrency accounting.
type fakeGenerator struct {
	pngData []byte

	mu          sync.Mutex
	failPrompts map[string]bool
	failFetch   map[string]bool
	latency     bool

	generateCalls int32
	inFlight      int32
	maxInFlight   int32
}

func newFakeGenerator(t *testing.T) *fakeGenerator {
	return &fakeGenerator{
		pngData:     testPNG(t),
		failPrompts: make(map[string]bool),
		failFetch:   make(map[string]bool),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	atomic.AddInt32(&g.generateCalls, 1)

	current := atomic.AddInt32(&g.inFlight, 1)
	defer atomic.AddInt32(&g.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&g.maxInFlight)
		if current <= peak || atomic.CompareAndSwapInt32(&g.maxInFlight, peak, current) {
			break
		}
	}

	if g.latency {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	}

	g.mu.Lock()
	failed := g.failPrompts[req.Prompt]
	g.mu.Unlock()
	if failed {
		return nil, fmt.Errorf("synthesis refused prompt %q", req.Prompt)
	}

	return &imagegen.Result{ImageURL: "gen://" + req.Prompt}, nil
}

func (g *fakeGenerator) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	g.mu.Lock()
	failed := g.failFetch[imageURL]
	g.mu.Unlock()
	if failed {
		return nil, fmt.Errorf("fetch refused for %s", imageURL)
	}
	return g.pngData, nil
}

// fakeProjects is an in-memory ProjectStore.
type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	layouts  map[string][]byte
	updates  []statusUpdate
}

type statusUpdate struct {
	ProjectID string
	Status    project.Status
	Metadata  *project.GenerationMetadata
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		projects: make(map[string]*project.Project),
		layouts:  make(map[string][]byte),
	}
}

func (f *fakeProjects) FindByID(ctx context.Context, id string) (*project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProjects) GetTemplateLayout(ctx context.Context, templateID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layouts[templateID], nil
}

func (f *fakeProjects) UpdateStatusAndMetadata(ctx context.Context, projectID string, status project.Status, metadata *project.GenerationMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s not found", projectID)
	}
	p.Status = status
	p.PDFMetadata = metadata
	f.updates = append(f.updates, statusUpdate{ProjectID: projectID, Status: status, Metadata: metadata})
	return nil
}

// fakeEmailer records fulfillment notifications.
type fakeEmailer struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeEmailer) SendFulfillmentEmail(toEmail, projectTitle, downloadURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, toEmail)
	return nil
}
