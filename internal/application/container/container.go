// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/infrastructure/email"
	"github.com/fablepress/fablepress-go/internal/infrastructure/imagegen"
	"github.com/fablepress/fablepress-go/internal/infrastructure/media"
	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/pdf"
	"github.com/fablepress/fablepress-go/internal/infrastructure/persistence/database"
	"github.com/fablepress/fablepress-go/internal/infrastructure/persistence/projects"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (stateless singletons)
	LayoutService      *services.LayoutService
	ResolverService    *services.ResolverService
	PreviewService     *services.PreviewService
	FulfillmentService *services.FulfillmentService

	// Infrastructure dependencies
	DB                *database.Database
	ProjectRepository *projects.ProjectRepository
	ObjectStore       storage.ObjectStore
	ImageGenerator    imagegen.Generator
	EmailService      email.Service
	Broadcaster       *messaging.ProgressBroadcaster
	Renderer          *pdf.Renderer
	PreviewGenerator  *media.PreviewGenerator
	Logger            *logging.ChanneledLogger
	PerfTracker       *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer(db *database.Database) (*Container, error) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize channeled logging: %w", err)
	}

	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())

	projectRepo := projects.NewProjectRepository(db.Conn)

	baseURL := fmt.Sprintf("http://localhost:%s", config.Port)
	store := storage.NewLocalStore(config.StorageBasePath, baseURL, config.SignedURLSecret)

	generator := imagegen.NewClient(config.ImageGenEndpoint, config.ImageGenAPIKey, config.GenerationTimeout)

	// Email is optional; without an API key fulfillment runs without
	// notifications.
	var emailService email.Service
	if config.ResendAPIKey != "" {
		emailService, err = email.NewService()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email service: %w", err)
		}
	}

	broadcaster := messaging.NewProgressBroadcaster()
	renderer := pdf.NewRenderer(logger)
	previewGenerator := media.NewPreviewGenerator(logger)

	layoutService := services.NewLayoutService(logger)
	resolverService := services.NewResolverService(generator, store, broadcaster, logger, perfTracker)
	previewService := services.NewPreviewService(previewGenerator, store, logger, perfTracker)
	fulfillmentService := services.NewFulfillmentService(
		projectRepo,
		layoutService,
		resolverService,
		renderer,
		previewService,
		store,
		emailService,
		broadcaster,
		logger,
		perfTracker,
	)

	return &Container{
		LayoutService:      layoutService,
		ResolverService:    resolverService,
		PreviewService:     previewService,
		FulfillmentService: fulfillmentService,

		DB:                db,
		ProjectRepository: projectRepo,
		ObjectStore:       store,
		ImageGenerator:    generator,
		EmailService:      emailService,
		Broadcaster:       broadcaster,
		Renderer:          renderer,
		PreviewGenerator:  previewGenerator,
		Logger:            logger,
		PerfTracker:       perfTracker,
	}, nil
}
