// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/fablepress/fablepress-go/internal/application/container"
	"github.com/fablepress/fablepress-go/internal/presentation/http/handlers"
	"github.com/fablepress/fablepress-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	generationHandlers := handlers.NewGenerationHandlers(container.FulfillmentService, container.Logger, container.PerfTracker)
	projectHandlers := handlers.NewProjectHandlers(container.ProjectRepository, container.Logger, container.PerfTracker)
	previewHandlers := handlers.NewPreviewHandlers(
		container.ProjectRepository,
		container.LayoutService,
		container.PreviewService,
		container.Logger,
	)
	fileHandlers := handlers.NewFileHandlers(container.ObjectStore, container.Logger)
	progressHandlers := handlers.NewProgressHandlers(container.Broadcaster, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.PerfTracker)
	legacyHandlers := handlers.NewLegacyHandlers(
		container.LayoutService,
		container.ResolverService,
		container.Renderer,
		container.ObjectStore,
		container.Logger,
	)

	api := r.Group("/api/v1")
	{
		api.GET("/health", healthHandlers.Health)

		api.POST("/projects", projectHandlers.CreateProject)
		api.GET("/projects/:id", projectHandlers.GetProject)
		api.POST("/projects/:id/preview", generationHandlers.GeneratePreview)
		api.POST("/projects/:id/fulfill", generationHandlers.FulfillPurchase)
		api.GET("/projects/:id/progress", progressHandlers.StreamProgress)
		api.POST("/templates", projectHandlers.CreateTemplate)
	}

	// Signed artifact downloads live outside the API group; the token in the
	// URL is the whole authorization.
	r.GET("/files/:bucket/*path", fileHandlers.ServeFile)

	// Original single-pass contract kept for older dashboard clients.
	r.POST("/post-data", legacyHandlers.PostData)
	r.POST("/generate-previews", previewHandlers.GeneratePreviews)
	r.GET("/previews/:id", previewHandlers.GetPreviews)

	return r
}
