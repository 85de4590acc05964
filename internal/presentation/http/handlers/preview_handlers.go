package handlers

import (
	"net/http"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// PreviewHandlers serves the dashboard's WebP raster preview contract.
type PreviewHandlers struct {
	projects services.ProjectStore
	layouts  *services.LayoutService
	previews *services.PreviewService
	logger   *logging.ChanneledLogger
}

// NewPreviewHandlers creates a new preview handlers instance
func NewPreviewHandlers(
	projects services.ProjectStore,
	layouts *services.LayoutService,
	previews *services.PreviewService,
	logger *logging.ChanneledLogger,
) *PreviewHandlers {
	return &PreviewHandlers{
		projects: projects,
		layouts:  layouts,
		previews: previews,
		logger:   logger,
	}
}

// GeneratePreviewsBody is the request body for raster preview generation.
type GeneratePreviewsBody struct {
	StorybookID string `json:"storybookId" binding:"required"`
	Options     struct {
		Quality         int  `json:"quality"`
		Width           int  `json:"width"`
		GenerateBlurred bool `json:"generateBlurred"`
	} `json:"options"`
}

// GeneratePreviews handles POST /generate-previews. Rasters are drawn from
// the storybook's layout content, not from the stored PDF, and the response
// says so.
func (h *PreviewHandlers) GeneratePreviews(c *gin.Context) {
	start := time.Now()

	var body GeneratePreviewsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	proj, err := h.projects.FindByID(c.Request.Context(), body.StorybookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if proj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Storybook not found"})
		return
	}

	raw, err := h.projects.GetTemplateLayout(c.Request.Context(), proj.TemplateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	doc := h.layouts.ParseOrDefault(raw, proj.TemplateID)

	set, err := h.previews.GenerateFromDocument(c.Request.Context(), body.StorybookID, doc, 0, services.PreviewOptions{
		Quality:         body.Options.Quality,
		Width:           body.Options.Width,
		GenerateBlurred: body.Options.GenerateBlurred,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Preview().Info("Raster previews generated",
		"storybookId", body.StorybookID, "pageCount", len(set.ClearURLs), "duration", time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"previews":             set,
		"rasterizedFromSource": false,
	})
}

// GetPreviews handles GET /previews/:id, re-signing rasters stored by an
// earlier generation run.
func (h *PreviewHandlers) GetPreviews(c *gin.Context) {
	storybookID := c.Param("id")
	if storybookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Storybook ID is required"})
		return
	}

	proj, err := h.projects.FindByID(c.Request.Context(), storybookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if proj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Storybook not found"})
		return
	}

	raw, err := h.projects.GetTemplateLayout(c.Request.Context(), proj.TemplateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	doc := h.layouts.ParseOrDefault(raw, proj.TemplateID)

	set, err := h.previews.GetStored(c.Request.Context(), storybookID, len(doc.Pages))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(set.ClearURLs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No previews stored for this storybook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"previews": set})
}
