package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// ProjectWriter extends the pipeline's read surface with the record creation
// the dashboard needs before generation can run.
type ProjectWriter interface {
	services.ProjectStore
	Store(ctx context.Context, p *project.Project) error
	StoreTemplate(ctx context.Context, id, name string, layoutJSON []byte) error
}

// ProjectHandlers exposes project records for the dashboard.
type ProjectHandlers struct {
	projects    ProjectWriter
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewProjectHandlers creates a new project handlers instance
func NewProjectHandlers(projects ProjectWriter, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ProjectHandlers {
	return &ProjectHandlers{
		projects:    projects,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetProject handles GET /api/v1/projects/:id
func (h *ProjectHandlers) GetProject(c *gin.Context) {
	projectID := c.Param("id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project ID is required"})
		return
	}

	proj, err := h.projects.FindByID(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if proj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.JSON(http.StatusOK, proj)
}

// CreateProjectBody is the request body for project creation.
type CreateProjectBody struct {
	UserID             string   `json:"userId" binding:"required"`
	Title              string   `json:"title" binding:"required"`
	TemplateID         string   `json:"templateId" binding:"required"`
	PhotoURLs          []string `json:"photoUrls"`
	SubscriptionActive bool     `json:"subscriptionActive"`
}

// CreateProject handles POST /api/v1/projects
func (h *ProjectHandlers) CreateProject(c *gin.Context) {
	var body CreateProjectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	now := time.Now().UTC()
	proj := &project.Project{
		ID:                 ulid.Make().String(),
		UserID:             body.UserID,
		Title:              body.Title,
		TemplateID:         body.TemplateID,
		PhotoURLs:          body.PhotoURLs,
		SubscriptionActive: body.SubscriptionActive,
		Status:             project.StatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := h.projects.Store(c.Request.Context(), proj); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.System().Info("Project created", "projectId", proj.ID, "templateId", proj.TemplateID)
	c.JSON(http.StatusCreated, proj)
}

// CreateTemplateBody is the request body for template creation. The layout is
// kept as raw JSON; the layout package interprets it at generation time.
type CreateTemplateBody struct {
	ID     string          `json:"id" binding:"required"`
	Name   string          `json:"name" binding:"required"`
	Layout json.RawMessage `json:"layout" binding:"required"`
}

// CreateTemplate handles POST /api/v1/templates
func (h *ProjectHandlers) CreateTemplate(c *gin.Context) {
	var body CreateTemplateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.projects.StoreTemplate(c.Request.Context(), body.ID, body.Name, body.Layout); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.System().Info("Template created", "templateId", body.ID)
	c.JSON(http.StatusCreated, gin.H{"id": body.ID})
}
