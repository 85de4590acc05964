// Package handlers provides the HTTP endpoints for storybook generation.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// GenerationHandlers handles preview and fulfillment requests.
// This is a thin wrapper around FulfillmentService following the established pattern
type GenerationHandlers struct {
	fulfillmentService *services.FulfillmentService
	logger             *logging.ChanneledLogger
	perfTracker        *performance.Tracker
}

// NewGenerationHandlers creates a new generation handlers instance
func NewGenerationHandlers(fulfillmentService *services.FulfillmentService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GenerationHandlers {
	return &GenerationHandlers{
		fulfillmentService: fulfillmentService,
		logger:             logger,
		perfTracker:        perfTracker,
	}
}

// GeneratePreview handles POST /api/v1/projects/:id/preview
func (h *GenerationHandlers) GeneratePreview(c *gin.Context) {
	start := time.Now()
	projectID := c.Param("id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project ID is required"})
		return
	}

	h.logger.Fulfillment().Debug("Received preview request", "projectId", projectID)

	result, err := h.fulfillmentService.GeneratePreview(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		var refErr *services.ReferenceImageUploadError
		if errors.As(err, &refErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": refErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Fulfillment().Info("Preview request completed",
		"projectId", projectID, "duration", time.Since(start))

	status := http.StatusOK
	if !result.AlreadyFulfilled {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// FulfillRequestBody is the request body for purchase fulfillment.
type FulfillRequestBody struct {
	UserID      string `json:"userId" binding:"required"`
	NotifyEmail string `json:"notifyEmail"`
}

// FulfillPurchase handles POST /api/v1/projects/:id/fulfill
func (h *GenerationHandlers) FulfillPurchase(c *gin.Context) {
	start := time.Now()
	projectID := c.Param("id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project ID is required"})
		return
	}

	var body FulfillRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	h.logger.Fulfillment().Debug("Received fulfillment request", "projectId", projectID)

	result, err := h.fulfillmentService.FulfillPurchase(c.Request.Context(), services.FulfillRequest{
		ProjectID:   projectID,
		UserID:      body.UserID,
		NotifyEmail: body.NotifyEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		case errors.Is(err, services.ErrUnauthorizedFulfillment):
			c.JSON(http.StatusForbidden, gin.H{"error": "Fulfillment not authorized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.logger.Fulfillment().Info("Fulfillment request completed",
		"projectId", projectID, "duration", time.Since(start))

	status := http.StatusOK
	if !result.AlreadyFulfilled {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}
