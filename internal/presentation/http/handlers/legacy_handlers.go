package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/services"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/pdf"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const maxUploadBytes = 20 << 20

// LegacyHandlers carries the original single-pass generation contract:
// photos and layout in, finished PDF bytes out, no project record involved.
type LegacyHandlers struct {
	layoutService *services.LayoutService
	resolver      *services.ResolverService
	renderer      *pdf.Renderer
	store         storage.ObjectStore
	logger        *logging.ChanneledLogger
}

// NewLegacyHandlers creates a new legacy handlers instance
func NewLegacyHandlers(
	layoutService *services.LayoutService,
	resolver *services.ResolverService,
	renderer *pdf.Renderer,
	store storage.ObjectStore,
	logger *logging.ChanneledLogger,
) *LegacyHandlers {
	return &LegacyHandlers{
		layoutService: layoutService,
		resolver:      resolver,
		renderer:      renderer,
		store:         store,
		logger:        logger,
	}
}

// PostData handles POST /post-data
// Multipart form: "layout" field with layout JSON, "photos" file parts.
func (h *LegacyHandlers) PostData(c *gin.Context) {
	start := time.Now()

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Multipart form is required: " + err.Error()})
		return
	}

	layoutValues := form.Value["layout"]
	if len(layoutValues) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "layout field is required"})
		return
	}

	jobID := ulid.Make().String()
	log := h.logger.WithProject(logging.ChannelFulfillment, jobID)
	log.Debug("Received legacy post-data request", "photos", len(form.File["photos"]))

	doc := h.layoutService.ParseOrDefault([]byte(layoutValues[0]), jobID)

	// Stage uploaded photos so the synthesis service can fetch them.
	var referenceURLs []string
	for i, fileHeader := range form.File["photos"] {
		if fileHeader.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds the upload limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo upload: " + err.Error()})
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo upload: " + err.Error()})
			return
		}

		objectPath := fmt.Sprintf("%s/upload-%d.png", jobID, i)
		err = h.store.Upload(c.Request.Context(), config.ReferenceBucket, objectPath, data,
			storage.UploadOptions{ContentType: "image/png", Upsert: true})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage photo: " + err.Error()})
			return
		}

		signedURL, err := h.store.CreateSignedURL(c.Request.Context(), config.ReferenceBucket, objectPath, config.SignedURLTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign photo URL: " + err.Error()})
			return
		}
		referenceURLs = append(referenceURLs, signedURL)
	}

	result, err := h.resolver.Resolve(c.Request.Context(), services.ResolveRequest{
		ProjectID:          jobID,
		Document:           doc,
		ReferenceImageURLs: referenceURLs,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, metadata, err := h.renderer.Render(doc, result.Pages, pdf.Options{OutputFormat: pdf.FormatPrint})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info("Legacy post-data request completed",
		"pageCount", metadata.PageCount,
		"fileSize", metadata.FileSize,
		"duration", time.Since(start))

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "storybook-"+jobID+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}
