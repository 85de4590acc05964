package handlers

import (
	"net/http"
	"strings"

	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/security"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
	"github.com/fablepress/fablepress-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// FileHandlers serves stored artifacts behind signed download tokens.
type FileHandlers struct {
	store  storage.ObjectStore
	logger *logging.ChanneledLogger
}

// NewFileHandlers creates a new file handlers instance
func NewFileHandlers(store storage.ObjectStore, logger *logging.ChanneledLogger) *FileHandlers {
	return &FileHandlers{
		store:  store,
		logger: logger,
	}
}

// ServeFile handles GET /files/:bucket/*path
// The token query parameter must grant exactly the requested object.
func (h *FileHandlers) ServeFile(c *gin.Context) {
	bucket := c.Param("bucket")
	objectPath := strings.TrimPrefix(c.Param("path"), "/")
	token := c.Query("token")

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Download token is required"})
		return
	}

	grantedBucket, grantedPath, err := security.ValidateArtifactToken(token, config.SignedURLSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired download token"})
		return
	}
	if grantedBucket != bucket || grantedPath != objectPath {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token does not grant access to this object"})
		return
	}

	data, err := h.store.Download(c.Request.Context(), bucket, objectPath)
	if err != nil {
		h.logger.Storage().Warn("Signed download failed",
			"bucket", bucket, "path", objectPath, "error", err.Error())
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}

	c.Data(http.StatusOK, contentTypeFor(objectPath), data)
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
