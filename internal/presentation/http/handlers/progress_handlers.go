package handlers

import (
	"net/http"

	"github.com/fablepress/fablepress-go/internal/infrastructure/messaging"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS middleware already gates browser origins.
		return true
	},
}

// ProgressHandlers upgrades dashboard clients onto the generation progress feed.
type ProgressHandlers struct {
	broadcaster *messaging.ProgressBroadcaster
	logger      *logging.ChanneledLogger
}

// NewProgressHandlers creates a new progress handlers instance
func NewProgressHandlers(broadcaster *messaging.ProgressBroadcaster, logger *logging.ChanneledLogger) *ProgressHandlers {
	return &ProgressHandlers{
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// StreamProgress handles GET /api/v1/projects/:id/progress
func (h *ProgressHandlers) StreamProgress(c *gin.Context) {
	projectID := c.Param("id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project ID is required"})
		return
	}

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.System().Warn("Websocket upgrade failed",
			"projectId", projectID, "error", err.Error())
		return
	}

	client := &messaging.ProgressClient{
		Conn:      conn,
		ProjectID: projectID,
		Send:      make(chan []byte, 16),
	}

	h.broadcaster.Register(client)
	go client.WritePump(h.broadcaster)
}
