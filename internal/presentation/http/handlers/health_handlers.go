package handlers

import (
	"net/http"
	"time"

	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/performance"
	"github.com/fablepress/fablepress-go/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
)

// HealthHandlers reports process and dependency health.
type HealthHandlers struct {
	db          *database.Database
	perfTracker *performance.Tracker
	startedAt   time.Time
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(db *database.Database, perfTracker *performance.Tracker) *HealthHandlers {
	return &HealthHandlers{
		db:          db,
		perfTracker: perfTracker,
		startedAt:   time.Now(),
	}
}

// Health handles GET /api/v1/health
func (h *HealthHandlers) Health(c *gin.Context) {
	dbStatus := "ok"
	if err := h.db.Conn.Ping(); err != nil {
		dbStatus = "unreachable"
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   dbStatus,
		"database": h.db.GetConnectionInfo(),
		"uptime":   time.Since(h.startedAt).String(),
		"perf":     h.perfTracker.GetOverallStats(),
	})
}
