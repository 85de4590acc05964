// Package services orchestrates storybook generation: layout interpretation,
// page content resolution, rendering, previews, and fulfillment.
package services

import (
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
)

// LayoutService interprets stored template layout JSON.
type LayoutService struct {
	logger *logging.ChanneledLogger
}

// NewLayoutService creates a new layout service.
func NewLayoutService(logger *logging.ChanneledLogger) *LayoutService {
	return &LayoutService{logger: logger}
}

// ParseOrDefault interprets raw layout JSON, upgrading legacy documents to
// the canonical shape. Unusable input yields the hardcoded minimal document
// rather than an error so one corrupt template never blocks generation.
func (s *LayoutService) ParseOrDefault(raw []byte, templateID string) *layout.Document {
	if len(raw) == 0 {
		s.logger.Layout().Warn("Template has no stored layout, using default document",
			"templateId", templateID)
		return layout.DefaultDocument()
	}

	doc, format, err := layout.Parse(raw)
	if err != nil {
		s.logger.Layout().Warn("Template layout unusable, using default document",
			"templateId", templateID, "error", err.Error())
		return layout.DefaultDocument()
	}

	if format == layout.FormatLegacy {
		s.logger.Layout().Info("Upgraded legacy layout to canonical form",
			"templateId", templateID, "pageCount", len(doc.Pages))
	}
	return doc
}
