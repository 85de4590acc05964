// Package project defines the storybook project record and its generation
// lifecycle metadata.
package project

import "time"

// Status is the generation lifecycle state of a project.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusPreviewGenerated Status = "PREVIEW_GENERATED"
	StatusPurchased        Status = "PURCHASED"
)

// GenerationMetadata is the tagged artifact record kept on a project. It
// replaces the ad-hoc JSON bag the dashboard previously spread-merged.
type GenerationMetadata struct {
	PDFPath     string    `json:"pdfPath"`
	PageCount   int       `json:"pageCount"`
	FileSize    int64     `json:"fileSize"`
	GeneratedAt time.Time `json:"generatedAt"`
	IsPreview   bool      `json:"isPreview"`
}

// Project is a user's storybook instance of a template.
type Project struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"userId"`
	Title              string              `json:"title"`
	TemplateID         string              `json:"templateId"`
	PhotoURLs          []string            `json:"photoUrls"`
	SubscriptionActive bool                `json:"subscriptionActive"`
	Status             Status              `json:"status"`
	PDFMetadata        *GenerationMetadata `json:"pdfMetadata,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// PagesAlreadyRendered reports how many content pages a prior preview run
// produced; zero means a fresh run.
func (p *Project) PagesAlreadyRendered() int {
	if p.PDFMetadata == nil || !p.PDFMetadata.IsPreview {
		return 0
	}
	// The stored count includes the cover page, which is not a resolver page.
	if p.PDFMetadata.PageCount > 0 {
		return p.PDFMetadata.PageCount - 1
	}
	return 0
}
