// Package projects provides the project and template repository.
package projects

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fablepress/fablepress-go/internal/domain/entities/project"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// EnsureSchema creates the projects and templates tables when absent.
func (r *ProjectRepository) EnsureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			layout_json TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			template_id TEXT NOT NULL REFERENCES templates(id),
			photo_urls TEXT NOT NULL DEFAULT '[]',
			subscription_active INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			pdf_metadata TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id)`,
	}

	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply project schema: %w", err)
		}
	}
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT id, user_id, title, template_id, photo_urls, subscription_active,
		status, pdf_metadata, created_at, updated_at FROM projects WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	return scanProject(row)
}

// GetTemplateLayout returns the raw layout JSON stored on a template. The
// layout package owns interpreting it.
func (r *ProjectRepository) GetTemplateLayout(ctx context.Context, templateID string) ([]byte, error) {
	var layoutJSON string
	err := r.db.QueryRowContext(ctx,
		`SELECT layout_json FROM templates WHERE id = ?`, templateID).Scan(&layoutJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template layout: %w", err)
	}
	return []byte(layoutJSON), nil
}

func (r *ProjectRepository) Store(ctx context.Context, p *project.Project) error {
	photoURLs, err := json.Marshal(p.PhotoURLs)
	if err != nil {
		return fmt.Errorf("failed to encode photo urls: %w", err)
	}

	var metadata any
	if p.PDFMetadata != nil {
		encoded, err := json.Marshal(p.PDFMetadata)
		if err != nil {
			return fmt.Errorf("failed to encode pdf metadata: %w", err)
		}
		metadata = string(encoded)
	}

	query := `INSERT INTO projects (id, user_id, title, template_id, photo_urls,
		subscription_active, status, pdf_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query, p.ID, p.UserID, p.Title, p.TemplateID,
		string(photoURLs), boolToInt(p.SubscriptionActive), string(p.Status), metadata,
		p.CreatedAt.UTC().Format(time.RFC3339), p.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// UpdateStatusAndMetadata writes the post-generation state in one statement so
// status and artifact metadata never disagree.
func (r *ProjectRepository) UpdateStatusAndMetadata(ctx context.Context, projectID string, status project.Status, metadata *project.GenerationMetadata) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode pdf metadata: %w", err)
	}

	query := `UPDATE projects SET status = ?, pdf_metadata = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, string(status), string(encoded),
		time.Now().UTC().Format(time.RFC3339), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", projectID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm project update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s not found", projectID)
	}
	return nil
}

func (r *ProjectRepository) StoreTemplate(ctx context.Context, id, name string, layoutJSON []byte) error {
	query := `INSERT INTO templates (id, name, layout_json) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, name, string(layoutJSON)); err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

func scanProject(row *sql.Row) (*project.Project, error) {
	var p project.Project
	var photoURLs string
	var subscriptionActive int
	var status string
	var metadata sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.TemplateID, &photoURLs,
		&subscriptionActive, &status, &metadata, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	if err := json.Unmarshal([]byte(photoURLs), &p.PhotoURLs); err != nil {
		return nil, fmt.Errorf("failed to decode photo urls: %w", err)
	}
	p.SubscriptionActive = subscriptionActive != 0
	p.Status = project.Status(status)

	if metadata.Valid && metadata.String != "" {
		var m project.GenerationMetadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode pdf metadata: %w", err)
		}
		p.PDFMetadata = &m
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
