package templates

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smart-scribe/backend/internal/models"
)

// Repository handles template persistence. One template per owner,
// create/replace only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a templates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByOwner returns the owner's template, or models.ErrNotFound when none is stored.
func (r *Repository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Template, error) {
	const q = `SELECT owner_id, body, updated_at FROM templates WHERE owner_id = $1`
	var t models.Template
	err := r.pool.QueryRow(ctx, q, ownerID).Scan(&t.OwnerID, &t.Body, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Upsert creates or replaces the owner's template.
func (r *Repository) Upsert(ctx context.Context, ownerID uuid.UUID, body string) (*models.Template, error) {
	const q = `INSERT INTO templates (owner_id, body) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
		RETURNING owner_id, body, updated_at`
	var t models.Template
	err := r.pool.QueryRow(ctx, q, ownerID, body).Scan(&t.OwnerID, &t.Body, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
