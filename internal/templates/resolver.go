package templates

import (
	"context"

	"github.com/google/uuid"

	"github.com/smart-scribe/backend/internal/models"
)

// Getter reads an owner's stored template.
type Getter interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Template, error)
}

// Resolver supplies the active summary template for an owner, falling back to
// the built-in default when none is stored. Store errors propagate.
type Resolver struct {
	repo Getter
}

// NewResolver creates a template resolver.
func NewResolver(repo Getter) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the owner's template body or DefaultTemplate.
func (r *Resolver) Resolve(ctx context.Context, ownerID uuid.UUID) (string, error) {
	t, err := r.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		if err == models.ErrNotFound {
			return DefaultTemplate, nil
		}
		return "", err
	}
	return t.Body, nil
}

// HasCustom reports whether the owner has stored a template of their own.
// The pipeline uses this for the explicit no-template completion path.
func (r *Resolver) HasCustom(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	_, err := r.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		if err == models.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
