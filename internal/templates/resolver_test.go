package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-scribe/backend/internal/models"
)

type fakeGetter struct {
	tmpl *models.Template
	err  error
}

func (f *fakeGetter) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tmpl, nil
}

func TestResolveReturnsStoredTemplate(t *testing.T) {
	r := NewResolver(&fakeGetter{tmpl: &models.Template{Body: "# My Template"}})

	body, err := r.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "# My Template", body)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewResolver(&fakeGetter{err: models.ErrNotFound})

	body, err := r.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, body)
	assert.NotEmpty(t, body)
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := NewResolver(&fakeGetter{err: storeErr})

	_, err := r.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storeErr)
}

func TestHasCustom(t *testing.T) {
	r := NewResolver(&fakeGetter{tmpl: &models.Template{Body: "x"}})
	has, err := r.HasCustom(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, has)

	r = NewResolver(&fakeGetter{err: models.ErrNotFound})
	has, err = r.HasCustom(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, has)
}
