package recordings

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smart-scribe/backend/internal/models"
)

const recordingColumns = `id, owner_id, display_name, COALESCE(audio_key,''), COALESCE(audio_url,''),
	COALESCE(transcript,''), COALESCE(summary,''), COALESCE(last_error,''), status, created_at, updated_at`

// UpdateFields holds a partial recording update. Nil fields are left untouched.
// The whole set is applied in a single UPDATE so readers never observe a
// half-applied change.
type UpdateFields struct {
	DisplayName *string
	AudioKey    *string
	AudioURL    *string
	Transcript  *string
	Summary     *string
	LastError   *string
	Status      *string
}

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.DisplayName, &rec.AudioKey, &rec.AudioURL,
		&rec.Transcript, &rec.Summary, &rec.LastError, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new recording with status pending.
func (r *Repository) Create(ctx context.Context, ownerID uuid.UUID, displayName string) (*models.Recording, error) {
	q := `INSERT INTO recordings (owner_id, display_name, status)
		VALUES ($1, $2, $3)
		RETURNING ` + recordingColumns
	return scanRecording(r.pool.QueryRow(ctx, q, ownerID, displayName, models.RecordingStatusPending))
}

// GetByID returns a recording by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.pool.QueryRow(ctx, q, id))
}

// ListByOwner returns all recordings for an owner, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.DisplayName, &rec.AudioKey, &rec.AudioURL,
			&rec.Transcript, &rec.Summary, &rec.LastError, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Update applies a partial field update atomically and returns the fresh row.
// Returns models.ErrNotFound when the row was deleted concurrently.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, f UpdateFields) (*models.Recording, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	add := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("display_name", f.DisplayName)
	add("audio_key", f.AudioKey)
	add("audio_url", f.AudioURL)
	add("transcript", f.Transcript)
	add("summary", f.Summary)
	add("last_error", f.LastError)
	add("status", f.Status)

	q := `UPDATE recordings SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + recordingColumns
	return scanRecording(r.pool.QueryRow(ctx, q, args...))
}

// TransitionStatus performs a guarded status transition: the update applies only
// when the current status is one of from. Returns models.ErrConflict when
// another run holds the recording and models.ErrNotFound when the row is gone.
// This compare-and-swap is what enforces at-most-one-run-per-recording.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, to string, from ...string) (*models.Recording, error) {
	q := `UPDATE recordings SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id, to, from))
	if err == models.ErrNotFound {
		// Row missing vs CAS lost: look at the row to tell them apart.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, models.ErrConflict
		}
		return nil, models.ErrNotFound
	}
	return rec, err
}

// Delete removes the metadata row. Callers must have released the audio object
// first (see Handler.Delete for the two-phase ordering).
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
