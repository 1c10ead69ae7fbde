// Package pipeline orchestrates the lifecycle of one recording: audio
// availability → transcription → template-driven summarization. Every step
// writes through to the recording store before the next begins, so observers
// see incremental progress and a crash mid-run leaves an inspectable state.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/internal/recordings"
	"github.com/smart-scribe/backend/internal/transcriber"
)

// Store is the recording persistence the pipeline drives. It is the single
// source of truth: the pipeline holds no authoritative state of its own.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	Update(ctx context.Context, id uuid.UUID, f recordings.UpdateFields) (*models.Recording, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to string, from ...string) (*models.Recording, error)
}

// Transcriber converts a fetchable audio URL into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Summarizer condenses a transcript into a formatted document per template.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, template string) (string, error)
}

// TemplateSource supplies the owner's active template.
type TemplateSource interface {
	Resolve(ctx context.Context, ownerID uuid.UUID) (string, error)
	HasCustom(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

// AudioURLSource resolves a fresh fetchable URL from a stored audio locator.
// Stored locators outlive any one signed URL, so the pipeline resolves anew
// for every run.
type AudioURLSource interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// Notifier receives the fresh row after every store write so connected
// clients observe each transition.
type Notifier interface {
	RecordingUpdated(rec *models.Recording)
}

// Pipeline runs recording processing. Concurrency control lives in the store:
// each entry transition is a compare-and-swap on status, so a second trigger
// for the same recording loses the swap and is rejected rather than racing.
type Pipeline struct {
	store       Store
	audioURLs   AudioURLSource
	transcriber Transcriber
	summarizer  Summarizer
	templates   TemplateSource
	notifier    Notifier
	logger      *zap.Logger
}

// New creates a pipeline. notifier may be nil.
func New(store Store, audioURLs AudioURLSource, t Transcriber, s Summarizer, templates TemplateSource, notifier Notifier, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:       store,
		audioURLs:   audioURLs,
		transcriber: t,
		summarizer:  s,
		templates:   templates,
		notifier:    notifier,
		logger:      logger,
	}
}

// ProcessRecording runs the full pipeline for an uploaded recording:
// transcribe, then summarize with the owner's template. Terminal failures are
// recorded on the row (status=error, last_error=message) and not returned;
// the run "succeeds" from the scheduler's point of view even when the outcome
// is a recorded failure. A non-nil return means the run never took ownership
// of the recording and may be retried by the caller.
func (p *Pipeline) ProcessRecording(ctx context.Context, recordingID uuid.UUID) error {
	rec, err := p.store.TransitionStatus(ctx, recordingID, models.RecordingStatusTranscribing, models.RecordingStatusUploaded)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			p.logger.Debug("recording gone before processing", zap.String("recording_id", recordingID.String()))
			return nil
		case errors.Is(err, models.ErrConflict):
			p.logger.Warn("recording already being processed", zap.String("recording_id", recordingID.String()))
			return nil
		}
		return err
	}
	p.publish(rec)
	ownerID := rec.OwnerID

	audioURL, err := p.audioURLs.GeneratePresignedDownloadURL(ctx, rec.AudioKey, p.audioURLs.PresignExpire())
	if err != nil {
		p.recordFailure(ctx, recordingID, "Could not access audio: "+err.Error())
		return nil
	}
	if rec = p.update(ctx, recordingID, recordings.UpdateFields{AudioURL: &audioURL}); rec == nil {
		return nil
	}

	transcript, err := p.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		var timeout *transcriber.TimeoutError
		if errors.As(err, &timeout) {
			p.recordFailure(ctx, recordingID, "Transcription timed out: "+err.Error())
		} else {
			p.recordFailure(ctx, recordingID, "Transcription failed: "+err.Error())
		}
		return nil
	}

	summarizing := models.RecordingStatusSummarizing
	if rec = p.update(ctx, recordingID, recordings.UpdateFields{Transcript: &transcript, Status: &summarizing}); rec == nil {
		return nil
	}

	return p.summarize(ctx, recordingID, ownerID, transcript)
}

// Resummarize re-runs the summarization stage only, using the stored
// transcript (possibly edited by the user). Transcription is never repeated.
// Requires a non-empty transcript, a custom template, and a terminal status.
func (p *Pipeline) Resummarize(ctx context.Context, recordingID uuid.UUID) error {
	rec, err := p.store.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Transcript == "" {
		p.logger.Warn("resummarize skipped: empty transcript", zap.String("recording_id", recordingID.String()))
		return nil
	}
	hasTemplate, err := p.templates.HasCustom(ctx, rec.OwnerID)
	if err != nil {
		return err
	}
	if !hasTemplate {
		p.logger.Warn("resummarize skipped: no template", zap.String("recording_id", recordingID.String()))
		return nil
	}

	rec, err = p.store.TransitionStatus(ctx, recordingID, models.RecordingStatusSummarizing,
		models.RecordingStatusCompleted, models.RecordingStatusError)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil
		case errors.Is(err, models.ErrConflict):
			p.logger.Warn("recording already being processed", zap.String("recording_id", recordingID.String()))
			return nil
		}
		return err
	}
	p.publish(rec)

	return p.summarize(ctx, recordingID, rec.OwnerID, rec.Transcript)
}

// summarize runs the shared summarization tail: template check, provider
// call, terminal write. The recording is already in status summarizing.
func (p *Pipeline) summarize(ctx context.Context, recordingID, ownerID uuid.UUID, transcript string) error {
	hasTemplate, err := p.templates.HasCustom(ctx, ownerID)
	if err != nil {
		p.recordFailure(ctx, recordingID, "Could not load template: "+err.Error())
		return nil
	}
	completed := models.RecordingStatusCompleted
	empty := ""
	if !hasTemplate {
		sentinel := models.NoTemplateSummary
		p.update(ctx, recordingID, recordings.UpdateFields{Summary: &sentinel, Status: &completed, LastError: &empty})
		return nil
	}

	template, err := p.templates.Resolve(ctx, ownerID)
	if err != nil {
		p.recordFailure(ctx, recordingID, "Could not load template: "+err.Error())
		return nil
	}

	summary, err := p.summarizer.Summarize(ctx, transcript, template)
	if err != nil {
		p.recordFailure(ctx, recordingID, "Summarization failed: "+err.Error())
		return nil
	}

	p.update(ctx, recordingID, recordings.UpdateFields{Summary: &summary, Status: &completed, LastError: &empty})
	return nil
}

// update applies a partial write and publishes the fresh row. A missing row
// (concurrent delete) ends the run silently; any other write failure is
// recorded as the run's terminal error.
func (p *Pipeline) update(ctx context.Context, recordingID uuid.UUID, f recordings.UpdateFields) *models.Recording {
	rec, err := p.store.Update(ctx, recordingID, f)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.logger.Debug("recording deleted mid-run", zap.String("recording_id", recordingID.String()))
			return nil
		}
		p.recordFailure(ctx, recordingID, "Could not save progress: "+err.Error())
		return nil
	}
	p.publish(rec)
	return rec
}

// recordFailure marks the run failed on the row itself. Failures writing the
// error state are logged and swallowed: there is no further sink to report to.
func (p *Pipeline) recordFailure(ctx context.Context, recordingID uuid.UUID, msg string) {
	p.logger.Error("pipeline run failed", zap.String("recording_id", recordingID.String()), zap.String("reason", msg))
	status := models.RecordingStatusError
	rec, err := p.store.Update(ctx, recordingID, recordings.UpdateFields{Status: &status, LastError: &msg})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			p.logger.Error("failed to record pipeline error", zap.Error(err), zap.String("recording_id", recordingID.String()))
		}
		return
	}
	p.publish(rec)
}

func (p *Pipeline) publish(rec *models.Recording) {
	if p.notifier != nil && rec != nil {
		p.notifier.RecordingUpdated(rec)
	}
}
