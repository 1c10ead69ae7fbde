// Package worker runs the background job loop that drives recording
// processing: dequeue a job, hand it to the pipeline, retry infra failures.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-scribe/backend/internal/pipeline"
	"github.com/smart-scribe/backend/pkg/queue"
)

// MaxConcurrentJobs bounds the number of pipeline runs in flight. A single
// transcription can poll for many minutes, so jobs must not queue behind it.
const MaxConcurrentJobs = 16

// Jobs is the queue surface the processor consumes. *queue.Queue satisfies it.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, queueKey string, job *queue.Job) error
}

// Processor consumes pipeline jobs from the queue.
type Processor struct {
	pipeline *pipeline.Pipeline
	queue    Jobs
	sem      chan struct{}
	logger   *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(p *pipeline.Pipeline, q Jobs, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{pipeline: p, queue: q, sem: make(chan struct{}, MaxConcurrentJobs), logger: logger}
}

// Process executes one job. A nil return means the job is done (including
// runs that ended by recording an error on the row); a non-nil return means
// the job never ran and should be retried.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeProcessRecording:
		var payload queue.ProcessRecordingPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.pipeline.ProcessRecording(ctx, payload.RecordingID)
	case queue.JobTypeResummarize:
		var payload queue.ResummarizePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.pipeline.Resummarize(ctx, payload.RecordingID)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the worker loop. Each dequeued job runs on its own goroutine so
// a long transcription poll never blocks other recordings; the store's status
// compare-and-swap keeps two runs off the same recording. A slot is acquired
// before dequeueing so a job is never popped without capacity to run it.
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		case p.sem <- struct{}{}:
		}

		job, queueKey, err := p.queue.Dequeue(ctx)
		if err != nil {
			<-p.sem
			if ctx.Err() != nil {
				p.logger.Info("worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			<-p.sem
			continue
		}

		wg.Add(1)
		go func(job *queue.Job, queueKey string) {
			defer wg.Done()
			defer func() { <-p.sem }()

			p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
			if err := p.Process(ctx, job); err != nil {
				p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
				time.Sleep(queue.RetryBackoff)
				if reErr := p.queue.Retry(ctx, queueKey, job); reErr != nil {
					p.logger.Error("retry enqueue failed", zap.Error(reErr))
				}
			}
		}(job, queueKey)
	}
}
