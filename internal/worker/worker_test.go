package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/internal/pipeline"
	"github.com/smart-scribe/backend/internal/recordings"
	"github.com/smart-scribe/backend/pkg/queue"
)

type fakeJobs struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func newFakeJobs(jobs ...*queue.Job) *fakeJobs {
	ch := make(chan *queue.Job, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	return &fakeJobs{jobs: ch}
}

func (f *fakeJobs) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case j := <-f.jobs:
		return j, queue.QueueProcess, nil
	}
}

func (f *fakeJobs) Retry(_ context.Context, _ string, job *queue.Job) error {
	f.mu.Lock()
	f.retried = append(f.retried, job)
	f.mu.Unlock()
	return nil
}

type memStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.Recording
}

func newMemStore(recs ...*models.Recording) *memStore {
	s := &memStore{recs: make(map[uuid.UUID]*models.Recording)}
	for _, r := range recs {
		cp := *r
		s.recs[r.ID] = &cp
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, id uuid.UUID, f recordings.UpdateFields) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&r.AudioURL, f.AudioURL)
	apply(&r.Transcript, f.Transcript)
	apply(&r.Summary, f.Summary)
	apply(&r.LastError, f.LastError)
	apply(&r.Status, f.Status)
	cp := *r
	return &cp, nil
}

func (s *memStore) TransitionStatus(_ context.Context, id uuid.UUID, to string, from ...string) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			cp := *r
			return &cp, nil
		}
	}
	return nil, models.ErrConflict
}

type gatedTranscriber struct {
	started int32
	gate    chan struct{}
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	atomic.AddInt32(&g.started, 1)
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "transcript", nil
}

type stubURLs struct{}

func (stubURLs) GeneratePresignedDownloadURL(context.Context, string, time.Duration) (string, error) {
	return "https://signed.example/a", nil
}
func (stubURLs) PresignExpire() time.Duration { return time.Minute }

type stubTemplates struct{}

func (stubTemplates) Resolve(context.Context, uuid.UUID) (string, error) { return "", nil }

func (stubTemplates) HasCustom(context.Context, uuid.UUID) (bool, error) { return false, nil }

type stubSummarizer struct{}

func (stubSummarizer) Summarize(context.Context, string, string) (string, error) {
	return "summary", nil
}

func processJob(t *testing.T, recordingID, ownerID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ProcessRecordingPayload{RecordingID: recordingID, OwnerID: ownerID})
	require.NoError(t, err)
	return &queue.Job{
		ID:      uuid.New().String(),
		Type:    queue.JobTypeProcessRecording,
		Payload: payload,
	}
}

// A slow transcription on one recording must not delay other recordings' jobs.
func TestRunProcessesJobsConcurrently(t *testing.T) {
	ownerID := uuid.New()
	recA := &models.Recording{ID: uuid.New(), OwnerID: ownerID, AudioKey: "a", Status: models.RecordingStatusUploaded}
	recB := &models.Recording{ID: uuid.New(), OwnerID: ownerID, AudioKey: "b", Status: models.RecordingStatusUploaded}
	store := newMemStore(recA, recB)

	tr := &gatedTranscriber{gate: make(chan struct{})}
	pipe := pipeline.New(store, stubURLs{}, tr, stubSummarizer{}, stubTemplates{}, nil, nil)
	jobs := newFakeJobs(processJob(t, recA.ID, ownerID), processJob(t, recB.ID, ownerID))
	p := NewProcessor(pipe, jobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Both transcriptions must be in flight while neither has finished.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&tr.started) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 concurrent transcriptions, got %d", atomic.LoadInt32(&tr.started))
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(tr.gate)

	// Wait for both recordings to reach a terminal state.
	deadline = time.Now().Add(2 * time.Second)
	for {
		a, _ := store.GetByID(context.Background(), recA.ID)
		b, _ := store.GetByID(context.Background(), recB.ID)
		if a.IsTerminal() && b.IsTerminal() {
			assert.Equal(t, models.RecordingStatusCompleted, a.Status)
			assert.Equal(t, models.RecordingStatusCompleted, b.Status)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recordings did not complete: a=%s b=%s", a.Status, b.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestProcessUnknownJobType(t *testing.T) {
	p := NewProcessor(nil, newFakeJobs(), nil)
	err := p.Process(context.Background(), &queue.Job{ID: "j1", Type: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}
