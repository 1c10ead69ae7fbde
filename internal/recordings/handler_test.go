package recordings

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smart-scribe/backend/internal/middleware"
	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	mu          sync.Mutex
	recs        map[uuid.UUID]*models.Recording
	failUpdates bool
}

func newFakeStore(recs ...*models.Recording) *fakeStore {
	s := &fakeStore{recs: make(map[uuid.UUID]*models.Recording)}
	for _, r := range recs {
		cp := *r
		s.recs[r.ID] = &cp
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, ownerID uuid.UUID, displayName string) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &models.Recording{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		DisplayName: displayName,
		Status:      models.RecordingStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.recs[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Recording
	for _, r := range s.recs {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, id uuid.UUID, f UpdateFields) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return nil, errors.New("write refused")
	}
	r, ok := s.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&r.DisplayName, f.DisplayName)
	apply(&r.AudioKey, f.AudioKey)
	apply(&r.AudioURL, f.AudioURL)
	apply(&r.Transcript, f.Transcript)
	apply(&r.Summary, f.Summary)
	apply(&r.LastError, f.LastError)
	apply(&r.Status, f.Status)
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, id uuid.UUID, to string, from ...string) (*models.Recording, error) {
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

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.recs, id)
	return nil
}

// stubObjects is an in-memory ObjectStore.
type stubObjects struct {
	uploadURL   string
	downloadURL string
	uploadErr   error
	deleteErr   error
	headErr     error
	deleted     []string
}

func (f *stubObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	_, _ = io.Copy(io.Discard, body)
	return f.uploadURL + "/" + key, nil
}

func (f *stubObjects) GeneratePresignedUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return f.uploadURL + "/put/" + key, nil
}

func (f *stubObjects) GeneratePresignedDownloadURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return f.downloadURL, nil
}

func (f *stubObjects) PresignExpire() time.Duration { return 15 * time.Minute }

func (f *stubObjects) DeleteObject(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *stubObjects) HeadObject(_ context.Context, _ string) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

type fakeEnqueuer struct {
	mu          sync.Mutex
	processed   []queue.ProcessRecordingPayload
	resummarize []queue.ResummarizePayload
	err         error
}

func (f *fakeEnqueuer) EnqueueProcessRecording(_ context.Context, p queue.ProcessRecordingPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.processed = append(f.processed, p)
	return nil
}

func (f *fakeEnqueuer) EnqueueResummarize(_ context.Context, p queue.ResummarizePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resummarize = append(f.resummarize, p)
	return nil
}

type fakeTemplates struct {
	hasCustom bool
	err       error
}

func (f *fakeTemplates) HasCustom(context.Context, uuid.UUID) (bool, error) {
	return f.hasCustom, f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	updated []models.Recording
	deleted []uuid.UUID
}

func (f *fakeNotifier) RecordingUpdated(rec *models.Recording) {
	f.mu.Lock()
	f.updated = append(f.updated, *rec)
	f.mu.Unlock()
}

func (f *fakeNotifier) RecordingDeleted(_, recordingID uuid.UUID) {
	f.mu.Lock()
	f.deleted = append(f.deleted, recordingID)
	f.mu.Unlock()
}

func withUser(ownerID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, ownerID)
		c.Next()
	}
}

func multipartAudio(t *testing.T, displayName, filename string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("audio-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("display_name", displayName))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadUpdateFailureReturnsServerError(t *testing.T) {
	ownerID := uuid.New()
	store := newFakeStore()
	store.failUpdates = true
	objects := &stubObjects{uploadURL: "https://bucket"}
	enq := &fakeEnqueuer{}
	h := NewHandler(store, objects, enq, &fakeTemplates{}, &fakeNotifier{}, zap.NewNop())

	router := gin.New()
	router.POST("/recordings", withUser(ownerID), h.Upload)

	body, contentType := multipartAudio(t, "Standup", "take.webm")
	req := httptest.NewRequest(http.MethodPost, "/recordings", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	// Must answer 500 cleanly when the uploaded-state write fails.
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "could not update recording")
	assert.Empty(t, enq.processed, "no job may be queued for a row that was never marked uploaded")
}

func TestUploadHappyPathEnqueues(t *testing.T) {
	ownerID := uuid.New()
	store := newFakeStore()
	objects := &stubObjects{uploadURL: "https://bucket"}
	enq := &fakeEnqueuer{}
	notifier := &fakeNotifier{}
	h := NewHandler(store, objects, enq, &fakeTemplates{}, notifier, zap.NewNop())

	router := gin.New()
	router.POST("/recordings", withUser(ownerID), h.Upload)

	body, contentType := multipartAudio(t, "Standup", "take.webm")
	req := httptest.NewRequest(http.MethodPost, "/recordings", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, enq.processed, 1)

	rec, err := store.GetByID(context.Background(), enq.processed[0].RecordingID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusUploaded, rec.Status)
	assert.NotEmpty(t, rec.AudioKey)
}

func TestAudioURLRefreshIsPublished(t *testing.T) {
	ownerID := uuid.New()
	rec := &models.Recording{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		AudioKey: "audio/o/r.webm",
		Status:   models.RecordingStatusCompleted,
	}
	store := newFakeStore(rec)
	objects := &stubObjects{downloadURL: "https://signed.example/fresh"}
	notifier := &fakeNotifier{}
	h := NewHandler(store, objects, &fakeEnqueuer{}, &fakeTemplates{}, notifier, zap.NewNop())

	router := gin.New()
	router.GET("/recordings/:id/audio-url", withUser(ownerID), h.AudioURL)

	req := httptest.NewRequest(http.MethodGet, "/recordings/"+rec.ID.String()+"/audio-url", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://signed.example/fresh")

	require.NotEmpty(t, notifier.updated, "subscribed clients must see the refreshed audio URL")
	last := notifier.updated[len(notifier.updated)-1]
	assert.Equal(t, rec.ID, last.ID)
	assert.Equal(t, "https://signed.example/fresh", last.AudioURL)
}

func TestDeleteAbortsWhenObjectDeleteFails(t *testing.T) {
	ownerID := uuid.New()
	rec := &models.Recording{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		AudioKey: "audio/o/r.webm",
		Status:   models.RecordingStatusCompleted,
	}
	store := newFakeStore(rec)
	objects := &stubObjects{deleteErr: errors.New("s3 unavailable")}
	notifier := &fakeNotifier{}
	h := NewHandler(store, objects, &fakeEnqueuer{}, &fakeTemplates{}, notifier, zap.NewNop())

	router := gin.New()
	router.DELETE("/recordings/:id", withUser(ownerID), h.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/recordings/"+rec.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, err := store.GetByID(context.Background(), rec.ID)
	assert.NoError(t, err, "row must survive when the audio object could not be deleted")
	assert.Empty(t, notifier.deleted)
}
