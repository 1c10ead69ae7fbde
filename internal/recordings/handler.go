package recordings

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-scribe/backend/internal/export"
	"github.com/smart-scribe/backend/internal/middleware"
	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/pkg/queue"
	"github.com/smart-scribe/backend/pkg/response"
	"github.com/smart-scribe/backend/pkg/storage"
)

// Store is the recording persistence the handlers drive. *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, ownerID uuid.UUID, displayName string) (*models.Recording, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recording, error)
	Update(ctx context.Context, id uuid.UUID, f UpdateFields) (*models.Recording, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to string, from ...string) (*models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the audio object surface the handlers use. *storage.S3 satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*s3.HeadObjectOutput, error)
}

// Enqueuer submits pipeline jobs. *queue.Queue satisfies it.
type Enqueuer interface {
	EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error
	EnqueueResummarize(ctx context.Context, payload queue.ResummarizePayload) error
}

// Templates reports whether the owner stored a summary template.
type Templates interface {
	HasCustom(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

// Notifier pushes recording changes to connected clients.
type Notifier interface {
	RecordingUpdated(rec *models.Recording)
	RecordingDeleted(ownerID, recordingID uuid.UUID)
}

// Handler handles recording endpoints.
type Handler struct {
	repo      Store
	storage   ObjectStore
	queue     Enqueuer
	templates Templates
	notifier  Notifier
	logger    *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(repo Store, objects ObjectStore, q Enqueuer, resolver Templates, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, storage: objects, queue: q, templates: resolver, notifier: notifier, logger: logger}
}

func (h *Handler) userID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// getOwned loads the recording from the :id param and checks ownership.
// A foreign recording reads as not found so existence never leaks.
func (h *Handler) getOwned(c *gin.Context) (*models.Recording, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == models.ErrNotFound {
			response.NotFound(c, "recording not found")
		} else {
			h.logger.Error("get recording failed", zap.Error(err))
			response.Internal(c, "could not load recording")
		}
		return nil, false
	}
	if rec.OwnerID != h.userID(c) {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	return rec, true
}

func (h *Handler) publish(rec *models.Recording) {
	if h.notifier != nil && rec != nil {
		h.notifier.RecordingUpdated(rec)
	}
}

// Upload handles POST /recordings: multipart audio upload. The server streams
// the file to S3, marks the row uploaded and enqueues the processing job.
func (h *Handler) Upload(c *gin.Context) {
	ownerID := h.userID(c)

	header, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file required")
		return
	}
	if header.Size > storage.MaxAudioFileSize {
		response.BadRequest(c, "audio file too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateAudioFileType(contentType, header.Filename) {
		response.BadRequest(c, "unsupported audio type")
		return
	}

	displayName := strings.TrimSpace(c.PostForm("display_name"))
	if displayName == "" {
		displayName = strings.TrimSuffix(header.Filename, path.Ext(header.Filename))
	}
	if displayName == "" {
		displayName = "Untitled recording"
	}

	rec, err := h.repo.Create(c.Request.Context(), ownerID, displayName)
	if err != nil {
		h.logger.Error("create recording failed", zap.Error(err))
		response.Internal(c, "could not create recording")
		return
	}
	h.publish(rec)

	file, err := header.Open()
	if err != nil {
		response.BadRequest(c, "could not read audio file")
		return
	}
	defer file.Close()

	key := storage.AudioKey(ownerID.String(), rec.ID.String(), header.Filename)
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(header.Filename)
	}
	audioURL, err := h.storage.Upload(c.Request.Context(), key, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("audio upload failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		h.failRecording(c, rec.ID, "Upload failed: "+err.Error())
		response.Internal(c, "audio upload failed")
		return
	}

	uploaded := models.RecordingStatusUploaded
	updated, err := h.repo.Update(c.Request.Context(), rec.ID, UpdateFields{
		AudioKey: &key,
		AudioURL: &audioURL,
		Status:   &uploaded,
	})
	if err != nil {
		h.logger.Error("mark uploaded failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "could not update recording")
		return
	}
	rec = updated
	h.publish(rec)

	if err := h.queue.EnqueueProcessRecording(c.Request.Context(), queue.ProcessRecordingPayload{
		RecordingID: rec.ID,
		OwnerID:     ownerID,
	}); err != nil {
		h.logger.Error("enqueue processing failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		h.failRecording(c, rec.ID, "Could not queue processing: "+err.Error())
		response.Internal(c, "could not queue processing")
		return
	}

	response.Created(c, rec)
}

type generateUploadURLRequest struct {
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// GenerateUploadURL handles POST /recordings/generate-upload-url: creates the
// row and returns a pre-signed PUT URL so the client uploads directly to S3.
func (h *Handler) GenerateUploadURL(c *gin.Context) {
	ownerID := h.userID(c)

	var req generateUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename required")
		return
	}
	if !storage.ValidateAudioFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, "unsupported audio type")
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSuffix(req.Filename, path.Ext(req.Filename))
	}
	if displayName == "" {
		displayName = "Untitled recording"
	}

	rec, err := h.repo.Create(c.Request.Context(), ownerID, displayName)
	if err != nil {
		h.logger.Error("create recording failed", zap.Error(err))
		response.Internal(c, "could not create recording")
		return
	}

	key := storage.AudioKey(ownerID.String(), rec.ID.String(), req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	uploadURL, err := h.storage.GeneratePresignedUploadURL(c.Request.Context(), key, contentType, h.storage.PresignExpire())
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err))
		response.Internal(c, "could not generate upload URL")
		return
	}

	uploading := models.RecordingStatusUploading
	rec, err = h.repo.Update(c.Request.Context(), rec.ID, UpdateFields{AudioKey: &key, Status: &uploading})
	if err != nil {
		h.logger.Error("mark uploading failed", zap.Error(err))
		response.Internal(c, "could not update recording")
		return
	}
	h.publish(rec)

	response.Created(c, gin.H{
		"recording":  rec,
		"upload_url": uploadURL,
	})
}

// CompleteUpload handles POST /recordings/:id/complete-upload: the client
// finished its direct upload, verify the object and enqueue processing.
func (h *Handler) CompleteUpload(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	if rec.AudioKey == "" {
		response.BadRequest(c, "recording has no pending upload")
		return
	}
	if _, err := h.storage.HeadObject(c.Request.Context(), rec.AudioKey); err != nil {
		response.BadRequest(c, "audio object not found; upload may not have completed")
		return
	}

	rec, err := h.repo.TransitionStatus(c.Request.Context(), rec.ID, models.RecordingStatusUploaded,
		models.RecordingStatusUploading, models.RecordingStatusPending)
	if err != nil {
		switch err {
		case models.ErrNotFound:
			response.NotFound(c, "recording not found")
		case models.ErrConflict:
			response.Conflict(c, "recording is not awaiting upload")
		default:
			h.logger.Error("complete upload failed", zap.Error(err))
			response.Internal(c, "could not update recording")
		}
		return
	}
	h.publish(rec)

	if err := h.queue.EnqueueProcessRecording(c.Request.Context(), queue.ProcessRecordingPayload{
		RecordingID: rec.ID,
		OwnerID:     rec.OwnerID,
	}); err != nil {
		h.logger.Error("enqueue processing failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		h.failRecording(c, rec.ID, "Could not queue processing: "+err.Error())
		response.Internal(c, "could not queue processing")
		return
	}

	response.OK(c, rec)
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByOwner(c.Request.Context(), h.userID(c))
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "could not list recordings")
		return
	}
	if list == nil {
		list = []models.Recording{}
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

type renameRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// Rename handles PATCH /recordings/:id.
func (h *Handler) Rename(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "display_name required")
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		response.BadRequest(c, "display_name required")
		return
	}

	rec, err := h.repo.Update(c.Request.Context(), rec.ID, UpdateFields{DisplayName: &name})
	if err != nil {
		h.logger.Error("rename failed", zap.Error(err))
		response.Internal(c, "could not rename recording")
		return
	}
	h.publish(rec)
	response.OK(c, rec)
}

type transcriptRequest struct {
	Transcript string `json:"transcript" binding:"required"`
}

// SaveTranscript handles PUT /recordings/:id/transcript: the user edited the
// transcript. The edit is persisted immediately; when the owner has a template
// a re-summarization is queued so the summary catches up.
func (h *Handler) SaveTranscript(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	if !rec.IsTerminal() {
		response.Conflict(c, "recording is still processing")
		return
	}
	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "transcript required")
		return
	}

	rec, err := h.repo.Update(c.Request.Context(), rec.ID, UpdateFields{Transcript: &req.Transcript})
	if err != nil {
		h.logger.Error("save transcript failed", zap.Error(err))
		response.Internal(c, "could not save transcript")
		return
	}
	h.publish(rec)

	hasTemplate, err := h.templates.HasCustom(c.Request.Context(), rec.OwnerID)
	if err != nil {
		h.logger.Error("template lookup failed", zap.Error(err))
		response.OK(c, rec)
		return
	}
	if hasTemplate {
		if err := h.queue.EnqueueResummarize(c.Request.Context(), queue.ResummarizePayload{
			RecordingID: rec.ID,
			OwnerID:     rec.OwnerID,
		}); err != nil {
			h.logger.Error("enqueue resummarize failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		}
	}

	response.OK(c, rec)
}

// Resummarize handles POST /recordings/:id/resummarize: re-run summarization
// on the stored transcript with the current template.
func (h *Handler) Resummarize(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	if !rec.IsTerminal() {
		response.Conflict(c, "recording is still processing")
		return
	}
	if rec.Transcript == "" {
		response.BadRequest(c, "recording has no transcript")
		return
	}
	hasTemplate, err := h.templates.HasCustom(c.Request.Context(), rec.OwnerID)
	if err != nil {
		h.logger.Error("template lookup failed", zap.Error(err))
		response.Internal(c, "could not load template")
		return
	}
	if !hasTemplate {
		response.BadRequest(c, "no template configured")
		return
	}

	if err := h.queue.EnqueueResummarize(c.Request.Context(), queue.ResummarizePayload{
		RecordingID: rec.ID,
		OwnerID:     rec.OwnerID,
	}); err != nil {
		h.logger.Error("enqueue resummarize failed", zap.Error(err))
		response.Internal(c, "could not queue summarization")
		return
	}

	response.OK(c, gin.H{"queued": true})
}

// AudioURL handles GET /recordings/:id/audio-url: returns a fresh pre-signed
// playback URL. Stored URLs expire; clients call this instead of caching.
func (h *Handler) AudioURL(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}
	if rec.AudioKey == "" {
		response.NotFound(c, "recording has no audio")
		return
	}

	url, err := h.storage.GeneratePresignedDownloadURL(c.Request.Context(), rec.AudioKey, h.storage.PresignExpire())
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err))
		response.Internal(c, "could not generate audio URL")
		return
	}

	if updated, err := h.repo.Update(c.Request.Context(), rec.ID, UpdateFields{AudioURL: &url}); err == nil {
		rec = updated
		h.publish(rec)
	}

	response.OK(c, gin.H{
		"audio_url":  url,
		"expires_in": int(h.storage.PresignExpire().Seconds()),
	})
}

// Export handles GET /recordings/:id/export?kind=summary|transcript: renders
// the selected text as a DOCX attachment.
func (h *Handler) Export(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}

	kind := c.DefaultQuery("kind", "summary")
	var content string
	switch kind {
	case "summary":
		content = rec.Summary
	case "transcript":
		content = rec.Transcript
	default:
		response.BadRequest(c, "kind must be summary or transcript")
		return
	}
	if content == "" {
		response.BadRequest(c, "nothing to export yet")
		return
	}

	docPath, err := export.BuildDOCX(rec.DisplayName, content)
	if err != nil {
		h.logger.Error("docx export failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "could not build document")
		return
	}
	defer os.Remove(docPath)

	filename := sanitizeFilename(rec.DisplayName) + "-" + kind + ".docx"
	c.FileAttachment(docPath, filename)
}

// Delete handles DELETE /recordings/:id. The audio object is removed before
// the row so a failure cannot strand an unreferenced object; if the object
// delete fails the row stays and the client may retry.
func (h *Handler) Delete(c *gin.Context) {
	rec, ok := h.getOwned(c)
	if !ok {
		return
	}

	if rec.AudioKey != "" {
		if err := h.storage.DeleteObject(c.Request.Context(), rec.AudioKey); err != nil {
			h.logger.Error("delete audio object failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			response.Internal(c, "could not delete audio; try again")
			return
		}
	}

	if err := h.repo.Delete(c.Request.Context(), rec.ID); err != nil && err != models.ErrNotFound {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "could not delete recording")
		return
	}
	if h.notifier != nil {
		h.notifier.RecordingDeleted(rec.OwnerID, rec.ID)
	}
	response.NoContent(c)
}

// failRecording best-effort marks a recording failed from a request path.
func (h *Handler) failRecording(c *gin.Context, id uuid.UUID, msg string) {
	status := models.RecordingStatusError
	rec, err := h.repo.Update(c.Request.Context(), id, UpdateFields{Status: &status, LastError: &msg})
	if err != nil {
		h.logger.Error("failed to record error state", zap.Error(err), zap.String("recording_id", id.String()))
		return
	}
	h.publish(rec)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "recording"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "recording"
	}
	return b.String()
}
