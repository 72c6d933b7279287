package recordings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audioscribe/backend/internal/lifecycle"
	"github.com/audioscribe/backend/internal/middleware"
	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/pkg/response"
	"github.com/audioscribe/backend/pkg/storage"
)

// multipartOverhead is the slack allowed on top of the chunk itself for form fields and boundaries.
const multipartOverhead = 1 << 20

// Lifecycle is the recording lifecycle the handler drives.
type Lifecycle interface {
	Create(ctx context.Context, userID uuid.UUID) (*models.Recording, error)
	Get(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Recording, error)
	Chunks(ctx context.Context, recordingID, userID uuid.UUID) ([]models.RecordingChunk, error)
	UploadChunk(ctx context.Context, recordingID, userID uuid.UUID, index int, body io.Reader, size int64, duration *float64) (*models.RecordingChunk, error)
	Pause(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error)
	Resume(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error)
	Finish(ctx context.Context, recordingID, userID uuid.UUID) (*lifecycle.FinishResult, error)
	OpenArtifact(ctx context.Context, recordingID, userID uuid.UUID) (io.ReadCloser, error)
}

// RecordingResponse is the API view of a recording.
type RecordingResponse struct {
	ID                uuid.UUID `json:"id"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	AudioFilePath     *string   `json:"audio_file_path"`
	TranscriptionText *string   `json:"transcription_text"`
	LLMProvider       string    `json:"llm_provider,omitempty"`
}

// CreateRecordingResponse is the body of POST /recordings.
type CreateRecordingResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkUploadResponse acknowledges a stored chunk.
type ChunkUploadResponse struct {
	Message    string `json:"message"`
	ChunkIndex int    `json:"chunk_index"`
}

// ChunkResponse is one entry of the chunk manifest.
type ChunkResponse struct {
	ChunkIndex      int       `json:"chunk_index"`
	DurationSeconds *float64  `json:"duration_seconds"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// FinishResponse is the body of POST /recordings/:id/finish.
type FinishResponse struct {
	Message             string `json:"message"`
	Transcription       string `json:"transcription"`
	TranscriptionStatus string `json:"transcription_status"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toResponse(rec *models.Recording) RecordingResponse {
	return RecordingResponse{
		ID:                rec.ID,
		Status:            string(rec.Status),
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		AudioFilePath:     optional(rec.AudioFilePath),
		TranscriptionText: optional(rec.TranscriptionText),
		LLMProvider:       rec.LLMProvider,
	}
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	lc            Lifecycle
	maxChunkBytes int64
	logger        *zap.Logger
}

// NewHandler creates a recordings handler. Chunks above maxChunkBytes are rejected.
func NewHandler(lc Lifecycle, maxChunkBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{lc: lc, maxChunkBytes: maxChunkBytes, logger: logger}
}

// params resolves the caller and the :id path parameter. A malformed id is reported as not found.
func (h *Handler) params(c *gin.Context) (recordingID, userID uuid.UUID, ok bool) {
	userID, ok = middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	recordingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Recording not found")
		return uuid.Nil, uuid.Nil, false
	}
	return recordingID, userID, true
}

func (h *Handler) writeError(c *gin.Context, op string, recordingID uuid.UUID, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		response.NotFound(c, "Recording not found")
	case errors.Is(err, lifecycle.ErrNoChunks):
		response.BadRequest(c, "No audio chunks found for this recording")
	case errors.Is(err, lifecycle.ErrInvalidChunk):
		response.BadRequest(c, "chunk_index must be a non-negative integer")
	case errors.Is(err, lifecycle.ErrRecordingEnded):
		response.Conflict(c, "Recording already ended")
	default:
		h.logger.Error(op+" failed", zap.String("recording_id", recordingID.String()), zap.Error(err))
		_ = c.Error(err)
		response.Internal(c, "failed to "+op)
	}
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.lc.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "list recordings", uuid.Nil, err)
		return
	}
	out := make([]RecordingResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	response.OK(c, out)
}

// Create handles POST /recordings.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	rec, err := h.lc.Create(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "create recording", uuid.Nil, err)
		return
	}
	response.Created(c, CreateRecordingResponse{ID: rec.ID, Status: string(rec.Status), CreatedAt: rec.CreatedAt})
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	rec, err := h.lc.Get(c.Request.Context(), recordingID, userID)
	if err != nil {
		h.writeError(c, "get recording", recordingID, err)
		return
	}
	response.OK(c, toResponse(rec))
}

// UploadChunk handles POST /recordings/:id/chunks (multipart: chunk_index, audio_chunk, optional duration_seconds).
func (h *Handler) UploadChunk(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkBytes+multipartOverhead)

	fh, err := c.FormFile("audio_chunk")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(c, "audio chunk too large")
			return
		}
		response.BadRequest(c, "audio_chunk file is required")
		return
	}
	if fh.Size > h.maxChunkBytes {
		response.TooLarge(c, "audio chunk too large")
		return
	}
	index, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil {
		response.BadRequest(c, "chunk_index must be a non-negative integer")
		return
	}
	var duration *float64
	if v := c.PostForm("duration_seconds"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			response.BadRequest(c, "duration_seconds must be a non-negative number")
			return
		}
		duration = &d
	}

	f, err := fh.Open()
	if err != nil {
		h.writeError(c, "read audio chunk", recordingID, err)
		return
	}
	defer f.Close()

	if _, err := h.lc.UploadChunk(c.Request.Context(), recordingID, userID, index, f, fh.Size, duration); err != nil {
		h.writeError(c, "upload chunk", recordingID, err)
		return
	}
	response.OK(c, ChunkUploadResponse{Message: "Chunk uploaded successfully", ChunkIndex: index})
}

// Chunks handles GET /recordings/:id/chunks.
func (h *Handler) Chunks(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	chunks, err := h.lc.Chunks(c.Request.Context(), recordingID, userID)
	if err != nil {
		h.writeError(c, "list chunks", recordingID, err)
		return
	}
	out := make([]ChunkResponse, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, ChunkResponse{ChunkIndex: ch.ChunkIndex, DurationSeconds: ch.DurationSeconds, UploadedAt: ch.UploadedAt})
	}
	response.OK(c, out)
}

// Pause handles PATCH /recordings/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	if _, err := h.lc.Pause(c.Request.Context(), recordingID, userID); err != nil {
		h.writeError(c, "pause recording", recordingID, err)
		return
	}
	response.Message(c, "Recording paused")
}

// Resume handles PATCH /recordings/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	if _, err := h.lc.Resume(c.Request.Context(), recordingID, userID); err != nil {
		h.writeError(c, "resume recording", recordingID, err)
		return
	}
	response.Message(c, "Recording resumed")
}

// Finish handles POST /recordings/:id/finish.
func (h *Handler) Finish(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	res, err := h.lc.Finish(c.Request.Context(), recordingID, userID)
	if err != nil {
		h.writeError(c, "finish recording", recordingID, err)
		return
	}
	response.OK(c, FinishResponse{
		Message:             "Recording finished",
		Transcription:       res.Transcription.Text,
		TranscriptionStatus: string(res.Transcription.Outcome),
	})
}

// Audio handles GET /recordings/:id/audio and streams the assembled artifact.
func (h *Handler) Audio(c *gin.Context) {
	recordingID, userID, ok := h.params(c)
	if !ok {
		return
	}
	rc, err := h.lc.OpenArtifact(c.Request.Context(), recordingID, userID)
	if err != nil {
		h.writeError(c, "open audio", recordingID, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, storage.AudioContentType, rc, map[string]string{
		"Content-Disposition": `inline; filename="` + recordingID.String() + storage.ChunkExtension + `"`,
	})
}
