// Package lifecycle drives a recording through Active, Paused and Ended.
//
// The controller holds no state between calls: every operation loads the
// recording from the store, checks ownership and persists the outcome.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audioscribe/backend/internal/assembler"
	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/internal/transcription"
	"github.com/audioscribe/backend/pkg/metrics"
	"github.com/audioscribe/backend/pkg/storage"
)

// Store persists recordings and their chunks.
type Store interface {
	CreateRecording(ctx context.Context, userID uuid.UUID) (*models.Recording, error)
	// GetRecording returns nil, nil when the recording does not exist.
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListRecordings(ctx context.Context, userID uuid.UUID) ([]models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RecordingStatus) error
	UpdateFinalResult(ctx context.Context, id uuid.UUID, artifactKey, text, provider string) error
	AddChunk(ctx context.Context, recordingID uuid.UUID, index int, blobKey string, duration *float64) (*models.RecordingChunk, error)
	GetChunks(ctx context.Context, recordingID uuid.UUID) ([]models.RecordingChunk, error)
}

// Blobs is the blob storage the controller writes chunks to.
type Blobs interface {
	Prepare(ctx context.Context, prefix string) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Assembler concatenates chunks into an artifact.
type Assembler interface {
	Assemble(ctx context.Context, chunks []models.RecordingChunk, key string) (*assembler.Artifact, error)
}

// Options tune controller behaviour.
type Options struct {
	// StrictTransitions rejects uploads and status changes once a recording ended.
	StrictTransitions bool
}

// FinishResult is the outcome of Finish.
type FinishResult struct {
	Recording     *models.Recording
	Artifact      *assembler.Artifact
	Transcription transcription.Result
}

// Controller orchestrates the recording lifecycle.
type Controller struct {
	store     Store
	blobs     Blobs
	assembler Assembler
	gateway   transcription.Gateway
	publisher Publisher // optional
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
	logger    *zap.Logger
}

// NewController creates a lifecycle controller.
func NewController(store Store, blobs Blobs, asm Assembler, gw transcription.Gateway, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:     store,
		blobs:     blobs,
		assembler: asm,
		gateway:   gw,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// SetPublisher sets the optional event publisher.
func (c *Controller) SetPublisher(p Publisher) { c.publisher = p }

// SetMetrics sets the optional metrics sink.
func (c *Controller) SetMetrics(m *metrics.Metrics) { c.metrics = m }

// Create starts a new Active recording for userID.
func (c *Controller) Create(ctx context.Context, userID uuid.UUID) (*models.Recording, error) {
	rec, err := c.store.CreateRecording(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	if err := c.blobs.Prepare(ctx, storage.RecordingPrefix(rec.ID)); err != nil {
		return nil, fmt.Errorf("prepare chunk storage: %w", err)
	}
	c.metrics.RecordRecordingCreated()
	c.logger.Info("recording created", zap.String("recording_id", rec.ID.String()), zap.String("user_id", userID.String()))
	c.publish(ctx, rec, EventRecordingCreated, nil, "")
	return rec, nil
}

// Get returns the recording if userID owns it.
func (c *Controller) Get(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error) {
	return c.owned(ctx, recordingID, userID)
}

// List returns the caller's recordings, newest first.
func (c *Controller) List(ctx context.Context, userID uuid.UUID) ([]models.Recording, error) {
	list, err := c.store.ListRecordings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return list, nil
}

// Chunks returns the stored chunks of an owned recording in index order.
func (c *Controller) Chunks(ctx context.Context, recordingID, userID uuid.UUID) ([]models.RecordingChunk, error) {
	if _, err := c.owned(ctx, recordingID, userID); err != nil {
		return nil, err
	}
	chunks, err := c.store.GetChunks(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return assembler.Order(chunks), nil
}

// UploadChunk stores one chunk. Re-uploading an index replaces the earlier chunk.
func (c *Controller) UploadChunk(ctx context.Context, recordingID, userID uuid.UUID, index int, body io.Reader, size int64, duration *float64) (*models.RecordingChunk, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunk, index)
	}
	rec, err := c.owned(ctx, recordingID, userID)
	if err != nil {
		return nil, err
	}
	if err := c.guardEnded(rec); err != nil {
		return nil, err
	}

	key := storage.ChunkKey(recordingID, index)
	cr := &countingReader{r: body}
	if err := c.blobs.Put(ctx, key, cr, size, storage.AudioContentType); err != nil {
		return nil, fmt.Errorf("store chunk blob: %w", err)
	}
	chunk, err := c.store.AddChunk(ctx, recordingID, index, key, duration)
	if err != nil {
		return nil, fmt.Errorf("add chunk: %w", err)
	}
	c.metrics.RecordChunk(cr.n)
	c.logger.Debug("chunk stored",
		zap.String("recording_id", recordingID.String()),
		zap.Int("chunk_index", index),
		zap.Int64("bytes", cr.n),
	)
	c.publish(ctx, rec, EventChunkUploaded, &index, "")
	return chunk, nil
}

// Pause marks the recording Paused. Pausing a paused recording is a no-op.
func (c *Controller) Pause(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error) {
	return c.transition(ctx, recordingID, userID, models.RecordingStatusPaused, EventRecordingPaused)
}

// Resume marks the recording Active again.
func (c *Controller) Resume(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error) {
	return c.transition(ctx, recordingID, userID, models.RecordingStatusActive, EventRecordingResumed)
}

func (c *Controller) transition(ctx context.Context, recordingID, userID uuid.UUID, to models.RecordingStatus, ev EventType) (*models.Recording, error) {
	rec, err := c.owned(ctx, recordingID, userID)
	if err != nil {
		return nil, err
	}
	if err := c.guardEnded(rec); err != nil {
		return nil, err
	}
	if rec.Status == to {
		return rec, nil
	}
	if err := c.store.UpdateStatus(ctx, recordingID, to); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	rec.Status = to
	rec.UpdatedAt = c.now()
	c.logger.Info("recording status changed", zap.String("recording_id", recordingID.String()), zap.String("status", string(to)))
	c.publish(ctx, rec, ev, nil, "")
	return rec, nil
}

// Finish assembles the chunks, transcribes the artifact and ends the recording.
// A failing transcription provider does not fail Finish: the result is marked degraded
// and the placeholder text is stored instead.
func (c *Controller) Finish(ctx context.Context, recordingID, userID uuid.UUID) (*FinishResult, error) {
	rec, err := c.owned(ctx, recordingID, userID)
	if err != nil {
		return nil, err
	}
	if err := c.guardEnded(rec); err != nil {
		return nil, err
	}
	chunks, err := c.store.GetChunks(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	art, err := c.assembler.Assemble(ctx, chunks, storage.ArtifactKey(recordingID))
	if err != nil {
		c.logger.Error("assembly failed", zap.String("recording_id", recordingID.String()), zap.Error(err))
		return nil, fmt.Errorf("assemble recording: %w", err)
	}
	c.metrics.RecordAssembly(art.Duration.Seconds(), art.Size)

	start := c.now()
	res := transcription.Run(ctx, c.gateway, art.Key, c.logger)
	c.metrics.RecordTranscription(res.Provider, string(res.Outcome), c.now().Sub(start).Seconds())

	// The artifact and transcript exist now; persist them even if the client went away.
	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.UpdateFinalResult(persistCtx, recordingID, art.Key, res.Text, res.Provider); err != nil {
		return nil, fmt.Errorf("save final result: %w", err)
	}
	rec.Status = models.RecordingStatusEnded
	rec.AudioFilePath = art.Key
	rec.TranscriptionText = res.Text
	rec.LLMProvider = res.Provider
	rec.UpdatedAt = c.now()

	c.logger.Info("recording finished",
		zap.String("recording_id", recordingID.String()),
		zap.Int("chunks", art.Chunks),
		zap.Int64("bytes", art.Size),
		zap.String("provider", res.Provider),
		zap.String("transcription", string(res.Outcome)),
	)
	c.publish(persistCtx, rec, EventRecordingFinished, nil, string(res.Outcome))
	return &FinishResult{Recording: rec, Artifact: art, Transcription: res}, nil
}

// OpenArtifact opens the assembled audio of an ended, owned recording.
func (c *Controller) OpenArtifact(ctx context.Context, recordingID, userID uuid.UUID) (io.ReadCloser, error) {
	rec, err := c.owned(ctx, recordingID, userID)
	if err != nil {
		return nil, err
	}
	if rec.AudioFilePath == "" {
		return nil, ErrNotFound
	}
	rc, err := c.blobs.Open(ctx, rec.AudioFilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return rc, nil
}

// owned loads a recording and hides recordings of other users behind ErrNotFound.
func (c *Controller) owned(ctx context.Context, recordingID, userID uuid.UUID) (*models.Recording, error) {
	rec, err := c.store.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (c *Controller) guardEnded(rec *models.Recording) error {
	if c.opts.StrictTransitions && rec.Ended() {
		return ErrRecordingEnded
	}
	return nil
}

func (c *Controller) publish(ctx context.Context, rec *models.Recording, typ EventType, index *int, outcome string) {
	if c.publisher == nil {
		return
	}
	ev := Event{
		Type:          typ,
		RecordingID:   rec.ID,
		UserID:        rec.UserID,
		Status:        rec.Status,
		ChunkIndex:    index,
		Transcription: outcome,
		At:            c.now().UTC(),
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.Warn("publish lifecycle event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
