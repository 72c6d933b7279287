package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/pkg/database"
)

const recordingColumns = `id, user_id, status, COALESCE(audio_file_path,''), COALESCE(transcription_text,''), COALESCE(llm_provider,''), created_at, updated_at`

const chunkColumns = `id, recording_id, chunk_index, audio_blob_path, duration_seconds, uploaded_at`

// Repository handles recording and chunk persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a recordings repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var status string
	if err := row.Scan(&rec.ID, &rec.UserID, &status, &rec.AudioFilePath, &rec.TranscriptionText, &rec.LLMProvider, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = models.RecordingStatus(status)
	return &rec, nil
}

func scanChunk(row pgx.Row) (*models.RecordingChunk, error) {
	var ch models.RecordingChunk
	if err := row.Scan(&ch.ID, &ch.RecordingID, &ch.ChunkIndex, &ch.AudioBlobPath, &ch.DurationSeconds, &ch.UploadedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateRecording inserts a new Active recording.
func (r *Repository) CreateRecording(ctx context.Context, userID uuid.UUID) (*models.Recording, error) {
	const q = `INSERT INTO recordings (user_id, status) VALUES ($1, $2) RETURNING ` + recordingColumns
	rec, err := scanRecording(r.db.QueryRow(ctx, q, userID, string(models.RecordingStatusActive)))
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	return rec, nil
}

// GetRecording returns a recording by ID, or nil if there is none.
func (r *Repository) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.db.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select recording: %w", err)
	}
	return rec, nil
}

// ListRecordings returns the user's recordings, newest first.
func (r *Repository) ListRecordings(ctx context.Context, userID uuid.UUID) ([]models.Recording, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()
	list := []models.Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// UpdateStatus sets recording status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RecordingStatus) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := r.db.Exec(ctx, q, string(status), id); err != nil {
		return fmt.Errorf("update recording status: %w", err)
	}
	return nil
}

// UpdateFinalResult stores the artifact and transcript and ends the recording.
func (r *Repository) UpdateFinalResult(ctx context.Context, id uuid.UUID, artifactKey, text, provider string) error {
	const q = `UPDATE recordings SET audio_file_path = $1, transcription_text = $2, llm_provider = $3, status = $4, updated_at = NOW() WHERE id = $5`
	if _, err := r.db.Exec(ctx, q, artifactKey, text, provider, string(models.RecordingStatusEnded), id); err != nil {
		return fmt.Errorf("update recording result: %w", err)
	}
	return nil
}

// AddChunk records an uploaded chunk. A second upload of the same index replaces the first.
func (r *Repository) AddChunk(ctx context.Context, recordingID uuid.UUID, index int, blobKey string, duration *float64) (*models.RecordingChunk, error) {
	const q = `INSERT INTO recording_chunks (recording_id, chunk_index, audio_blob_path, duration_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recording_id, chunk_index) DO UPDATE SET
			audio_blob_path = EXCLUDED.audio_blob_path,
			duration_seconds = EXCLUDED.duration_seconds,
			uploaded_at = NOW()
		RETURNING ` + chunkColumns
	ch, err := scanChunk(r.db.QueryRow(ctx, q, recordingID, index, blobKey, duration))
	if err != nil {
		return nil, fmt.Errorf("insert chunk: %w", err)
	}
	return ch, nil
}

// GetChunks returns a recording's chunks ordered by index.
func (r *Repository) GetChunks(ctx context.Context, recordingID uuid.UUID) ([]models.RecordingChunk, error) {
	rows, err := r.db.Query(ctx, `SELECT `+chunkColumns+` FROM recording_chunks WHERE recording_id = $1 ORDER BY chunk_index, uploaded_at`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	var list []models.RecordingChunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		list = append(list, *ch)
	}
	return list, rows.Err()
}
