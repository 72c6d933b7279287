package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the recording lifecycle.
type RecordingStatus string

const (
	RecordingStatusActive RecordingStatus = "active"
	RecordingStatusPaused RecordingStatus = "paused"
	RecordingStatusEnded  RecordingStatus = "ended"
)

// Valid reports whether s is a known status.
func (s RecordingStatus) Valid() bool {
	switch s {
	case RecordingStatusActive, RecordingStatusPaused, RecordingStatusEnded:
		return true
	}
	return false
}

// Recording is one user capture session. AudioFilePath and TranscriptionText stay empty until the recording ends.
type Recording struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Status            RecordingStatus `json:"status"`
	AudioFilePath     string          `json:"audio_file_path,omitempty"`
	TranscriptionText string          `json:"transcription_text,omitempty"`
	LLMProvider       string          `json:"llm_provider,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Ended reports whether the recording reached its terminal state.
func (r *Recording) Ended() bool { return r.Status == RecordingStatusEnded }

// RecordingChunk is one uploaded piece of a recording. Chunks are never mutated by the lifecycle.
type RecordingChunk struct {
	ID              uuid.UUID `json:"id"`
	RecordingID     uuid.UUID `json:"recording_id"`
	ChunkIndex      int       `json:"chunk_index"`
	AudioBlobPath   string    `json:"audio_blob_path"`
	DurationSeconds *float64  `json:"duration_seconds"`
	UploadedAt      time.Time `json:"uploaded_at"`
}
