package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/backend/internal/models"
)

// EventType names a lifecycle change.
type EventType string

const (
	EventRecordingCreated  EventType = "recording.created"
	EventChunkUploaded     EventType = "recording.chunk_uploaded"
	EventRecordingPaused   EventType = "recording.paused"
	EventRecordingResumed  EventType = "recording.resumed"
	EventRecordingFinished EventType = "recording.finished"
)

// Event is published after a lifecycle change was persisted.
type Event struct {
	Type          EventType              `json:"type"`
	RecordingID   uuid.UUID              `json:"recording_id"`
	UserID        uuid.UUID              `json:"user_id"`
	Status        models.RecordingStatus `json:"status"`
	ChunkIndex    *int                   `json:"chunk_index,omitempty"`
	Transcription string                 `json:"transcription_status,omitempty"`
	At            time.Time              `json:"at"`
}

// Publisher fans events out to listeners. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
