// Package storage keeps chunk blobs and assembled artifacts, addressed by slash-separated keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
)

const (
	// FolderRecordings is the key prefix for everything a recording owns.
	FolderRecordings = "recordings"
	// ChunkExtension matches what browsers emit from MediaRecorder.
	ChunkExtension = ".webm"
	// AudioContentType is the content type stored with chunks and artifacts.
	AudioContentType = "audio/webm"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("blob not found")

// Blobs is a flat key/value blob store.
type Blobs interface {
	// Prepare allocates the namespace under prefix. Backends without directories treat it as a no-op.
	Prepare(ctx context.Context, prefix string) error
	// Put stores body under key. Readers of key see either the previous object or the complete new one.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Open returns the object body. Caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key; missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// RecordingPrefix returns the namespace for a recording's chunks: recordings/{recording_id}.
func RecordingPrefix(recordingID uuid.UUID) string {
	return path.Join(FolderRecordings, recordingID.String())
}

// ChunkKey returns the key for one chunk blob: recordings/{recording_id}/chunk_0007.webm.
func ChunkKey(recordingID uuid.UUID, index int) string {
	return path.Join(RecordingPrefix(recordingID), fmt.Sprintf("chunk_%04d%s", index, ChunkExtension))
}

// ArtifactKey returns the key for the assembled recording: recordings/{recording_id}.webm.
func ArtifactKey(recordingID uuid.UUID) string {
	return path.Join(FolderRecordings, recordingID.String()+ChunkExtension)
}
