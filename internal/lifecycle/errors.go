package lifecycle

import "errors"

var (
	// ErrNotFound covers both missing recordings and recordings owned by someone else.
	ErrNotFound = errors.New("recording not found")
	// ErrNoChunks is returned when finishing a recording without uploads.
	ErrNoChunks = errors.New("no chunks uploaded")
	// ErrInvalidChunk is returned for a negative chunk index.
	ErrInvalidChunk = errors.New("invalid chunk index")
	// ErrRecordingEnded is returned for transitions out of Ended when strict transitions are on.
	ErrRecordingEnded = errors.New("recording already ended")
)
