// Package assembler concatenates a recording's chunk blobs into one artifact.
//
// Chunks are ordered by their caller-supplied index, never by arrival time, and
// appended byte for byte with no framing. Bytes go through a local staging file one
// chunk at a time; the artifact key is written only after every chunk was copied, so
// a failed assembly never leaves a truncated artifact behind.
package assembler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/pkg/storage"
)

var (
	// ErrBlobUnavailable means a chunk blob could not be opened or read.
	ErrBlobUnavailable = errors.New("chunk blob unavailable")
	// ErrNoChunks means there was nothing to assemble.
	ErrNoChunks = errors.New("no chunks to assemble")
)

// Blobs is the part of storage.Blobs the assembler uses.
type Blobs interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// Artifact describes a published assembly.
type Artifact struct {
	Key      string
	Size     int64
	Chunks   int
	Missing  []int // indices absent between the lowest and highest chunk
	Duration time.Duration
}

// Assembler builds artifacts from chunk blobs.
type Assembler struct {
	blobs       Blobs
	stagingDir  string
	contentType string
	logger      *zap.Logger
}

// New creates an assembler staging in stagingDir (empty = os.TempDir()).
func New(blobs Blobs, stagingDir string, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		blobs:       blobs,
		stagingDir:  stagingDir,
		contentType: storage.AudioContentType,
		logger:      logger,
	}
}

// Order returns a copy of chunks sorted by index. Equal indices keep upload order, then id order.
func Order(chunks []models.RecordingChunk) []models.RecordingChunk {
	ordered := slices.Clone(chunks)
	slices.SortStableFunc(ordered, func(a, b models.RecordingChunk) int {
		return cmp.Or(
			cmp.Compare(a.ChunkIndex, b.ChunkIndex),
			a.UploadedAt.Compare(b.UploadedAt),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return ordered
}

// Gaps returns the indices missing from an ordered chunk list.
func Gaps(ordered []models.RecordingChunk) []int {
	var missing []int
	for i := 1; i < len(ordered); i++ {
		for idx := ordered[i-1].ChunkIndex + 1; idx < ordered[i].ChunkIndex; idx++ {
			missing = append(missing, idx)
		}
	}
	return missing
}

// Assemble writes the chunks, in index order, to key.
func (a *Assembler) Assemble(ctx context.Context, chunks []models.RecordingChunk, key string) (*Artifact, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	start := time.Now()
	ordered := Order(chunks)

	staging, err := os.CreateTemp(a.stagingDir, "assemble-*"+storage.ChunkExtension)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		_ = staging.Close()
		_ = os.Remove(staging.Name())
	}()

	var size int64
	for _, ch := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := a.appendChunk(ctx, staging, ch)
		if err != nil {
			return nil, err
		}
		size += n
	}

	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}
	if err := a.blobs.Put(ctx, key, staging, size, a.contentType); err != nil {
		return nil, fmt.Errorf("publish artifact: %w", err)
	}

	art := &Artifact{
		Key:      key,
		Size:     size,
		Chunks:   len(ordered),
		Missing:  Gaps(ordered),
		Duration: time.Since(start),
	}
	if len(art.Missing) > 0 {
		a.logger.Warn("assembled recording has index gaps", zap.String("key", key), zap.Ints("missing", art.Missing))
	}
	a.logger.Info("artifact assembled",
		zap.String("key", key),
		zap.Int("chunks", art.Chunks),
		zap.Int64("size", art.Size),
		zap.Duration("took", art.Duration),
	)
	return art, nil
}

func (a *Assembler) appendChunk(ctx context.Context, w io.Writer, ch models.RecordingChunk) (int64, error) {
	rc, err := a.blobs.Open(ctx, ch.AudioBlobPath)
	if err != nil {
		return 0, fmt.Errorf("%w: chunk %d: %w", ErrBlobUnavailable, ch.ChunkIndex, err)
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, fmt.Errorf("%w: chunk %d: %w", ErrBlobUnavailable, ch.ChunkIndex, err)
	}
	return n, nil
}
