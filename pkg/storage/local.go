package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// Local stores blobs as files below a root directory.
type Local struct {
	root   string
	logger *zap.Logger
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, logger *zap.Logger) (*Local, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	logger.Info("local blob storage ready", zap.String("root", root))
	return &Local{root: root, logger: logger}, nil
}

// path maps a key into the root. Cleaning against "/" keeps ".." segments from escaping it.
func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(path.Clean("/"+key)))
}

// Prepare creates the directory for prefix.
func (l *Local) Prepare(_ context.Context, prefix string) error {
	if err := os.MkdirAll(l.path(prefix), 0o750); err != nil {
		return fmt.Errorf("prepare %s: %w", prefix, err)
	}
	return nil
}

// Put writes into a temp file next to the target and renames it into place.
func (l *Local) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (err error) {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, contextReader{ctx: ctx, r: body}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("put %s: sync: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("put %s: close: %w", key, err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("put %s: rename: %w", key, err)
	}
	return nil
}

// Open opens the file for key.
func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the file for key.
func (l *Local) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
