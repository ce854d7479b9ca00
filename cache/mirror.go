// Package cache keeps a local copy of the upstream archive's leading bytes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/prefixgz/internal/indextype"
)

const defaultDirPerm = 0o700

// Upstream returns a reader over bytes [off, off+length) of the remote archive.
type Upstream interface {
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// Mirror serves byte ranges of an append-only upstream from a local file,
// fetching only the bytes past what it already holds.
//
// Bytes once mirrored are never fetched again, so the upstream must not
// rewrite its existing content. Concurrent reads that need the file to grow
// share a single upstream request.
type Mirror struct {
	upstream Upstream
	f        *os.File
	logger   *slog.Logger
	dirPerm  os.FileMode

	mu   sync.RWMutex
	size int64

	extendGroup singleflight.Group
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger for upstream fetches.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// WithDirPerm sets the permissions used when creating the mirror's directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(m *Mirror) {
		m.dirPerm = mode
	}
}

// OpenMirror opens or creates the mirror file at path.
func OpenMirror(path string, upstream Upstream, opts ...Option) (*Mirror, error) {
	if path == "" {
		return nil, errors.New("mirror path is empty")
	}
	m := &Mirror{upstream: upstream, dirPerm: defaultDirPerm}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(path), m.dirPerm); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	m.f = f
	m.size = info.Size()
	return m, nil
}

// Size returns the number of bytes held locally.
func (m *Mirror) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// ReadRange returns bytes [off, off+length), first extending the local copy
// from upstream if it is too short.
func (m *Mirror) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("read range %d+%d: negative offset or length", off, length)
	}
	end := off + length
	if end < off {
		return nil, fmt.Errorf("read range %d+%d: %w", off, length, indextype.ErrSizeOverflow)
	}
	if err := m.ensure(ctx, end); err != nil {
		return nil, err
	}
	return io.NopCloser(io.NewSectionReader(m.f, off, length)), nil
}

// ReadAt reads from the local copy, extending it as ReadRange does.
func (m *Mirror) ReadAt(p []byte, off int64) (int, error) {
	rc, err := m.ReadRange(context.Background(), off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.ReadFull(rc, p)
}

// Close closes the local file.
func (m *Mirror) Close() error {
	return m.f.Close()
}

// ensure waits until the local copy reaches end. The shared extension
// outlives any single caller; each caller only stops waiting when its own
// ctx is done.
func (m *Mirror) ensure(ctx context.Context, end int64) error {
	for m.Size() < end {
		ch := m.extendGroup.DoChan("extend", func() (any, error) {
			return nil, m.extend(context.WithoutCancel(ctx), end)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return res.Err
			}
		}
	}
	return nil
}

// extend appends upstream bytes [size, end) to the local file.
func (m *Mirror) extend(ctx context.Context, end int64) error {
	cur := m.Size()
	if cur >= end {
		return nil
	}
	want := end - cur

	rc, err := m.upstream.ReadRange(ctx, cur, want)
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(io.NewOffsetWriter(m.f, cur), io.LimitReader(rc, want))
	if n > 0 {
		if serr := m.f.Sync(); serr != nil && err == nil {
			err = serr
		}
		if err == nil {
			m.mu.Lock()
			m.size = cur + n
			m.mu.Unlock()
		}
	}
	if err != nil {
		return fmt.Errorf("mirror bytes %d-%d: %w", cur, end-1, err)
	}
	if n < want {
		return fmt.Errorf("upstream returned %d of %d bytes at offset %d: %w", n, want, cur, indextype.ErrTruncatedInput)
	}

	m.logger.Debug("mirror extended", "from", cur, "to", cur+n)
	return nil
}
