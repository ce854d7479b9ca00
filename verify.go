package prefixgz

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Verify checks every checkpoint against the main output.
//
// Checkpoints must be in the order Precompute emitted them: strictly
// increasing index states with non-decreasing prefix sizes. For each one the
// composed stream must start with GzipHeader, decode as exactly one gzip
// member whose CRC-32 and size match, hold whole tar blocks ending in the
// EOF marker, and hash to the recorded sha256. Any failure is returned as
// ErrCorruption or ErrDigestMismatch.
func Verify(ctx context.Context, output io.ReaderAt, checkpoints []Checkpoint, opts ...VerifyOption) error {
	cfg := verifyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = runtime.GOMAXPROCS(0)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if err := checkOrder(checkpoints); err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		return nil
	}
	if err := checkHeader(output); err != nil {
		return err
	}

	log.Info("verifying checkpoints", "count", len(checkpoints), "concurrency", cfg.concurrency)

	sem := semaphore.NewWeighted(int64(cfg.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	var done atomic.Int64
	for i := range checkpoints {
		cp := checkpoints[i]
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			size, err := verifyOne(output, &cp)
			if err != nil {
				return fmt.Errorf("checkpoint %s: %w", cp.Key(), err)
			}
			n := done.Add(1)
			log.Debug("checkpoint verified",
				"key", cp.Key(),
				"prefix_size", cp.PrefixSize,
				"uncompressed_size", size)
			if cfg.progress != nil {
				cfg.progress(ProgressEvent{
					Stage:            StageVerifying,
					IndexState:       cp.IndexState,
					BytesIn:          size,
					BytesOut:         cp.Size(),
					CheckpointsDone:  int(n),
					CheckpointsTotal: len(checkpoints),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Info("verification complete", "count", len(checkpoints))
	return nil
}

func checkOrder(checkpoints []Checkpoint) error {
	for i := 1; i < len(checkpoints); i++ {
		prev, cur := &checkpoints[i-1], &checkpoints[i]
		if cur.IndexState <= prev.IndexState {
			return fmt.Errorf("checkpoint %s follows %s: %w", cur.Key(), prev.Key(), ErrCorruption)
		}
		if cur.PrefixSize < prev.PrefixSize {
			return fmt.Errorf("checkpoint %s prefix %d shrinks from %d: %w",
				cur.Key(), cur.PrefixSize, prev.PrefixSize, ErrCorruption)
		}
	}
	return nil
}

func checkHeader(output io.ReaderAt) error {
	var h [len(GzipHeader)]byte
	if _, err := output.ReadAt(h[:], 0); err != nil {
		return fmt.Errorf("read gzip header: %w", ErrCorruption)
	}
	if h != GzipHeader {
		return fmt.Errorf("unexpected gzip header %x: %w", h, ErrCorruption)
	}
	return nil
}

// verifyOne decodes the composed stream for cp and returns its uncompressed
// size.
func verifyOne(output io.ReaderAt, cp *Checkpoint) (uint64, error) {
	h := sha256.New()
	br := bufio.NewReader(io.TeeReader(Reconstruct(output, *cp), h))

	zr, err := gzip.NewReader(br)
	if err != nil {
		return 0, fmt.Errorf("open gzip member: %v: %w", err, ErrCorruption)
	}
	zr.Multistream(false)

	var tail zeroTail
	if _, err := io.Copy(&tail, zr); err != nil {
		if errors.Is(err, ErrTruncatedInput) {
			return 0, err
		}
		return 0, fmt.Errorf("decompress: %v: %w", err, ErrCorruption)
	}

	extra, err := io.Copy(io.Discard, br)
	if err != nil {
		return 0, err
	}
	if extra > 0 {
		return 0, fmt.Errorf("%d bytes after the gzip member: %w", extra, ErrCorruption)
	}

	switch {
	case tail.n%BlockSize != 0:
		return 0, fmt.Errorf("uncompressed size %d is not a multiple of %d: %w", tail.n, BlockSize, ErrCorruption)
	case tail.n-tail.last < EOFMarkerSize:
		return 0, fmt.Errorf("stream does not end with the tar EOF marker: %w", ErrCorruption)
	case cp.RawSize != 0 && tail.n != cp.RawSize+EOFMarkerSize:
		return 0, fmt.Errorf("uncompressed size %d, want %d: %w", tail.n, cp.RawSize+EOFMarkerSize, ErrCorruption)
	}

	if got := digest.NewDigest(digest.SHA256, h); got != cp.SHA256 {
		return 0, fmt.Errorf("sha256 is %s, recorded %s: %w", got.Encoded(), cp.SHA256.Encoded(), ErrDigestMismatch)
	}
	return tail.n, nil
}

// zeroTail counts bytes and remembers where the last non-zero byte ended.
type zeroTail struct {
	n    uint64
	last uint64
}

func (z *zeroTail) Write(p []byte) (int, error) {
	if i := lastNonZero(p); i >= 0 {
		z.last = z.n + uint64(i) + 1
	}
	z.n += uint64(len(p))
	return len(p), nil
}

func lastNonZero(p []byte) int {
	trimmed := bytes.TrimRight(p, "\x00")
	return len(trimmed) - 1
}
