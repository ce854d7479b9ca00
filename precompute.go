package prefixgz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/prefixgz/internal/segment"
	"github.com/meigma/prefixgz/internal/tarblock"
)

// Precompute recompresses the tar stream r into out as a single gzip member
// and calls emit with one Checkpoint per index state, in order.
//
// r must yield the uncompressed tar; use OpenInput to unwrap a compressed
// archive. The output always ends with the tar EOF marker, whether or not
// the input carried one. Each checkpoint is emitted before the next chunk
// is read, so records can be streamed while the run progresses. A nil emit
// discards checkpoints.
//
// Cancelling ctx stops the run between chunks; out then holds a truncated
// stream that must be discarded.
func Precompute(ctx context.Context, r io.Reader, out io.Writer, emit func(Checkpoint) error, opts ...Option) (Summary, error) {
	cfg := precomputeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &precomputer{cfg: cfg, logger: cfg.logger}
	return p.run(ctx, r, out, emit)
}

// precomputer holds state for one Precompute run.
type precomputer struct {
	cfg    precomputeConfig
	logger *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *precomputer) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// reportProgress sends a progress event if a callback is configured.
func (p *precomputer) reportProgress(stage ProgressStage, indexState, bytesIn, bytesOut uint64, done int) {
	if p.cfg.progress == nil {
		return
	}
	p.cfg.progress(ProgressEvent{
		Stage:           stage,
		IndexState:      indexState,
		BytesIn:         bytesIn,
		BytesOut:        bytesOut,
		CheckpointsDone: done,
	})
}

func (p *precomputer) run(ctx context.Context, r io.Reader, out io.Writer, emit func(Checkpoint) error) (Summary, error) {
	p.log().Info("precomputing checkpoints",
		"engine", p.cfg.engine.String(),
		"ordering", p.cfg.ordering.String())

	tr := tarblock.NewReader(r)
	seg := segment.New(tr, p.cfg.ordering)

	cp, err := newCheckpointer(out, p.cfg.engine)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		chunk, err := seg.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		p.reportProgress(StageCompressing, chunk.IndexState, cp.size, cp.sink.N, sum.Checkpoints)
		c, err := cp.add(&chunk)
		if err != nil {
			return sum, err
		}

		if emit != nil {
			if err := emit(c); err != nil {
				return sum, fmt.Errorf("emit checkpoint %s: %w", c.Key(), err)
			}
		}
		sum.Checkpoints++
		sum.Entries += uint64(chunk.Entries)

		p.log().Debug("checkpoint",
			"index_state", c.IndexState,
			"key", c.Key(),
			"entries", c.Entries,
			"prefix_size", c.PrefixSize,
			"trailer_size", len(c.Trailer))
		p.reportProgress(StageCheckpointing, c.IndexState, c.RawSize, c.PrefixSize, sum.Checkpoints)
	}

	if !tr.EndMarker() {
		p.log().Warn("input ended without a tar end-of-archive marker", "offset", tr.Offset())
	}
	if n := seg.Folded(); n > 0 {
		p.log().Warn("out-of-order entries folded into earlier index states", "count", n)
	}

	p.reportProgress(StageFinishing, 0, cp.size, cp.sink.N, sum.Checkpoints)
	d, err := cp.finish()
	if err != nil {
		return sum, err
	}

	sum.UncompressedSize = cp.size
	sum.CompressedSize = cp.sink.N
	sum.SHA256 = d
	sum.Folded = seg.Folded()

	p.log().Info("precompute complete",
		"checkpoints", sum.Checkpoints,
		"entries", sum.Entries,
		"uncompressed_size", sum.UncompressedSize,
		"compressed_size", sum.CompressedSize,
		"sha256", sum.SHA256.String())
	return sum, nil
}
