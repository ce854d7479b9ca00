package prefixgz

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/prefixgz/internal/testutil"
)

func cloneCheckpoints(cps []Checkpoint) []Checkpoint {
	out := slices.Clone(cps)
	for i := range out {
		out[i].Trailer = bytes.Clone(out[i].Trailer)
	}
	return out
}

func TestVerify(t *testing.T) {
	t.Parallel()

	for _, engine := range []Engine{EngineForked, EngineReplay} {
		for _, workers := range []int{0, 1, 4} {
			t.Run(engine.String(), func(t *testing.T) {
				t.Parallel()
				out, cps, _ := precompute(t, versionedTar(), WithEngine(engine))

				var events atomic.Int64
				err := Verify(context.Background(), bytes.NewReader(out), cps,
					WithConcurrency(workers),
					WithVerifyProgress(func(ev ProgressEvent) {
						assert.Equal(t, StageVerifying, ev.Stage)
						assert.Equal(t, len(cps), ev.CheckpointsTotal)
						events.Add(1)
					}))
				require.NoError(t, err)
				assert.Equal(t, int64(len(cps)), events.Load())
			})
		}
	}
}

func TestVerifyDecodedRecords(t *testing.T) {
	t.Parallel()

	out, cps, _ := precompute(t, testutil.Scenario())
	var buf bytes.Buffer
	enc := NewJSONEncoder(&buf)
	for _, cp := range cps {
		require.NoError(t, enc.Encode(cp))
	}

	decoded, err := DecodeRecords(&buf, RecordJSON)
	require.NoError(t, err)
	require.NoError(t, Verify(context.Background(), bytes.NewReader(out), decoded))
}

func TestVerifyEmpty(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Verify(context.Background(), bytes.NewReader(nil), nil))
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	out, cps, _ := precompute(t, versionedTar())

	tests := []struct {
		name    string
		output  func([]byte) []byte
		mutate  func([]Checkpoint)
		wantErr error
	}{
		{
			name:    "wrong digest",
			mutate:  func(c []Checkpoint) { c[0].SHA256 = digest.FromBytes([]byte("x")) },
			wantErr: ErrDigestMismatch,
		},
		{
			name:    "trailing data",
			mutate:  func(c []Checkpoint) { c[5].Trailer = append(c[5].Trailer, 0) },
			wantErr: ErrCorruption,
		},
		{
			name: "wrong crc",
			mutate: func(c []Checkpoint) {
				c[6].Trailer[len(c[6].Trailer)-8] ^= 0xff
			},
			wantErr: ErrCorruption,
		},
		{
			name: "wrong isize",
			mutate: func(c []Checkpoint) {
				c[6].Trailer[len(c[6].Trailer)-1] ^= 0x01
			},
			wantErr: ErrCorruption,
		},
		{
			name:    "raw size disagrees",
			mutate:  func(c []Checkpoint) { c[2].RawSize += BlockSize },
			wantErr: ErrCorruption,
		},
		{
			name:    "out of order",
			mutate:  func(c []Checkpoint) { c[3], c[4] = c[4], c[3] },
			wantErr: ErrCorruption,
		},
		{
			name:    "shrinking prefix",
			mutate:  func(c []Checkpoint) { c[10].PrefixSize = 1 },
			wantErr: ErrCorruption,
		},
		{
			name: "bad header",
			output: func(b []byte) []byte {
				b[9] = 0xff
				return b
			},
			wantErr: ErrCorruption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := bytes.Clone(out)
			if tt.output != nil {
				data = tt.output(data)
			}
			c := cloneCheckpoints(cps)
			if tt.mutate != nil {
				tt.mutate(c)
			}
			err := Verify(context.Background(), bytes.NewReader(data), c, WithConcurrency(2))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyTamperedTrailer(t *testing.T) {
	t.Parallel()

	out, cps, _ := precompute(t, versionedTar())
	c := cloneCheckpoints(cps)
	c[8].Trailer[0] ^= 0x55

	err := Verify(context.Background(), bytes.NewReader(out), c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruption) || errors.Is(err, ErrDigestMismatch), err.Error())
}

func TestVerifyTruncatedOutput(t *testing.T) {
	t.Parallel()

	out, cps, _ := precompute(t, versionedTar())
	err := Verify(context.Background(), bytes.NewReader(out[:30000]), cps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncatedInput) || errors.Is(err, ErrCorruption), err.Error())
}

func TestVerifyCancelled(t *testing.T) {
	t.Parallel()

	out, cps, _ := precompute(t, versionedTar())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Verify(ctx, bytes.NewReader(out), cps)
	assert.ErrorIs(t, err, context.Canceled)
}
