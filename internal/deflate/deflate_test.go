package deflate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letters returns n pseudo-random bytes from a 16-letter alphabet using the
// classic ANSI C LCG, seeded with 1.
func letters(n int) []byte {
	out := make([]byte, n)
	s := uint32(1)
	for i := range out {
		s = s*1103515245 + 12345
		out[i] = 'a' + byte((s>>16)%16)
	}
	return out
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func compress(t *testing.T, level int, chunks ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, level)
	require.NoError(t, err)
	for _, c := range chunks {
		_, err := w.Write(c)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func inflate(t *testing.T, b []byte) []byte {
	t.Helper()
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestNewWriterLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   int
		wantErr bool
	}{
		{level: -1, wantErr: true},
		{level: 0, wantErr: true},
		{level: 3, wantErr: true},
		{level: 4},
		{level: DefaultCompression},
		{level: BestCompression},
		{level: 10, wantErr: true},
	}

	for _, tt := range tests {
		w, err := NewWriter(io.Discard, tt.level)
		if tt.wantErr {
			assert.Error(t, err, "level %d", tt.level)
			assert.Nil(t, w)
			continue
		}
		require.NoError(t, err, "level %d", tt.level)
		assert.Equal(t, tt.level, w.Level())
	}
}

// Expected outputs below were produced by zlib's deflate with windowBits -15,
// memLevel 8 and the default strategy.
func TestWriterMatchesZlib(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		level int
		want  string
	}{
		{name: "empty", input: nil, level: 9, want: "0300"},
		{name: "single byte", input: []byte("a"), level: 9, want: "4b0400"},
		{name: "short text", input: []byte("hello, world\n"), level: 9, want: "cb48cdc9c9d75128cf2fca49e10200"},
		{
			name:  "zeros",
			input: make([]byte, 70000),
			level: 9,
			want:  "edc13101000000c2a0f54f6d094fa0" + strings.Repeat("00", 67) + "80b701",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := compress(t, tt.level, tt.input)
			assert.Equal(t, tt.want, hex.EncodeToString(got))
			assert.Equal(t, len(tt.input), len(inflate(t, got)))
		})
	}
}

func TestWriterMatchesZlibLevels(t *testing.T) {
	t.Parallel()

	data := letters(100000)
	tests := []struct {
		level  int
		length int
		sha256 string
	}{
		{level: 4, length: 57513, sha256: "13cf8743b7a1904266e734a8476ae461ad68e93d0b2609f7714af6279daa34b3"},
		{level: 5, length: 57554, sha256: "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f"},
		{level: 6, length: 57554, sha256: "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f"},
		{level: 7, length: 57554, sha256: "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f"},
		{level: 8, length: 57554, sha256: "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f"},
		{level: 9, length: 57554, sha256: "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f"},
	}

	for _, tt := range tests {
		got := compress(t, tt.level, data)
		assert.Len(t, got, tt.length, "level %d", tt.level)
		assert.Equal(t, tt.sha256, sum(got), "level %d", tt.level)
		assert.Equal(t, data, inflate(t, got), "level %d", tt.level)
	}
}

func TestWriterEmitsPerBlock(t *testing.T) {
	t.Parallel()

	data := letters(100000)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, BestCompression)
	require.NoError(t, err)

	_, err = w.Write(data[:1000])
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len(), "no block is complete after 1000 bytes")

	_, err = w.Write(data[1000:50000])
	require.NoError(t, err)
	assert.Equal(t, 23459, buf.Len())

	_, err = w.Write(data[50000:])
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 57554, buf.Len())
	assert.Equal(t, "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f", sum(buf.Bytes()))
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	data := letters(100000)
	var main bytes.Buffer
	w, err := NewWriter(&main, BestCompression)
	require.NoError(t, err)

	_, err = w.Write(data[:1000])
	require.NoError(t, err)
	_, err = w.Write(data[1000:50000])
	require.NoError(t, err)

	var fork bytes.Buffer
	c := w.Clone(&fork)
	_, err = c.Write(make([]byte, 1024))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Equal(t, 5573, fork.Len())
	assert.Equal(t, "9ca11cad792836f0fb600f22fdc8c72bf790e04717496192f55682ea82d8cf3b", sum(fork.Bytes()))

	// The prefix plus the fork's output is a complete stream.
	composed := append(bytes.Clone(main.Bytes()), fork.Bytes()...)
	want := append(bytes.Clone(data[:50000]), make([]byte, 1024)...)
	assert.Equal(t, want, inflate(t, composed))

	_, err = w.Write(data[50000:])
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "13dff41649f432c0c2735f9e8bc3538d343eff0a170272ede8a8c14d3dd1be4f", sum(main.Bytes()))
}

func TestCloneRepeated(t *testing.T) {
	t.Parallel()

	data := letters(20000)
	var main bytes.Buffer
	w, err := NewWriter(&main, BestCompression)
	require.NoError(t, err)

	var trailers [][]byte
	for i := 0; i < len(data); i += 5000 {
		_, err := w.Write(data[i : i+5000])
		require.NoError(t, err)

		var a, b bytes.Buffer
		for _, dst := range []*bytes.Buffer{&a, &b} {
			c := w.Clone(dst)
			_, err := c.Write(make([]byte, 1024))
			require.NoError(t, err)
			require.NoError(t, c.Close())
		}
		assert.Equal(t, a.Bytes(), b.Bytes(), "forks of the same state agree")
		trailers = append(trailers, a.Bytes())

		composed := append(bytes.Clone(main.Bytes()), a.Bytes()...)
		want := append(bytes.Clone(data[:i+5000]), make([]byte, 1024)...)
		assert.Equal(t, want, inflate(t, composed))
	}
	require.NoError(t, w.Close())
	assert.Len(t, trailers, 4)
	assert.Equal(t, data, inflate(t, main.Bytes()))
}

func TestWriteAfterClose(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(io.Discard, BestCompression)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

type failWriter struct{ err error }

func (f failWriter) Write([]byte) (int, error) { return 0, f.err }

func TestWriterStickyError(t *testing.T) {
	t.Parallel()

	boom := io.ErrClosedPipe
	w, err := NewWriter(failWriter{err: boom}, BestCompression)
	require.NoError(t, err)

	_, err = w.Write(letters(200000))
	require.ErrorIs(t, err, boom)
	_, err = w.Write([]byte("x"))
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, w.Close(), boom)
}
