package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/prefixgz"
	"github.com/meigma/prefixgz/internal/config"
	"github.com/meigma/prefixgz/internal/testutil"
)

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, nil, 0o600))
	return &workspace{dir: dir, config: cfg}
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *workspace) run(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", w.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func gzipFile(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func gunzip(t *testing.T, b []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestPrecomputeVerifyReconstruct(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	data := testutil.Scenario()
	gzipFile(t, w.path("in.tar.gz"), data)

	_, stderr, err := w.run(t, nil, "precompute",
		"-i", w.path("in.tar.gz"), "-o", w.path("out.gz"), "-r", w.path("records.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 checkpoints, 3 entries")

	recs, err := os.ReadFile(w.path("records.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(recs, []byte("\n")))

	stdout, _, err := w.run(t, nil, "verify", "-o", w.path("out.gz"), "-r", w.path("records.jsonl"), "-j", "2")
	require.NoError(t, err)
	assert.Equal(t, "2 checkpoints verified\n", stdout)

	_, _, err = w.run(t, nil, "reconstruct",
		"-r", w.path("records.jsonl"), "-k", "1970-01-01T00:01:40Z",
		"-p", w.path("out.gz"), "--out", w.path("v100.tar.gz"))
	require.NoError(t, err)
	rebuilt, err := os.ReadFile(w.path("v100.tar.gz"))
	require.NoError(t, err)
	want := append(bytes.Clone(data[:2048]), make([]byte, 1024)...)
	assert.Equal(t, want, gunzip(t, rebuilt))

	out, err := os.ReadFile(w.path("out.gz"))
	require.NoError(t, err)
	assert.Equal(t, data, gunzip(t, out))
}

func TestPrecomputeStdio(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	stdout, stderr, err := w.run(t, testutil.Scenario(), "precompute", "-q", "-o", w.path("out.gz"))
	require.NoError(t, err)
	assert.Empty(t, stderr)

	cps, err := prefixgz.DecodeRecords(strings.NewReader(stdout), prefixgz.RecordJSON)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, uint64(200), cps[1].IndexState)
}

func TestPrecomputeYAMLAndList(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	require.NoError(t, os.WriteFile(w.path("in.tar"), testutil.Scenario(), 0o600))

	_, _, err := w.run(t, nil, "precompute", "-q", "--engine", "replay",
		"-i", w.path("in.tar"), "-o", w.path("out.gz"), "-r", w.path("records.yaml"))
	require.NoError(t, err)

	stdout, _, err := w.run(t, nil, "list", "-r", w.path("records.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "1970-01-01T00:01:40Z")
	assert.Contains(t, stdout, "1970-01-01T00:03:20Z")
	assert.Contains(t, strings.ToLower(stdout), "total: 2 checkpoints")

	stdout, _, err = w.run(t, nil, "verify", "-o", w.path("out.gz"), "-r", w.path("records.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "2 checkpoints verified\n", stdout)
}

func TestPrecomputeTextRecords(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	stdout, _, err := w.run(t, testutil.Scenario(), "precompute", "-q", "--no-color", "--format", "text", "-o", w.path("out.gz"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1970-01-01T00:01:40Z  state=100  entries=2"))
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	require.NoError(t, os.WriteFile(w.path("empty.tar"), make([]byte, 1024), 0o600))
	require.NoError(t, os.WriteFile(w.path("unordered.tar"), testutil.Tar(
		testutil.File{Name: "a", Mtime: 100, Data: []byte("a")},
		testutil.File{Name: "b", Mtime: 200, Data: []byte("b")},
		testutil.File{Name: "c", Mtime: 50, Data: []byte("c")},
	), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr error
		removed []string
	}{
		{name: "missing output", args: []string{"precompute", "-i", w.path("empty.tar")}},
		{name: "both stdout", args: []string{"precompute", "-o", "-"}},
		{name: "bad engine", args: []string{"precompute", "-o", w.path("x.gz"), "--engine", "zlib"}},
		{name: "empty archive", args: []string{"precompute", "-i", w.path("empty.tar"), "-o", w.path("empty.gz"), "-r", w.path("empty.jsonl")}, wantErr: prefixgz.ErrEmptyInput, removed: []string{w.path("empty.gz"), w.path("empty.jsonl")}},
		{name: "decreasing mtime", args: []string{"precompute", "-i", w.path("unordered.tar"), "-o", w.path("unordered.gz"), "-r", w.path("unordered.jsonl")}, wantErr: prefixgz.ErrNonMonotonicMtime, removed: []string{w.path("unordered.gz"), w.path("unordered.jsonl")}},
		{name: "missing records", args: []string{"verify", "-o", w.path("out.gz"), "-r", w.path("nope.jsonl")}},
		{name: "unknown command", args: []string{"compress"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := w.run(t, nil, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			for _, path := range tt.removed {
				_, err := os.Stat(path)
				assert.True(t, os.IsNotExist(err), "%s left behind by a failed run", filepath.Base(path))
			}
		})
	}
}

func TestReconstructUnknownKey(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	_, _, err := w.run(t, testutil.Scenario(), "precompute", "-q", "-o", w.path("out.gz"), "-r", w.path("r.jsonl"))
	require.NoError(t, err)

	_, _, err = w.run(t, nil, "reconstruct", "-r", w.path("r.jsonl"), "-k", "150", "-p", w.path("out.gz"), "--out", w.path("x"))
	require.ErrorIs(t, err, prefixgz.ErrNotFound)

	_, _, err = w.run(t, nil, "reconstruct", "--floor", "-r", w.path("r.jsonl"), "-k", "150", "-p", w.path("out.gz"), "--out", w.path("x"))
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	stdout, _, err := w.run(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "prefixgz "))
}

func TestServeHandler(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	data := testutil.Scenario()
	_, _, err := w.run(t, data, "precompute", "-q", "-o", w.path("out.gz"), "-r", w.path("r.jsonl"))
	require.NoError(t, err)
	out, err := os.ReadFile(w.path("out.gz"))
	require.NoError(t, err)

	upstream := httptest.NewServer(nethttp.HandlerFunc(func(rw nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(rw, r, "01-index.tar.gz", time.Time{}, bytes.NewReader(out))
	}))
	t.Cleanup(upstream.Close)

	cfg, err := config.LoadConfig(w.config)
	require.NoError(t, err)
	cfg.Serve.Upstream = upstream.URL
	cfg.Serve.Mirror = w.path("mirror/index.gz")
	e := &env{cfg: cfg, log: slog.New(slog.DiscardHandler), stdout: io.Discard, stderr: io.Discard}

	handler, cleanup, err := e.newServeHandler(context.Background(), &serveOptions{records: w.path("r.jsonl")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/1970-01-01T00:03:20Z", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, data, gunzip(t, rec.Body.Bytes()))

	mirrored, err := os.ReadFile(w.path("mirror/index.gz"))
	require.NoError(t, err)
	assert.Equal(t, out[:len(mirrored)], mirrored)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `prefixgz_requests_total{code="200"} 1`)
}

func TestServeShutsDown(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(newWorkspace(t).config)
	require.NoError(t, err)
	e := &env{cfg: cfg, log: slog.New(slog.DiscardHandler)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.serve(ctx, ln, nethttp.HandlerFunc(func(rw nethttp.ResponseWriter, _ *nethttp.Request) {
			_, _ = io.WriteString(rw, "ok")
		}))
	}()

	resp, err := nethttp.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
