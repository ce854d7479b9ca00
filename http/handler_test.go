package http

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/prefixgz"
	"github.com/meigma/prefixgz/internal/testutil"
)

type fixture struct {
	out []byte
	cps []prefixgz.Checkpoint
	set *prefixgz.Checkpoints
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var out bytes.Buffer
	var cps []prefixgz.Checkpoint
	_, err := prefixgz.Precompute(context.Background(), bytes.NewReader(testutil.Scenario()), &out,
		func(c prefixgz.Checkpoint) error {
			cps = append(cps, c)
			return nil
		})
	require.NoError(t, err)
	set, err := prefixgz.NewCheckpoints(cps)
	require.NoError(t, err)
	return &fixture{out: out.Bytes(), cps: cps, set: set}
}

func (f *fixture) composed(i int) []byte {
	cp := f.cps[i]
	return append(bytes.Clone(f.out[:cp.PrefixSize]), cp.Trailer...)
}

func newUpstream(t *testing.T, h nethttp.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewSource(server.URL)
}

func serving(data []byte) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "01-index.tar.gz", time.Time{}, bytes.NewReader(data))
	}
}

func do(h nethttp.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerServesCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewHandler(f.set, newUpstream(t, serving(f.out)))

	tests := []struct {
		name  string
		path  string
		index int
	}{
		{name: "timestamp key", path: "/1970-01-01T00:01:40Z", index: 0},
		{name: "decimal key", path: "/200", index: 1},
		{name: "trailing path", path: "/1970-01-01T00:03:20Z/01-index.tar.gz", index: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(h, nethttp.MethodGet, tt.path)
			require.Equal(t, nethttp.StatusOK, rec.Code)

			cp := f.cps[tt.index]
			want := f.composed(tt.index)
			assert.Equal(t, want, rec.Body.Bytes())
			assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
			assert.Equal(t, strconv.Itoa(len(want)), rec.Header().Get("Content-Length"))
			assert.Equal(t, cp.Key(), rec.Header().Get("X-Index-State"))
			assert.Equal(t, `"`+cp.SHA256.String()+`"`, rec.Header().Get("ETag"))

			zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			data, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, testutil.Scenario()[:cp.RawSize], data[:cp.RawSize])
			assert.Equal(t, make([]byte, prefixgz.EOFMarkerSize), data[cp.RawSize:])
		})
	}
}

func TestHandlerRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewHandler(f.set, newUpstream(t, serving(f.out)))

	tests := []struct {
		name   string
		method string
		path   string
		code   int
		body   string
		allow  string
	}{
		{name: "post", method: nethttp.MethodPost, path: "/100", code: nethttp.StatusMethodNotAllowed, body: "Method POST not allowed.", allow: "GET"},
		{name: "head", method: nethttp.MethodHead, path: "/100", code: nethttp.StatusMethodNotAllowed, allow: "GET"},
		{name: "unknown state", method: nethttp.MethodGet, path: "/1970-01-01T00:02:00Z", code: nethttp.StatusNotFound, body: "index-state not found"},
		{name: "bad key", method: nethttp.MethodGet, path: "/latest", code: nethttp.StatusNotFound, body: "index-state not found"},
		{name: "list", method: nethttp.MethodGet, path: "/", code: nethttp.StatusOK, body: "1970-01-01T00:01:40Z\n1970-01-01T00:03:20Z\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(h, tt.method, tt.path)
			assert.Equal(t, tt.code, rec.Code)
			if tt.method != nethttp.MethodHead {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
		})
	}
}

func TestHandlerFloor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewHandler(f.set, newUpstream(t, serving(f.out)), WithFloor(true))

	rec := do(h, nethttp.MethodGet, "/1970-01-01T00:02:00Z")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, f.composed(0), rec.Body.Bytes())
	assert.Equal(t, "1970-01-01T00:01:40Z", rec.Header().Get("X-Index-State"))

	rec = do(h, nethttp.MethodGet, "/99")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestHandlerUpstreamStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name string
		h    nethttp.HandlerFunc
		code int
		body string
	}{
		{
			name: "forbidden",
			h:    func(w nethttp.ResponseWriter, _ *nethttp.Request) { w.WriteHeader(nethttp.StatusForbidden) },
			code: nethttp.StatusForbidden,
			body: "upstream says 403 while requesting range 0-9",
		},
		{
			name: "no range support",
			h:    func(w nethttp.ResponseWriter, _ *nethttp.Request) { _, _ = w.Write(f.out) },
			code: nethttp.StatusBadGateway,
		},
		{
			name: "past the end",
			h:    serving(nil),
			code: nethttp.StatusBadGateway,
			body: "upstream is shorter than range 0-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHandler(f.set, newUpstream(t, tt.h))
			rec := do(h, nethttp.MethodGet, "/100")
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestHandlerAbortsShortUpstream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewHandler(f.set, newUpstream(t, serving(f.out[:5])))
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	// Depending on buffering the client sees either a broken response or a
	// body that ends before Content-Length.
	resp, err := nethttp.Get(server.URL + "/100")
	if err == nil {
		defer resp.Body.Close()
		_, err = io.ReadAll(resp.Body)
	}
	assert.Error(t, err)
}

func TestHandlerMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := NewHandler(f.set, newUpstream(t, serving(f.out)), WithMetrics(m))

	do(h, nethttp.MethodGet, "/100")
	do(h, nethttp.MethodGet, "/200")
	do(h, nethttp.MethodGet, "/300")

	assert.InDelta(t, 2, promtestutil.ToFloat64(m.requests.WithLabelValues("200")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.requests.WithLabelValues("404")), 0)
	want := len(f.composed(0)) + len(f.composed(1))
	assert.InDelta(t, float64(want), promtestutil.ToFloat64(m.bytesServed), 0)
	assert.InDelta(t, 0, promtestutil.ToFloat64(m.upstreamErrors), 0)

	rec := do(MetricsHandler(reg), nethttp.MethodGet, "/metrics")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "prefixgz_requests_total"))
}
