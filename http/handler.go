package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/prefixgz"
)

// Handler serves historical versions of the archive at GET /<key>, where key
// is a record key or a decimal Unix time. Each response is the upstream's
// first PrefixSize bytes followed by the checkpoint's trailer.
type Handler struct {
	set      *prefixgz.Checkpoints
	upstream Ranger
	logger   *slog.Logger
	metrics  *Metrics
	floor    bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for request handling.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records requests into m.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithFloor serves the latest checkpoint at or before the requested index
// state instead of requiring an exact match.
func WithFloor(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.floor = enabled
	}
}

// NewHandler returns a Handler serving the checkpoints in set from upstream.
func NewHandler(set *prefixgz.Checkpoints, upstream Ranger, opts ...HandlerOption) *Handler {
	h := &Handler{set: set, upstream: upstream}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h
}

func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		w.Header().Set("Allow", nethttp.MethodGet)
		h.text(w, nethttp.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed.", r.Method))
		return
	}

	key, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if key == "" {
		h.list(w)
		return
	}

	cp, err := h.lookup(key)
	if err != nil {
		h.text(w, nethttp.StatusNotFound, "index-state not found")
		return
	}

	prefix := int64(cp.PrefixSize) //nolint:gosec // prefix sizes come from a local output file
	start := time.Now()
	body, err := h.upstream.ReadRange(r.Context(), 0, prefix)
	h.metrics.upstream(start, err)
	if err != nil {
		h.upstreamError(w, err, prefix)
		return
	}
	defer body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "application/gzip")
	hdr.Set("Content-Length", strconv.FormatUint(cp.Size(), 10))
	hdr.Set("ETag", strconv.Quote(cp.SHA256.String()))
	hdr.Set("X-Index-State", cp.Key())
	w.WriteHeader(nethttp.StatusOK)
	h.metrics.request(nethttp.StatusOK)

	n, err := io.CopyN(w, body, prefix)
	if err == nil {
		var m int
		m, err = w.Write(cp.Trailer)
		n += int64(m)
	}
	h.metrics.served(n)
	if err != nil {
		h.metrics.abort()
		h.logger.Warn("response aborted",
			"key", cp.Key(),
			"written", n,
			"size", cp.Size(),
			"error", err)
		// The status line is already sent; only a broken connection tells
		// the client the body is incomplete.
		panic(nethttp.ErrAbortHandler)
	}

	h.logger.Debug("served checkpoint",
		"key", cp.Key(),
		"requested", key,
		"prefix_size", cp.PrefixSize,
		"trailer_size", len(cp.Trailer),
		"duration", time.Since(start))
}

func (h *Handler) lookup(key string) (prefixgz.Checkpoint, error) {
	state, err := prefixgz.ParseKey(key)
	if err != nil {
		return prefixgz.Checkpoint{}, err
	}
	if h.floor {
		return h.set.Floor(state)
	}
	return h.set.Lookup(state)
}

// list writes one key per line, oldest first.
func (h *Handler) list(w nethttp.ResponseWriter) {
	var b strings.Builder
	for _, cp := range h.set.All() {
		b.WriteString(cp.Key())
		b.WriteByte('\n')
	}
	h.text(w, nethttp.StatusOK, b.String())
}

func (h *Handler) upstreamError(w nethttp.ResponseWriter, err error, prefix int64) {
	h.logger.Error("upstream range request failed", "prefix_size", prefix, "error", err)

	var se *StatusError
	switch {
	case errors.As(err, &se):
		h.text(w, se.StatusCode, se.Error())
	case errors.Is(err, io.EOF):
		h.text(w, nethttp.StatusBadGateway,
			fmt.Sprintf("upstream is shorter than range 0-%d", prefix-1))
	default:
		h.text(w, nethttp.StatusBadGateway, err.Error())
	}
}

func (h *Handler) text(w nethttp.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, msg)
	h.metrics.request(code)
}
