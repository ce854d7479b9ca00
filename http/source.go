// Package http serves reconstructed archives and fetches prefixes from an
// upstream copy of the main output over HTTP range requests.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// ErrRangeUnsupported is returned when the upstream ignores Range headers.
var ErrRangeUnsupported = errors.New("prefixgz: range requests not supported")

// Ranger returns a reader over bytes [off, off+length) of a remote object.
type Ranger interface {
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// StatusError reports an unexpected upstream status for a range request.
type StatusError struct {
	StatusCode int
	Range      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream says %d while requesting range %s", e.StatusCode, e.Range)
}

// validators identify one version of the upstream file.
type validators struct {
	etag         string
	lastModified string
}

func (v validators) pin(h nethttp.Header) {
	if v.etag != "" {
		h.Set("If-Match", v.etag)
	}
	if v.lastModified != "" {
		h.Set("If-Unmodified-Since", v.lastModified)
	}
}

// Source reads byte ranges of the upstream archive. It satisfies
// io.ReaderAt, so it can back prefixgz.Reconstruct directly.
type Source struct {
	url         string
	client      *nethttp.Client
	extra       nethttp.Header
	conditional bool

	size    int64
	version validators
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client. A nil client keeps the default.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.client = client
		}
	}
}

// WithHeader adds a header to every upstream request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		s.extra.Add(key, value)
	}
}

// WithConditional pins range reads to the ETag and Last-Modified seen by
// Probe. An append-only upstream changes validators on every append while
// its existing prefix stays valid, so this is off by default.
func WithConditional(enabled bool) Option {
	return func(s *Source) {
		s.conditional = enabled
	}
}

// NewSource returns a Source for url. No request is made until the first
// read or Probe.
func NewSource(url string, opts ...Option) *Source {
	s := &Source{
		url:    url,
		client: nethttp.DefaultClient,
		extra:  make(nethttp.Header),
		size:   -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the upstream address.
func (s *Source) URL() string {
	return s.url
}

// Size returns the upstream size learned by Probe, or -1.
func (s *Source) Size() int64 {
	return s.size
}

// Probe requests the first byte to learn the upstream size and validators.
// An empty upstream answers 416 and probes as size zero.
func (s *Source) Probe(ctx context.Context) error {
	resp, err := s.fetch(ctx, 0, 0, false)
	if errors.Is(err, io.EOF) {
		s.size = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("probe %s: %w", s.url, err)
	}
	defer drain(resp.Body)

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return fmt.Errorf("probe %s: %w", s.url, err)
	}
	s.size = size
	s.version = validators{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	return nil
}

// ReadRange streams bytes [off, off+length). A 200 answer yields
// ErrRangeUnsupported, 416 yields io.EOF, and any other non-206 status a
// *StatusError.
func (s *Source) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	switch {
	case off < 0 || length < 0:
		return nil, fmt.Errorf("range %d+%d: negative bounds", off, length)
	case length == 0:
		return io.NopCloser(strings.NewReader("")), nil
	}
	resp, err := s.fetch(ctx, off, off+length-1, s.conditional)
	if err != nil {
		return nil, err
	}
	return &limitedBody{Reader: io.LimitReader(resp.Body, length), body: resp.Body}, nil
}

// ReadAt reads len(p) bytes at off. It returns io.EOF with a short count
// when the upstream ends inside the requested span.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.size >= 0 && off >= s.size {
		return 0, io.EOF
	}
	rc, err := s.ReadRange(context.Background(), off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (s *Source) fetch(ctx context.Context, first, last int64, pinned bool) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.extra {
		req.Header[key] = append([]string(nil), values...)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if pinned {
		s.version.pin(req.Header)
	}
	span := fmt.Sprintf("%d-%d", first, last)
	req.Header.Set("Range", "bytes="+span)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusPartialContent {
		return resp, nil
	}
	drain(resp.Body)
	switch resp.StatusCode {
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return nil, io.EOF
	case nethttp.StatusOK:
		return nil, ErrRangeUnsupported
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Range: span}
	}
}

// drain consumes what is left of body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

type limitedBody struct {
	io.Reader
	body io.ReadCloser
}

func (b *limitedBody) Close() error {
	drain(b.body)
	return nil
}

// parseContentRange returns the complete length from a
// "bytes first-last/complete" header value.
func parseContentRange(value string) (int64, error) {
	var first, last, complete int64
	n, err := fmt.Sscanf(strings.TrimSpace(value), "bytes %d-%d/%d", &first, &last, &complete)
	if err != nil || n != 3 || first < 0 || last < first || complete <= last {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return complete, nil
}
