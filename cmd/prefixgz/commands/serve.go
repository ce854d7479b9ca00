package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/meigma/prefixgz/cache"
	prefixgzhttp "github.com/meigma/prefixgz/http"
)

type serveOptions struct {
	records string
	format  string
}

func newServeCommand(g *Globals) *cobra.Command {
	var (
		opts     serveOptions
		addr     string
		upstream string
		mirror   string
		floor    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve historical archives at GET /<key>",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				e.cfg.Serve.Addr = addr
			}
			if flags.Changed("upstream") {
				e.cfg.Serve.Upstream = upstream
			}
			if flags.Changed("mirror") {
				e.cfg.Serve.Mirror = mirror
			}
			if flags.Changed("floor") {
				e.cfg.Serve.Floor = floor
			}

			handler, cleanup, err := e.newServeHandler(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			defer cleanup()

			ln, err := net.Listen("tcp", e.cfg.Serve.Addr)
			if err != nil {
				return err
			}
			return e.serve(cmd.Context(), ln, handler)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.records, "records", "r", "", "checkpoint records")
	f.StringVar(&opts.format, "format", "", "record format: json or yaml")
	f.StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	f.StringVar(&upstream, "upstream", "", "URL of the recompressed archive")
	f.StringVar(&mirror, "mirror", "", "keep a local copy of the upstream prefix in this file")
	f.BoolVar(&floor, "floor", false, "serve the latest checkpoint at or before the requested key")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

// newServeHandler wires records, upstream, mirror and metrics into one
// handler. cleanup releases the mirror file.
func (e *env) newServeHandler(ctx context.Context, opts *serveOptions) (nethttp.Handler, func() error, error) {
	set, err := e.readCheckpoints(opts.records, opts.format)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.Serve.Upstream == "" {
		return nil, nil, errors.New("no upstream configured")
	}

	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	src := prefixgzhttp.NewSource(e.cfg.Serve.Upstream,
		prefixgzhttp.WithClient(&nethttp.Client{Transport: transport}),
		prefixgzhttp.WithConditional(e.cfg.Serve.Conditional),
	)
	if err := src.Probe(ctx); err != nil {
		e.log.Warn("upstream probe failed", "upstream", e.cfg.Serve.Upstream, "error", err)
	} else {
		e.log.Info("upstream ready", "upstream", e.cfg.Serve.Upstream, "size", src.Size())
	}

	var upstream prefixgzhttp.Ranger = src
	cleanup := func() error { return nil }
	if e.cfg.Serve.Mirror != "" {
		m, err := cache.OpenMirror(e.cfg.Serve.Mirror, src, cache.WithLogger(e.log))
		if err != nil {
			return nil, nil, fmt.Errorf("open mirror: %w", err)
		}
		e.log.Info("mirror opened", "path", e.cfg.Serve.Mirror, "size", m.Size())
		upstream = m
		cleanup = m.Close
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := prefixgzhttp.NewHandler(set, upstream,
		prefixgzhttp.WithLogger(e.log),
		prefixgzhttp.WithMetrics(prefixgzhttp.NewMetrics(reg)),
		prefixgzhttp.WithFloor(e.cfg.Serve.Floor),
	)

	mux := nethttp.NewServeMux()
	mux.Handle("/", handler)
	if e.cfg.Serve.MetricsPath != "" {
		mux.Handle(e.cfg.Serve.MetricsPath, prefixgzhttp.MetricsHandler(reg))
	}

	e.log.Info("serving checkpoints", "count", set.Len(), "floor", e.cfg.Serve.Floor)
	return mux, cleanup, nil
}

// serve runs an HTTP server on ln until ctx is cancelled.
func (e *env) serve(ctx context.Context, ln net.Listener, handler nethttp.Handler) error {
	srv := &nethttp.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	e.log.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := e.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	e.log.Info("server stopped")
	return nil
}
