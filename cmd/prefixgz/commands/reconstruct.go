package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/prefixgz"
	prefixgzhttp "github.com/meigma/prefixgz/http"
	"github.com/meigma/prefixgz/internal/file"
)

func newReconstructCommand(g *Globals) *cobra.Command {
	var (
		records string
		format  string
		key     string
		prefix  string
		out     string
		floor   bool
	)
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Write the archive as it was at one index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("floor") {
				e.cfg.Serve.Floor = floor
			}

			set, err := e.readCheckpoints(records, format)
			if err != nil {
				return err
			}
			state, err := prefixgz.ParseKey(key)
			if err != nil {
				return err
			}
			var cp prefixgz.Checkpoint
			if e.cfg.Serve.Floor {
				cp, err = set.Floor(state)
			} else {
				cp, err = set.Lookup(state)
			}
			if err != nil {
				return err
			}

			src, closeSrc, err := e.openPrefix(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			defer closeSrc()

			w, closeOut, err := e.openWriter(out)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, file.NewContextReader(cmd.Context(), prefixgz.Reconstruct(src, cp)))
			if cerr := closeOut(); err == nil {
				err = cerr
			}
			if err != nil {
				if out != stdio {
					_ = os.Remove(out)
				}
				return err
			}
			e.log.Info("archive reconstructed",
				"key", cp.Key(),
				"prefix_size", cp.PrefixSize,
				"size", cp.Size())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&records, "records", "r", "", "checkpoint records (- for stdin)")
	f.StringVar(&format, "format", "", "record format: json or yaml")
	f.StringVarP(&key, "key", "k", "", "index state: record key or Unix time")
	f.StringVarP(&prefix, "prefix", "p", "", "recompressed output: local path or http(s) URL")
	f.StringVar(&out, "out", stdio, "destination (- for stdout)")
	f.BoolVar(&floor, "floor", false, "use the latest checkpoint at or before the key")
	_ = cmd.MarkFlagRequired("records")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}

// openPrefix opens the main output from a local file or a URL.
func (e *env) openPrefix(ctx context.Context, location string) (io.ReaderAt, func() error, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		src := prefixgzhttp.NewSource(location, prefixgzhttp.WithConditional(e.cfg.Serve.Conditional))
		if e.cfg.Serve.Conditional {
			if err := src.Probe(ctx); err != nil {
				return nil, nil, err
			}
		}
		return src, func() error { return nil }, nil
	}
	if location == stdio {
		return nil, nil, errors.New("the prefix must be seekable; stdin is not supported")
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
