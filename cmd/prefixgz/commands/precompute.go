package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/prefixgz"
	"github.com/meigma/prefixgz/internal/file"
)

type precomputeOptions struct {
	input      string
	output     string
	records    string
	format     string
	engine     string
	permissive bool
}

func newPrecomputeCommand(g *Globals) *cobra.Command {
	var opts precomputeOptions
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Recompress an archive and emit one checkpoint record per index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if opts.output == stdio && opts.records == stdio {
				return errors.New("--output and --records cannot both be stdout")
			}
			if opts.engine != "" {
				e.cfg.Engine = opts.engine
			}
			if opts.permissive {
				e.cfg.Ordering = "permissive"
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			return runPrecompute(cmd.Context(), e, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", stdio, "input archive: tar, tar.gz, tar.zst or tar.lz4 (- for stdin)")
	f.StringVarP(&opts.output, "output", "o", "", "recompressed gzip output")
	f.StringVarP(&opts.records, "records", "r", stdio, "checkpoint records destination (- for stdout)")
	f.StringVar(&opts.format, "format", "", "record format: json, yaml or text")
	f.StringVar(&opts.engine, "engine", "", "trailer engine: forked or replay")
	f.BoolVar(&opts.permissive, "permissive", false, "fold entries with a decreasing mtime into the current index state")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runPrecompute(ctx context.Context, e *env, opts *precomputeOptions) (err error) {
	engine, err := e.cfg.EngineValue()
	if err != nil {
		return err
	}
	ordering, err := e.cfg.OrderingValue()
	if err != nil {
		return err
	}
	format, err := e.recordFormat(opts.format, opts.records)
	if err != nil {
		return err
	}

	src, closeIn, err := e.openReader(opts.input)
	if err != nil {
		return err
	}
	defer closeIn()

	counted := &file.CountingReader{R: src}
	tr, inFormat, err := prefixgz.OpenInput(counted)
	if err != nil {
		return err
	}
	defer tr.Close()
	e.log.Info("input opened", "path", opts.input, "format", inFormat.String())

	out, closeOut, err := e.openWriter(opts.output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		if err != nil && opts.output != stdio {
			_ = os.Remove(opts.output)
		}
	}()

	rec, closeRec, err := e.openWriter(opts.records)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil && opts.records != stdio {
			_ = os.Remove(opts.records)
		}
	}()
	enc, err := prefixgz.NewRecordEncoder(rec, format, prefixgz.WithColor(e.color && opts.records == stdio))
	if err != nil {
		return errors.Join(err, closeRec())
	}

	sum, err := prefixgz.Precompute(ctx, tr, out, enc.Encode,
		prefixgz.WithLogger(e.log),
		prefixgz.WithEngine(engine),
		prefixgz.WithOrdering(ordering),
	)
	if err == nil {
		err = enc.Close()
	}
	if cerr := closeRec(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	e.log.Debug("input consumed", "path", opts.input, "bytes", counted.N)
	if !e.quiet {
		fmt.Fprintf(e.stderr, "%d checkpoints, %d entries, %s -> %s, %s\n",
			sum.Checkpoints,
			sum.Entries,
			humanize.IBytes(sum.UncompressedSize),
			humanize.IBytes(sum.CompressedSize),
			sum.SHA256)
	}
	return nil
}
