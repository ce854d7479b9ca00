package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/prefixgz"
)

func newVerifyCommand(g *Globals) *cobra.Command {
	var (
		output      string
		records     string
		format      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every record rebuilds a valid archive from the output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				e.cfg.Verify.Concurrency = concurrency
			}

			cps, err := e.readRecords(records, format)
			if err != nil {
				return err
			}
			f, err := os.Open(output)
			if err != nil {
				return err
			}
			defer f.Close()

			err = prefixgz.Verify(cmd.Context(), f, cps,
				prefixgz.WithConcurrency(e.cfg.Verify.Concurrency),
				prefixgz.WithVerifyLogger(e.log))
			if err != nil {
				return err
			}
			if !e.quiet {
				fmt.Fprintf(e.stdout, "%d checkpoints verified\n", len(cps))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "recompressed gzip output")
	f.StringVarP(&records, "records", "r", "", "checkpoint records (- for stdin)")
	f.StringVar(&format, "format", "", "record format: json or yaml")
	f.IntVarP(&concurrency, "concurrency", "j", 0, "checkpoints verified at once (0 uses GOMAXPROCS)")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}
