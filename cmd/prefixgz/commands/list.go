package commands

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newListCommand(g *Globals) *cobra.Command {
	var (
		records string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show checkpoint records in a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			set, err := e.readCheckpoints(records, format)
			if err != nil {
				return err
			}

			tbl := table.NewWriter()
			tbl.SetOutputMirror(e.stdout)
			tbl.SetStyle(table.StyleLight)
			if e.color {
				tbl.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
			}
			tbl.Style().Options.DrawBorder = false
			tbl.Style().Options.SeparateColumns = false

			tbl.AppendHeader(table.Row{"Key", "Index state", "Prefix", "Trailer", "Size", "SHA256"})
			for _, cp := range set.All() {
				tbl.AppendRow(table.Row{
					cp.Key(),
					strconv.FormatUint(cp.IndexState, 10),
					humanize.IBytes(cp.PrefixSize),
					humanize.IBytes(uint64(len(cp.Trailer))),
					humanize.IBytes(cp.Size()),
					cp.SHA256.Encoded()[:12],
				})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d checkpoints", set.Len())})
			tbl.Render()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&records, "records", "r", "", "checkpoint records (- for stdin)")
	f.StringVar(&format, "format", "", "record format: json or yaml")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}
