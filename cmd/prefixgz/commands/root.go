// Package commands implements the prefixgz subcommands.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"runtime/pprof"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/meigma/prefixgz/internal/config"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = ""

// Globals holds the flags shared by every command.
type Globals struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	NoColor    bool
	CPUProfile string

	profile *os.File
}

// NewRootCommand builds the prefixgz command tree.
func NewRootCommand() *cobra.Command {
	g := &Globals{}
	root := &cobra.Command{
		Use:   "prefixgz",
		Short: "Serve every historical version of an append-only tar.gz",
		Long: `prefixgz recompresses an append-only tar archive once and records, for
every index state, a small trailer that turns a prefix of the output into
a complete gzip stream of the archive as it was at that time.

Commands:
  precompute   Recompress an archive and emit checkpoint records
  verify       Check records against the recompressed output
  reconstruct  Write the archive as of one index state
  serve        Serve historical archives over HTTP
  list         Show the records in a table`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.startProfile()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return g.stopProfile()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.ConfigPath, "config", "", "config file (default .prefixgz.yaml in . or $HOME)")
	pf.BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&g.Quiet, "quiet", "q", false, "suppress output")
	pf.BoolVar(&g.NoColor, "no-color", false, "disable colored output")
	pf.StringVar(&g.CPUProfile, "cpuprofile", "", "write a CPU profile to `file`")

	root.AddCommand(
		newPrecomputeCommand(g),
		newVerifyCommand(g),
		newReconstructCommand(g),
		newServeCommand(g),
		newListCommand(g),
		newVersionCommand(),
	)
	return root
}

// env is the per-invocation state built from Globals and the config file.
type env struct {
	cfg    *config.Config
	log    *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	quiet  bool
	color  bool
}

func (g *Globals) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	switch {
	case g.Verbose:
		level = slog.LevelDebug
	case g.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}

	return &env{
		cfg:    cfg,
		log:    slog.New(handler),
		stdin:  cmd.InOrStdin(),
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
		quiet:  g.Quiet,
		color:  !g.NoColor && !color.NoColor,
	}, nil
}

func (g *Globals) startProfile() error {
	if g.CPUProfile == "" {
		return nil
	}
	f, err := os.Create(g.CPUProfile)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	g.profile = f
	return nil
}

func (g *Globals) stopProfile() error {
	if g.profile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := g.profile.Close()
	g.profile = nil
	return err
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prefixgz %s\n", version())
		},
	}
}

func version() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
