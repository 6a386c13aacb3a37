// Command pdfsizeopt makes PDF files smaller.
//
// Usage:
//
//	pdfsizeopt [flags] input.pdf [output.pdf]
//	pdfsizeopt --stats input.pdf
//
// The output defaults to the input name with .pdf replaced by .type1c.pdf.
// Option flags take yes, no, on, off, true, false, 1 or 0.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/juju/errgo"
	"github.com/spf13/cobra"

	"github.com/tsawler/pdfsizeopt"
	"github.com/tsawler/pdfsizeopt/external"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/reader"
	"github.com/tsawler/pdfsizeopt/stats"
)

type config struct {
	opts    pdfsizeopt.Options
	tools   pdfsizeopt.Tools
	stats   bool
	quiet   bool
	verbose bool
	jar     string
}

func main() {
	cmd := newRootCmd(pdfsizeopt.DefaultTools(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(tools pdfsizeopt.Tools, stdout, stderr io.Writer) *cobra.Command {
	cfg := &config{opts: pdfsizeopt.DefaultOptions(), tools: tools}
	cmd := &cobra.Command{
		Use:   "pdfsizeopt [flags] <input.pdf> [output.pdf]",
		Short: "Make PDF files smaller without changing how they look",
		Long: `Optimizes a PDF losslessly: fonts are converted to Type1C, images are
recompressed, equivalent objects are merged, unused objects are dropped and
the cross-reference data is packed.

Without output.pdf the result is written next to the input as
<input>.type1c.pdf. With --stats only a size breakdown of the input is
printed.`,
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, cfg, args, stdout)
			if err != nil && cfg.verbose {
				fmt.Fprintf(stderr, "details: %s\n", errgo.Details(err))
			}
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fs := cmd.Flags()
	fs.SortFlags = false
	fs.BoolVar(&cfg.stats, "stats", false, "print a size breakdown of the input and exit")
	fs.BoolVarP(&cfg.quiet, "quiet", "q", false, "log errors only")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug messages")
	fs.StringVar(&cfg.opts.TempDir, "tmp-dir", "", "directory for temporary files")
	fs.StringVar(&cfg.jar, "multivalent-jar", "", "path of Multivalent.jar")
	addOptionFlags(fs, &cfg.opts)

	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		level := slog.LevelInfo
		switch {
		case cfg.quiet:
			level = slog.LevelError
		case cfg.verbose:
			level = slog.LevelDebug
		}
		logging.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	}
	return cmd
}

func run(cmd *cobra.Command, cfg *config, args []string, stdout io.Writer) error {
	input := args[0]
	if cfg.stats {
		return printStats(input, stdout)
	}
	output := outputName(input)
	if len(args) == 2 {
		output = args[1]
	}
	tools := cfg.tools
	if cfg.jar != "" {
		tools.Multivalent = external.Multivalent{Jar: cfg.jar}
	}

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	n, warnings, err := pdfsizeopt.Open(input).
		WithOptions(cfg.opts).
		WithTools(tools).
		Context(cmd.Context()).
		WriteFile(output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d -> %d bytes (%s), %d warnings\n",
		output, info.Size(), n, stats.FormatPercent(int(n), int(info.Size())), len(warnings))
	return nil
}

func printStats(input string, stdout io.Writer) error {
	f, err := reader.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := stats.Compute(f.Data)
	if err != nil {
		return err
	}
	return s.Report(stdout)
}

// outputName returns the default output file for input.
func outputName(input string) string {
	return strings.TrimSuffix(input, ".pdf") + ".type1c.pdf"
}
