package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries settings shared by every subcommand. Flags are bound through
// viper so each one can also come from a SCOPECTL_* environment variable.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("SCOPECTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "scopectl",
		Short: "Inspect annotation scopes over redlined documents",
		Long: `scopectl parses a document into numbered sections, maps text selections
onto those sections, matches annotations to named ranges, filters
annotations by scope and reconciles a scope against a revised document.

Documents may be .txt, .md, .html, .pdf or .docx. HTML redlines carry their
own comments, highlights and tracked changes; for other formats pass the
records as JSON with --annotations.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("output", "o", "json", "output format: json or yaml")
	pf.String("annotations", "", "JSON file of annotation records for non-HTML documents")
	pf.Bool("pdf-fallback", true, "fall back to pdftotext when PDF text extraction fails")
	pf.BoolP("verbose", "v", false, "log pipeline progress to stderr")
	for _, name := range []string{"output", "annotations", "pdf-fallback", "verbose"} {
		c.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		c.parseCmd(),
		c.mapCmd(),
		c.matchCmd(),
		c.filterCmd(),
		c.reconcileCmd(),
	)
	return root
}

func (c *cli) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.v.GetBool("verbose") {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
