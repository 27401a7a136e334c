package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/doctree"
	"github.com/dgallion1/annoscope/internal/reconcile"
	"github.com/dgallion1/annoscope/internal/scope"
)

type sectionView struct {
	SectionNumber string `json:"sectionNumber"`
	Heading       string `json:"heading"`
	StartOffset   int    `json:"startOffset"`
	EndOffset     int    `json:"endOffset"`
}

type parseView struct {
	Title       string            `json:"title"`
	ContentHash string            `json:"contentHash"`
	Length      int               `json:"length"`
	Sections    []sectionView     `json:"sections"`
	Counts      annotation.Counts `json:"counts"`
	Annotations *annotation.Set   `json:"annotations,omitempty"`
}

func (c *cli) parseCmd() *cobra.Command {
	var withAnnotations bool
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Print a document's sections and annotation counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := c.load(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			view := parseView{
				Title:       orch.Title,
				ContentHash: orch.ContentHash,
				Length:      orch.Structure.Len(),
				Counts:      orch.Counts,
			}
			for _, n := range orch.Structure.Sections() {
				view.Sections = append(view.Sections, sectionView{
					SectionNumber: n.SectionNumber,
					Heading:       heading(n),
					StartOffset:   n.StartOffset,
					EndOffset:     n.EndOffset,
				})
			}
			if withAnnotations {
				view.Annotations = &orch.Annotations
			}
			return write(cmd.OutOrStdout(), c.v.GetString("output"), view)
		},
	}
	cmd.Flags().BoolVar(&withAnnotations, "with-annotations", false, "include every annotation record")
	return cmd
}

func heading(n *doctree.Node) string {
	h := []rune(n.Text)
	if len(h) > 60 {
		return string(h[:60]) + "..."
	}
	return string(h)
}

func (c *cli) mapCmd() *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "map <file>",
		Short: "Show which sections a selection covers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := c.load(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sel := scope.Selection{Start: start, End: end}.Normalize()
			return write(cmd.OutOrStdout(), c.v.GetString("output"),
				scope.MapSelectionToSections(sel.Start, sel.End, orch.Structure))
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "selection start (rune offset into the combined document)")
	cmd.Flags().IntVar(&end, "end", 0, "selection end, exclusive")
	return cmd
}

// selectionFlags selects by --sections, --all, or --start/--end, in that
// order of precedence.
type selectionFlags struct {
	label    string
	sections []string
	all      bool
	start    int
	end      int
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.label, "label", "", "range label (defaults to the sections matched)")
	cmd.Flags().StringSliceVar(&f.sections, "sections", nil, "section numbers to match, comma separated")
	cmd.Flags().BoolVar(&f.all, "all", false, "match the whole document")
	cmd.Flags().IntVar(&f.start, "start", 0, "selection start (rune offset into the combined document)")
	cmd.Flags().IntVar(&f.end, "end", 0, "selection end, exclusive")
}

func (f *selectionFlags) newRange(set annotation.Set, s *doctree.Structure) scope.SelectionRange {
	if len(f.sections) > 0 {
		return scope.NewSectionRange(f.label, f.sections, set)
	}
	return scope.NewSelectionRange(f.label, scope.Selection{All: f.all, Start: f.start, End: f.end}, set, s)
}

func (c *cli) matchCmd() *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "match <file>",
		Short: "Build a named selection range from the annotations a selection touches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := c.load(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), c.v.GetString("output"), sel.newRange(orch.Annotations, orch.Structure))
		},
	}
	sel.register(cmd)
	return cmd
}

func (c *cli) filterCmd() *cobra.Command {
	var scopePath, types string
	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Apply a scope and print the annotations handed to generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := readScope(scopePath)
			if err != nil {
				return err
			}
			if types != "" {
				sc.Types = parseTypes(types)
			}
			orch, err := c.load(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			filtered, err := scope.ForGeneration(orch.Annotations, sc)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), c.v.GetString("output"), filtered)
		},
	}
	cmd.Flags().StringVar(&scopePath, "scope", "", "JSON scope file (default: all annotations)")
	cmd.Flags().StringVar(&types, "types", "", "override enabled types: comments,track-changes,highlights")
	return cmd
}

func parseTypes(s string) scope.TypeToggles {
	var t scope.TypeToggles
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "comments":
			t.Comments = true
		case "track-changes", "trackChanges":
			t.TrackChanges = true
		case "highlights":
			t.Highlights = true
		}
	}
	return t
}

type reconcileView struct {
	*reconcile.Result
	Message string `json:"message"`
}

func (c *cli) reconcileCmd() *cobra.Command {
	var scopePath string
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "reconcile <old-file> <new-file>",
		Short: "Reconcile a scope built on one revision against another",
		Long: `Reconcile keeps the annotations of each range that still exist in the new
revision and reports the ones that disappeared. Without --scope an
include-only scope with a single range is built over the old revision from
the selection flags (the whole document when none are given).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			old, err := c.load(ctx, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			next, err := c.load(ctx, args[1], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var sc scope.AnnotationScope
			if scopePath != "" {
				if sc, err = readScope(scopePath); err != nil {
					return err
				}
			} else {
				if len(sel.sections) == 0 && sel.start == sel.end {
					sel.all = true
				}
				sc = scope.Default()
				sc.Mode = scope.ModeIncludeOnly
				sc.Ranges = []scope.SelectionRange{sel.newRange(old.Annotations, old.Structure)}
			}
			if len(sc.Ranges) == 0 {
				return errors.New("scope has no ranges to reconcile")
			}

			res, err := reconcile.Reconcile(sc, &old.Annotations, &next.Annotations)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), c.v.GetString("output"), reconcileView{Result: res, Message: res.Summary.Describe()})
		},
	}
	cmd.Flags().StringVar(&scopePath, "scope", "", "JSON scope file built on the old revision")
	sel.register(cmd)
	return cmd
}
