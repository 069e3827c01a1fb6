package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/uiprobe/internal/report"
	"github.com/PentesterFlow/uiprobe/internal/store"
	"github.com/PentesterFlow/uiprobe/pkg/explorer"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved discovery runs",
		Long:  "List, show and compare discovery runs recorded in the history database.",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				return listRuns(os.Stdout, s, historyLimit)
			})
		},
	}
	listCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				return showRun(os.Stdout, s, args[0])
			})
		},
	}

	diffCmd := &cobra.Command{
		Use:   "diff <id> <id>",
		Short: "Compare the elements found by two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				return diffRuns(os.Stdout, s, args[0], args[1])
			})
		},
	}

	historyCmd.AddCommand(listCmd, showCmd, diffCmd)
	return historyCmd
}

// withStore opens the history database discover records into.
func withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := config.HistoryFile()
	if path == "" {
		return fmt.Errorf("history is disabled in the configuration")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history at %s", path)
	}

	s, err := store.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func listRuns(w io.Writer, s store.Store, limit int) error {
	runs, err := s.List(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tBACKEND\tTOTAL\tURL\tREPORT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.SavedAt.Format("2006-01-02 15:04:05"), r.Backend, r.Total, r.URL, r.ReportPath)
	}
	return tw.Flush()
}

func showRun(w io.Writer, s store.Store, id string) error {
	run, err := s.Get(id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	return report.Write(w, run.Result)
}

func diffRuns(w io.Writer, s store.Store, idA, idB string) error {
	a, err := s.Get(idA)
	if err != nil {
		return fmt.Errorf("run %s: %w", idA, err)
	}
	b, err := s.Get(idB)
	if err != nil {
		return fmt.Errorf("run %s: %w", idB, err)
	}

	if explorer.Compare(a.Result, b.Result) {
		fmt.Fprintf(w, "Runs %s and %s found the same elements\n", idA, idB)
		return nil
	}

	fmt.Fprintf(w, "Runs %s and %s differ\n\n", idA, idB)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CATEGORY\t%s\t%s\t\n", idA, idB)
	for _, c := range report.Categories() {
		na := a.Result.Elements.Count(c)
		nb := b.Result.Elements.Count(c)
		mark := ""
		if na != nb {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", c, na, nb, mark)
	}
	return tw.Flush()
}
