package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/northcutted/pkg-inspector/pkg/analysis"
	"github.com/northcutted/pkg-inspector/pkg/config"
	"github.com/northcutted/pkg-inspector/pkg/diff"
	"github.com/northcutted/pkg-inspector/pkg/renderer"
	"github.com/northcutted/pkg-inspector/pkg/store"
)

var (
	historyImage   string
	savedExclude   string
	savedSummary   bool
	savedCSVOutput string
	savedDelimiter string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved inventory snapshots",
	Long: `List inventory snapshots saved with --save, newest first.

Snapshot IDs can be abbreviated to any unique prefix.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var diffSavedCmd = &cobra.Command{
	Use:   "diff-saved <from-id> <to-id>",
	Short: "Diff two saved snapshots",
	Example: `  pkg-inspector diff-saved 3f2a 9c41 --summary
  pkg-inspector diff-saved 3f2a 9c41 --exclude-snapshot 77be --csv-output diff.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runDiffSaved,
}

func init() {
	historyCmd.Flags().StringVar(&historyImage, "image", "", "Only list snapshots of this image")
	diffSavedCmd.Flags().StringVar(&savedExclude, "exclude-snapshot", "", "Snapshot whose packages are marked as inherited")
	diffSavedCmd.Flags().BoolVar(&savedSummary, "summary", false, "Print a readable summary instead of JSON")
	diffSavedCmd.Flags().StringVar(&savedCSVOutput, "csv-output", "", "Also write the diff as CSV to this path")
	diffSavedCmd.Flags().StringVar(&savedDelimiter, "delimiter", ",", "CSV delimiter: ',', ';', '|' or '\\t'")

	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd, diffSavedCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(resolveDBPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot history: %w", err)
	}
	return s, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	infos, err := s.ListSnapshots(historyImage)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(stdout, "No saved snapshots.")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tIMAGE\tARCH\tPACKAGES\tPYTHON\tBINARY")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			info.ID[:8],
			info.CreatedAt.Local().Format(time.DateTime),
			info.Target.Image,
			info.Target.Architecture,
			info.PackageCount,
			info.PythonCount,
			info.BinaryCount,
		)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	snap, err := s.GetSnapshot(args[0])
	if err != nil {
		return err
	}
	doc := renderer.NewInventoryDocument(renderer.Meta{Version: Version, Date: snap.CreatedAt},
		[]analysis.TargetResult{{Target: snap.Target, Snapshot: snap}})
	return renderer.WriteJSON(stdout, doc)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.DeleteSnapshot(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted snapshot %s\n", args[0])
	return nil
}

func runDiffSaved(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	from, err := s.GetSnapshot(args[0])
	if err != nil {
		return err
	}
	to, err := s.GetSnapshot(args[1])
	if err != nil {
		return err
	}

	var opts diff.Options
	if savedExclude != "" {
		if opts.Exclude, err = s.GetSnapshot(savedExclude); err != nil {
			return err
		}
	}

	doc := renderer.NewDiffDocument(renderer.Meta{Version: Version, Date: time.Now()}, diff.Compare(from, to, opts))

	if savedCSVOutput != "" {
		delim, err := config.ParseDelimiter(savedDelimiter)
		if err != nil {
			return err
		}
		err = writeFile(savedCSVOutput, func(w io.Writer) error {
			return renderer.WriteDiffCSV(w, doc, delim)
		})
		if err != nil {
			return err
		}
	}

	if savedSummary {
		return renderer.RenderDiffSummary(stdout, doc)
	}
	return renderer.WriteJSON(stdout, doc)
}
