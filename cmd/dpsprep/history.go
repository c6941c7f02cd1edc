package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dpsprep/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [source.djvu]",
	Short: "List recent conversions",
	Long: `History lists recorded conversion attempts, newest first. Given a source
file, it shows only the latest attempt for that file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("max-results", 20, "maximum number of entries to list")
	historyCmd.Flags().Bool("json", false, "output entries as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.HistoryDB == "" {
		return fmt.Errorf("history database not configured")
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []history.Entry
	if len(args) == 1 {
		src, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		last, err := store.Last(cmd.Context(), src)
		if err != nil {
			return err
		}
		if last != nil {
			entries = append(entries, *last)
		}
	} else {
		limit, _ := cmd.Flags().GetInt("max-results")
		entries, err = store.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No conversions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTATUS\tSTAGE\tBOOKMARKS\tSOURCE\tDESTINATION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.RecordedAt.Local().Format(time.DateTime), e.Status, e.Stage, e.Bookmarks, e.Source, e.Destination)
	}
	return tw.Flush()
}
