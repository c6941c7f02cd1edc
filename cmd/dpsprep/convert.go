package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/dpsprep/internal/history"
	"github.com/pdiddy/dpsprep/internal/pdfcheck"
	"github.com/pdiddy/dpsprep/internal/pipeline"
	"github.com/pdiddy/dpsprep/internal/tools"
	"github.com/pdiddy/dpsprep/internal/workspace"
	"github.com/pdiddy/dpsprep/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert SOURCE.djvu DEST.pdf | --dir DIR",
	Short: "Convert a DJVU document, or a directory of them, to PDF",
	Long: `Convert rasterizes every page, embeds the DJVU text layer, bundles the
pages into a PDF and turns the DJVU outline into PDF bookmarks.

With --dir, every .djvu file below DIR is converted to a PDF of the same
name beside it; files whose PDF already exists are skipped. Only one
document can be in process per workspace: a failed conversion must be
resumed (by running the same command again) or discarded with
"dpsprep reset" before another can start.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Int("quality", types.DefaultQuality, "ddjvu compression quality (50-150)")
	convertCmd.Flags().String("dir", "", "convert every .djvu file found recursively under this directory")
	convertCmd.Flags().Bool("strict-outline", false, "fail the bookmark merge when outline titles and targets do not pair up")
	convertCmd.Flags().Bool("verify", true, "open the finished PDF and report its pages and bookmarks")
	convertCmd.Flags().Duration("tool-timeout", 0, "limit for each external tool invocation (0 for none)")

	_ = viper.BindPFlag("quality", convertCmd.Flags().Lookup("quality"))
	_ = viper.BindPFlag("outline.strict", convertCmd.Flags().Lookup("strict-outline"))
	_ = viper.BindPFlag("verify", convertCmd.Flags().Lookup("verify"))
	_ = viper.BindPFlag("tools.timeout", convertCmd.Flags().Lookup("tool-timeout"))

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	switch {
	case dir != "" && len(args) > 0:
		return fmt.Errorf("give either SOURCE and DEST or --dir, not both")
	case dir == "" && len(args) != 2:
		return fmt.Errorf("provide a source .djvu file and a destination .pdf path, or --dir")
	}

	cfg := loadConfig()
	if err := pipeline.ValidateQuality(cfg.Quality); err != nil {
		return err
	}

	ws, err := workspace.Open(cfg.WorkspaceDir)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithInspector(pdfcheck.Reader{})}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: history disabled: %v\n", err)
		} else {
			defer store.Close()
			opts = append(opts, pipeline.WithRecorder(store))
		}
	}

	tc := tools.New(cfg.Tools, os.Stderr)
	if missing := tc.Missing(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "warning: not found on PATH: %v\n", missing)
	}

	o := pipeline.New(tc, ws, cfg, os.Stdout, opts...)
	ctx := cmd.Context()

	if dir != "" {
		result, err := o.ConvertTree(ctx, dir)
		if err != nil {
			reportFailure(err)
			return err
		}
		if result.HasFailures() {
			return fmt.Errorf("%d document(s) failed conversion", result.Failed)
		}
		return nil
	}

	if _, err := o.Convert(ctx, args[0], args[1]); err != nil {
		reportFailure(err)
		return err
	}
	return nil
}

// reportFailure explains how to recover from a failed conversion.
func reportFailure(err error) {
	var pErr *pipeline.PartialError
	var cErr *workspace.ConflictError
	switch {
	case errors.As(err, &pErr):
		fmt.Fprintf(os.Stderr, "There were errors in the bookmark step. The text layer is fine; the PDF without bookmarks is at %s.\n", pErr.Salvage)
		fmt.Fprintln(os.Stderr, "Rerun the same command to retry the bookmarks, or \"dpsprep reset\" to discard it.")
	case errors.As(err, &cErr):
		fmt.Fprintf(os.Stderr, "%s is still in process. Rerun its conversion to finish it, or \"dpsprep reset\" to discard it.\n", cErr.InProcess)
	default:
		fmt.Fprintln(os.Stderr, "Intermediate files were kept; rerun the same command to resume.")
	}
}
