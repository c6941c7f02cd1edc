package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dpsprep/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the document in process and its last completed stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace.Open(loadConfig().WorkspaceDir)
		if err != nil {
			return err
		}
		st, err := ws.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if st == nil {
			fmt.Fprintln(out, "No conversion in process.")
			return nil
		}
		fmt.Fprintf(out, "source:    %s\n", st.Source)
		fmt.Fprintf(out, "completed: %s\n", st.Stage)
		if st.Pages > 0 {
			fmt.Fprintf(out, "pages:     %d\n", st.Pages)
		}
		fmt.Fprintf(out, "updated:   %s\n", st.UpdatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "workspace: %s\n", ws.Dir())
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the document in process and all intermediate files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace.Open(loadConfig().WorkspaceDir)
		if err != nil {
			return err
		}
		st, err := ws.Load()
		if err != nil {
			return err
		}
		if err := ws.Purge(); err != nil {
			return err
		}
		if st != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "discarded: %s (completed: %s)\n", st.Source, st.Stage)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Workspace cleared.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}
