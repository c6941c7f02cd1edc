package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dpsprep/internal/tools"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the external tools are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc := tools.New(loadConfig().Tools, os.Stderr)
		missing := make(map[string]bool)
		for _, bin := range tc.Missing() {
			missing[bin] = true
		}

		out := cmd.OutOrStdout()
		for _, bin := range tc.Binaries() {
			status := "ok"
			if missing[bin] {
				status = "missing"
			}
			fmt.Fprintf(out, "%-10s %s\n", bin, status)
		}
		if len(missing) > 0 {
			return fmt.Errorf("%d tool(s) missing", len(missing))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
