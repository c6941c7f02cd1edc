// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the dpsprep CLI, which converts
// DJVU documents into text-searchable PDFs with bookmarks.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/dpsprep/internal/pipeline"
	"github.com/pdiddy/dpsprep/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the dpsprep CLI.
var rootCmd = &cobra.Command{
	Use:   "dpsprep",
	Short: "Convert DJVU documents to PDF with text layer and bookmarks",
	Long: `dpsprep converts DJVU documents into PDFs that keep the hidden text layer
and the table of contents. It drives ddjvu, djvused, djvu2hocr, pdfbeads and
pdftk, tracking progress in a workspace so an interrupted conversion resumes
where it stopped.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./dpsprep.yaml or ~/.config/dpsprep/dpsprep.yaml)")
	rootCmd.PersistentFlags().String("workspace", "", "workspace directory for intermediate files (default ~/.dpsprep/work)")
	rootCmd.PersistentFlags().String("history-db", "", "conversion history database (default ~/.dpsprep/history.db)")

	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("history_db", rootCmd.PersistentFlags().Lookup("history-db"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dpsprep")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "dpsprep"))
		}
	}

	setDefaults()

	viper.SetEnvPrefix("DPSPREP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	base := ".dpsprep"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".dpsprep")
	}

	viper.SetDefault("quality", types.DefaultQuality)
	viper.SetDefault("workspace", filepath.Join(base, "work"))
	viper.SetDefault("history_db", filepath.Join(base, "history.db"))
	viper.SetDefault("verify", true)
	viper.SetDefault("outline.level_offset", 1)
	viper.SetDefault("outline.strict", false)
	viper.SetDefault("tools.timeout", 0)
}

// loadConfig assembles the conversion settings from flags, environment
// and config file, in viper's precedence order.
func loadConfig() types.ConversionConfig {
	return types.ConversionConfig{
		Quality:      viper.GetInt("quality"),
		WorkspaceDir: viper.GetString("workspace"),
		HistoryDB:    viper.GetString("history_db"),
		Verify:       viper.GetBool("verify"),
		Tools: types.ToolsConfig{
			Ddjvu:     viper.GetString("tools.ddjvu"),
			Djvused:   viper.GetString("tools.djvused"),
			Djvu2hocr: viper.GetString("tools.djvu2hocr"),
			Pdfbeads:  viper.GetString("tools.pdfbeads"),
			Pdftk:     viper.GetString("tools.pdftk"),
			Timeout:   viper.GetDuration("tools.timeout"),
		},
		Outline: types.OutlineConfig{
			LevelOffset: viper.GetInt("outline.level_offset"),
			Strict:      viper.GetBool("outline.strict"),
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(pipeline.ExitCode(err))
	}
}
