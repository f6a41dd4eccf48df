package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/bookbaker/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "bookbaker",
	Short: "Web fiction scraping, translation, and ePub packaging",
	Long: `Bookbaker pulls serialized web fiction, machine-translates it, and
packages the result as ePub files.

A run works through configured tasks:
  - Crawl each source site incrementally, skipping unchanged episodes
  - Translate new episodes through a chain of configured backends
  - Export finished books to ePub`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bookbaker/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}
