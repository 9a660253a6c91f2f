// Package main is the pdfmerge command line: it merges PDFs and images into
// one document and manages the catalog of merged documents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pdfmerge",
	Short: "Merge PDF documents and images into one PDF",
	Long: `pdfmerge combines up to ten PDF, JPEG and PNG files into a single PDF.
Documents contribute their pages in order; every image becomes one A4 page.

Merged documents can be kept in a local catalog (create, list, show,
download, delete) or written straight to a file (merge).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pdfmerge.yaml or ~/.config/pdfmerge/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("output", "yaml", "result format: yaml or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pdfmerge:", err)
		os.Exit(1)
	}
}
