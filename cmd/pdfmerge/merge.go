package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfmerge/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge -o OUT.pdf FILE...",
	Short: "Merge files into a PDF without recording it",
	Long: `Merge writes the merged document to the path given with -o. The file
appears only after the merge succeeded; a failed merge leaves nothing
behind. Inputs are used in the order given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return fmt.Errorf("missing -o output path")
		}
		title, _ := cmd.Flags().GetString("title")
		check, _ := cmd.Flags().GetBool("verify")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log, cmd.ErrOrStderr())
		engine, err := newEngine(cfg, logger)
		if err != nil {
			return err
		}
		batch, err := inputs(args)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(out)
		if err != nil {
			return err
		}
		st, err := newStore(filepath.Dir(abs), check || cfg.Storage.Verify, logger)
		if err != nil {
			return err
		}

		var opts []merge.Option
		if title != "" {
			opts = append(opts, merge.WithTitle(title))
		}
		var res *merge.Result
		_, err = st.Publish(context.Background(), filepath.Base(abs), func(w io.Writer) error {
			var err error
			res, err = engine.Merge(context.Background(), batch, w, opts...)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(cmd, res)
	},
}

func init() {
	mergeCmd.Flags().StringP("out", "o", "", "output PDF path (must not exist)")
	mergeCmd.Flags().String("title", "", "document title")
	mergeCmd.Flags().Bool("verify", false, "validate the output with pdfcpu before publishing it")

	rootCmd.AddCommand(mergeCmd)
}
