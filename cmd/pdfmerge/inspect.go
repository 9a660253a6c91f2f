package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfmerge/importer"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/verify"
)

type inspection struct {
	File       string   `json:"file" yaml:"file"`
	Version    string   `json:"version,omitempty" yaml:"version,omitempty"`
	Objects    int      `json:"objects" yaml:"objects"`
	Pages      int      `json:"pages" yaml:"pages"`
	Repaired   bool     `json:"repaired" yaml:"repaired"`
	Encryption string   `json:"encryption,omitempty" yaml:"encryption,omitempty"`
	Problems   []string `json:"problems,omitempty" yaml:"problems,omitempty"`
	Valid      *bool    `json:"valid,omitempty" yaml:"valid,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.pdf",
	Short: "Report how a PDF would be imported",
	Long: `Inspect parses a PDF the way merge does and reports its version, object
and page counts, whether its cross-reference structure had to be rebuilt,
and whether it is encrypted. With --verify it is also checked by pdfcpu.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("verify")
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		res := inspection{File: args[0]}
		strategy := recovery.NewLenientStrategy()
		doc, err := importer.Import(context.Background(), data, importer.Options{Recovery: strategy})
		var encErr *parser.EncryptedError
		switch {
		case errors.As(err, &encErr):
			res.Encryption = encErr.Info.String()
		case err != nil:
			res.Problems = append(res.Problems, err.Error())
		default:
			res.Version = doc.Version
			res.Objects = doc.Objects
			res.Pages = len(doc.Pages)
			res.Repaired = doc.Repaired
		}
		for _, e := range strategy.Reported() {
			res.Problems = append(res.Problems, e.Error())
		}
		if check {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			_, verr := verify.Reader(f)
			f.Close()
			ok := verr == nil
			res.Valid = &ok
			if verr != nil {
				res.Problems = append(res.Problems, verr.Error())
			}
		}
		return printResult(cmd, res)
	},
}

func init() {
	inspectCmd.Flags().Bool("verify", false, "also validate with pdfcpu")
	rootCmd.AddCommand(inspectCmd)
}
