package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create --name NAME FILE...",
	Short: "Merge files and record the result in the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		batch, err := inputs(args)
		if err != nil {
			return err
		}
		rec, err := a.svc.CreateRecord(context.Background(), name, batch)
		if err != nil {
			return err
		}
		return printResult(cmd, rec)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		recs, err := a.svc.GetAll(context.Background())
		if err != nil {
			return err
		}
		return printResult(cmd, recs)
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one recorded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		rec, err := a.svc.GetByID(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, rec)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download ID",
	Short: "Copy a recorded document to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		_, src, err := a.svc.Open(context.Background(), args[0])
		if err != nil {
			return err
		}
		defer src.Close()

		var dst io.Writer = cmd.OutOrStdout()
		if out != "" && out != "-" {
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			dst = f
		}
		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("copy document: %w", err)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a recorded document and its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.svc.Delete(context.Background(), args[0])
	},
}

func init() {
	createCmd.Flags().String("name", "", "document name")
	createCmd.MarkFlagRequired("name")
	downloadCmd.Flags().StringP("out", "o", "", "destination file (default: stdout)")

	rootCmd.AddCommand(createCmd, listCmd, showCmd, downloadCmd, deleteCmd)
}
