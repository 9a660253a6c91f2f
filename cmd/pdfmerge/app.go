package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/wudi/pdfmerge/catalog"
	"github.com/wudi/pdfmerge/config"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/service"
	"github.com/wudi/pdfmerge/store"
	"github.com/wudi/pdfmerge/verify"
)

// loadConfig reads the config file named by --config, or the first
// pdfmerge.yaml found in the working directory or ~/.config/pdfmerge.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.New()
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pdfmerge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pdfmerge"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return config.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		v.Set("log.level", lvl)
	}
	return config.FromViper(v)
}

func newLogger(cfg config.LogConfig, w io.Writer) observability.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return observability.NewSlogLogger(slog.New(h))
}

func newEngine(cfg config.Config, logger observability.Logger) (*merge.Engine, error) {
	mc := cfg.MergeConfig()
	mc.Logger = logger
	return merge.New(mc)
}

func newStore(root string, verifyOutput bool, logger observability.Logger) (*store.Local, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if verifyOutput {
		opts = append(opts, store.WithVerify(verify.Pages(0)))
	}
	return store.NewLocal(root, opts...)
}

// app is the fully wired record service.
type app struct {
	svc     *service.Service
	catalog *catalog.Store
}

func (a *app) Close() error { return a.catalog.Close() }

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg.Storage.Root, cfg.Storage.Verify, logger)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.NewStore(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	svc := service.New(engine, st, cat, service.Options{OutputDir: cfg.Storage.OutputDir, Logger: logger})
	return &app{svc: svc, catalog: cat}, nil
}

// inputs opens every path as a merge input.
func inputs(paths []string) ([]merge.Input, error) {
	out := make([]merge.Input, 0, len(paths))
	for _, p := range paths {
		in, err := merge.FileInput(p)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// printResult writes v in the format chosen with --output.
func printResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
