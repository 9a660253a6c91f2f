// Package config loads pdfmerge settings from a YAML file and PDFMERGE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/transcode"
)

// EnvPrefix prefixes every environment override, e.g.
// PDFMERGE_ENGINE_MAX_FILES.
const EnvPrefix = "PDFMERGE"

// EngineConfig holds the merge contract and output tuning.
type EngineConfig struct {
	MaxFiles    int    `json:"max_files" yaml:"max_files" mapstructure:"max_files"`
	MaxFileSize int64  `json:"max_file_size" yaml:"max_file_size" mapstructure:"max_file_size"`
	StagingDir  string `json:"staging_dir" yaml:"staging_dir" mapstructure:"staging_dir"`
	// Strict disables cross-reference repair of damaged inputs.
	Strict       bool `json:"strict" yaml:"strict" mapstructure:"strict"`
	Deduplicate  bool `json:"deduplicate" yaml:"deduplicate" mapstructure:"deduplicate"`
	ImageMaxSide int  `json:"image_max_side" yaml:"image_max_side" mapstructure:"image_max_side"`
	ImageQuality int  `json:"image_quality" yaml:"image_quality" mapstructure:"image_quality"`
}

// StorageConfig locates published documents.
type StorageConfig struct {
	Root      string `json:"root" yaml:"root" mapstructure:"root"`
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
	// Verify validates every document with pdfcpu before publishing it.
	Verify bool `json:"verify" yaml:"verify" mapstructure:"verify"`
}

type CatalogConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

type Config struct {
	Engine  EngineConfig  `json:"engine" yaml:"engine" mapstructure:"engine"`
	Storage StorageConfig `json:"storage" yaml:"storage" mapstructure:"storage"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	Log     LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
}

// Defaults registers the default of every key on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("engine.max_files", merge.DefaultMaxFiles)
	v.SetDefault("engine.max_file_size", merge.DefaultMaxFileSize)
	v.SetDefault("engine.staging_dir", "")
	v.SetDefault("engine.strict", false)
	v.SetDefault("engine.deduplicate", true)
	v.SetDefault("engine.image_max_side", transcode.DefaultMaxSide)
	v.SetDefault("engine.image_quality", transcode.DefaultQuality)
	v.SetDefault("storage.root", "wwwroot")
	v.SetDefault("storage.output_dir", "pdf")
	v.SetDefault("storage.verify", false)
	v.SetDefault("catalog.path", "data/records.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, when given, on top of the defaults and environment.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_files must be positive, got %d", c.Engine.MaxFiles))
	}
	if c.Engine.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_file_size must be positive, got %d", c.Engine.MaxFileSize))
	}
	if c.Engine.ImageQuality < 1 || c.Engine.ImageQuality > 100 {
		errs = append(errs, fmt.Errorf("engine.image_quality must be within 1..100, got %d", c.Engine.ImageQuality))
	}
	if c.Engine.ImageMaxSide <= 0 {
		errs = append(errs, fmt.Errorf("engine.image_max_side must be positive, got %d", c.Engine.ImageMaxSide))
	}
	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}
	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}
	return errors.Join(errs...)
}

// MergeConfig translates the engine section into a merge.Config.
func (c Config) MergeConfig() merge.Config {
	mc := merge.DefaultConfig()
	mc.Limits = merge.Limits{MaxFiles: c.Engine.MaxFiles, MaxFileSize: c.Engine.MaxFileSize}
	mc.StagingRoot = c.Engine.StagingDir
	mc.Strict = c.Engine.Strict
	mc.Deduplicate = c.Engine.Deduplicate
	mc.Transcode.MaxSide = c.Engine.ImageMaxSide
	mc.Transcode.Quality = c.Engine.ImageQuality
	return mc
}
