// Package config loads thpp settings from a YAML file.
//
// Configuration is loaded from a single file specified by:
//   - THPP_CONFIG environment variable, or
//   - --config flag passed to the command
//
// Fields missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/thpp/internal/archive"
	"github.com/born-ml/thpp/internal/serialization"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "THPP_CONFIG"

// Config is the top-level configuration.
type Config struct {
	// Codec configures tensor encoding.
	Codec CodecConfig `yaml:"codec"`

	// Archive configures archive files.
	Archive ArchiveConfig `yaml:"archive"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// CodecConfig configures tensor encoding.
type CodecConfig struct {
	// Sharing is the sharing mode: none, iobuf_managed or all.
	// Default: iobuf_managed
	Sharing string `yaml:"sharing"`

	// MinCloneSize is the smallest run, in bytes, emitted by reference.
	// Default: 4096
	MinCloneSize int `yaml:"min_clone_size"`

	// MaxBlockSize bounds the blocks copied runs are packed into.
	// Default: 2097152
	MaxBlockSize int `yaml:"max_block_size"`

	// Compression for frames and archive payloads: none, lz4, zstd,
	// snappy or shuffle_lz4.
	// Default: none
	Compression string `yaml:"compression"`
}

// ArchiveConfig configures archive files.
type ArchiveConfig struct {
	// Alignment of payloads in written archives, a power of two.
	// Default: 64
	Alignment int `yaml:"alignment"`

	// Mmap maps archives instead of reading them into memory.
	// Default: true
	Mmap bool `yaml:"mmap"`

	// Verify checks payload digests on load.
	// Default: true
	Verify bool `yaml:"verify"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Codec: CodecConfig{
			Sharing:      serialization.ShareIOBufManaged.String(),
			MinCloneSize: serialization.DefaultMinCloneSize,
			MaxBlockSize: serialization.DefaultMaxBlockSize,
			Compression:  serialization.CompressionNone.String(),
		},
		Archive: ArchiveConfig{
			Alignment: archive.DefaultAlignment,
			Mmap:      true,
			Verify:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by THPP_CONFIG. Without
// it set, the defaults are returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path and validates it.
func LoadFile(path string) (*Config, error) {
	//nolint:gosec // G304: path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := serialization.ParseSharingMode(c.Codec.Sharing); err != nil {
		errs = append(errs, fmt.Errorf("codec.sharing: %w", err))
	}
	if _, err := serialization.ParseCompression(c.Codec.Compression); err != nil {
		errs = append(errs, fmt.Errorf("codec.compression: %w", err))
	}
	if c.Codec.MinCloneSize <= 0 {
		errs = append(errs, fmt.Errorf("codec.min_clone_size must be positive, got %d", c.Codec.MinCloneSize))
	}
	if c.Codec.MaxBlockSize <= 0 {
		errs = append(errs, fmt.Errorf("codec.max_block_size must be positive, got %d", c.Codec.MaxBlockSize))
	}
	if a := c.Archive.Alignment; a <= 0 || a&(a-1) != 0 {
		errs = append(errs, fmt.Errorf("archive.alignment must be a power of two, got %d", a))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// CodecOptions returns the encoding options described by the config.
func (c *Config) CodecOptions(logger *slog.Logger) serialization.Options {
	sharing, _ := serialization.ParseSharingMode(c.Codec.Sharing)
	return serialization.Options{
		Endianness:   serialization.Native,
		Sharing:      sharing,
		MinCloneSize: c.Codec.MinCloneSize,
		MaxBlockSize: c.Codec.MaxBlockSize,
		Logger:       logger,
	}
}

// FrameOptions returns the framing options described by the config.
func (c *Config) FrameOptions() serialization.FrameOptions {
	comp, _ := serialization.ParseCompression(c.Codec.Compression)
	return serialization.FrameOptions{Compression: comp}
}

// WriterOptions returns archive writer options described by the config.
func (c *Config) WriterOptions(logger *slog.Logger) archive.WriterOptions {
	comp, _ := serialization.ParseCompression(c.Codec.Compression)
	return archive.WriterOptions{
		Compression: comp,
		Alignment:   c.Archive.Alignment,
		Logger:      logger,
	}
}

// ReaderOptions returns archive reader options described by the config.
func (c *Config) ReaderOptions(logger *slog.Logger) archive.ReaderOptions {
	sharing, _ := serialization.ParseSharingMode(c.Codec.Sharing)
	return archive.ReaderOptions{
		Mmap:        c.Archive.Mmap,
		Sharing:     sharing,
		SkipDigests: !c.Archive.Verify,
		Logger:      logger,
	}
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger returns a logger writing to w in the configured format. When
// verbose is set the level is lowered to debug.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
