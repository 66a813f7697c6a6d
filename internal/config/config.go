package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	envPrefix         = "CHATLOG_"
	maxConfigFileSize = 1024 * 1024

	DefaultInput     = "conversations.json"
	DefaultDBPath    = "chat_history.db"
	DefaultBatchSize = 1000
)

// Config represents the chatlog configuration
type Config struct {
	Input        string    `koanf:"input" yaml:"input"`
	DBPath       string    `koanf:"db_path" yaml:"db_path"`
	BatchSize    int       `koanf:"batch_size" yaml:"batch_size"`
	Order        string    `koanf:"order" yaml:"order"`
	TimeFallback string    `koanf:"time_fallback" yaml:"time_fallback"`
	SkipIndex    bool      `koanf:"skip_index" yaml:"skip_index"`
	MetricsFile  string    `koanf:"metrics_file" yaml:"metrics_file,omitempty"`
	Log          LogConfig `koanf:"log" yaml:"log"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Input:        DefaultInput,
		DBPath:       DefaultDBPath,
		BatchSize:    DefaultBatchSize,
		Order:        "tree",
		TimeFallback: "now",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("CHATLOG_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chatlog"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("CHATLOG_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Chatlog"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatlog"), nil
	}

	return filepath.Join(home, ".local", "share", "chatlog"), nil
}

// DefaultPath returns the config file location inside GetConfigDir.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration with precedence (highest first):
//  1. CHATLOG_* environment variables (CHATLOG_BATCH_SIZE -> batch_size, CHATLOG_LOG_LEVEL -> log.level)
//  2. the YAML file at path (DefaultPath when empty); a missing file is not an error
//  3. Default()
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s too large (%d bytes)", path, info.Size())
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps CHATLOG_LOG_LEVEL to log.level and CHATLOG_BATCH_SIZE to batch_size.
// Only the log section is nested; every other key keeps its underscores.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(key, "log_"); ok {
		return "log." + rest
	}
	return key
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	switch c.Order {
	case "tree", "mapping":
	default:
		return fmt.Errorf("order must be 'tree' or 'mapping', got %q", c.Order)
	}
	switch c.TimeFallback {
	case "now", "epoch":
	default:
		return fmt.Errorf("time_fallback must be 'now' or 'epoch', got %q", c.TimeFallback)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format)
	}
	return nil
}

// Save writes the config to path (DefaultPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
