package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Hub        HubConfig        `mapstructure:"hub"`
	Model      ModelConfig      `mapstructure:"model"`
	Generation GenerationConfig `mapstructure:"generation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	Mode              string        `mapstructure:"mode"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
}

// HubConfig holds model hub access. Token is never set from a literal in
// source; it comes from the config file or the environment.
type HubConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ModelConfig struct {
	Repo        string `mapstructure:"repo"`
	File        string `mapstructure:"file"`
	Revision    string `mapstructure:"revision"`
	CacheDir    string `mapstructure:"cache_dir"`
	Offline     bool   `mapstructure:"offline"`
	Device      string `mapstructure:"device"`
	GPULayers   int    `mapstructure:"gpu_layers"`
	ContextSize int    `mapstructure:"context_size"`
	Threads     int    `mapstructure:"threads"`
	BatchSize   int    `mapstructure:"batch_size"`
	UseMMap     bool   `mapstructure:"use_mmap"`
}

type GenerationConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	baseDir := filepath.Join(home, ".vsmserve")

	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0:8000",
			Mode:              "release",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Hub: HubConfig{
			Endpoint: "https://huggingface.co",
			Timeout:  30 * time.Second,
		},
		Model: ModelConfig{
			Repo:        "nishit1945/VSM-LLM",
			Revision:    "main",
			CacheDir:    filepath.Join(baseDir, "models"),
			Device:      "auto",
			GPULayers:   999,
			ContextSize: 2048,
			Threads:     runtime.NumCPU(),
			BatchSize:   512,
			UseMMap:     true,
		},
		Generation: GenerationConfig{
			MaxConcurrent: 1,
			QueueTimeout:  75 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Console:    true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".vsmserve"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("VSMSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional hub variable is honored as well as the prefixed one.
	if err := v.BindEnv("hub.token", "VSMSERVE_HUB_TOKEN", "HF_TOKEN"); err != nil {
		return nil, fmt.Errorf("binding hub token: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	validModes := []string{"debug", "release", "test"}
	if !contains(validModes, c.Server.Mode) {
		return fmt.Errorf("server.mode must be one of: %v", validModes)
	}

	if c.Hub.Endpoint == "" {
		return errors.New("hub.endpoint is required")
	}

	if c.Hub.Timeout <= 0 {
		return errors.New("hub.timeout must be positive")
	}

	if c.Model.Repo == "" {
		return errors.New("model.repo is required")
	}

	if c.Model.ContextSize < 128 || c.Model.ContextSize > 131072 {
		return errors.New("model.context_size must be between 128 and 131072")
	}

	if c.Model.Threads < 0 {
		return errors.New("model.threads must not be negative")
	}

	if c.Model.GPULayers < 0 {
		return errors.New("model.gpu_layers must not be negative")
	}

	validDevices := []string{"auto", "cpu", "gpu", "cuda", "metal"}
	if !contains(validDevices, strings.ToLower(c.Model.Device)) {
		return fmt.Errorf("model.device must be one of: %v", validDevices)
	}

	if c.Generation.MaxConcurrent < 1 {
		return errors.New("generation.max_concurrent must be at least 1")
	}

	if c.Generation.QueueTimeout <= 0 {
		return errors.New("generation.queue_timeout must be positive")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Model.CacheDir = expandPath(c.Model.CacheDir)
	c.Logging.File = expandPath(c.Logging.File)
}

// Redacted returns a copy safe to print or log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Hub.Token != "" {
		out.Hub.Token = "***"
	}
	return out
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)
	v.SetDefault("server.read_header_timeout", cfg.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)

	v.SetDefault("hub.endpoint", cfg.Hub.Endpoint)
	v.SetDefault("hub.token", "")
	v.SetDefault("hub.timeout", cfg.Hub.Timeout)

	v.SetDefault("model.repo", cfg.Model.Repo)
	v.SetDefault("model.file", cfg.Model.File)
	v.SetDefault("model.revision", cfg.Model.Revision)
	v.SetDefault("model.cache_dir", cfg.Model.CacheDir)
	v.SetDefault("model.offline", cfg.Model.Offline)
	v.SetDefault("model.device", cfg.Model.Device)
	v.SetDefault("model.gpu_layers", cfg.Model.GPULayers)
	v.SetDefault("model.context_size", cfg.Model.ContextSize)
	v.SetDefault("model.threads", cfg.Model.Threads)
	v.SetDefault("model.batch_size", cfg.Model.BatchSize)
	v.SetDefault("model.use_mmap", cfg.Model.UseMMap)

	v.SetDefault("generation.max_concurrent", cfg.Generation.MaxConcurrent)
	v.SetDefault("generation.queue_timeout", cfg.Generation.QueueTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
