package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Hub.Token != "" {
		t.Error("default config must not carry a hub token")
	}
	if cfg.Generation.MaxConcurrent != 1 {
		t.Errorf("Expected max_concurrent 1, got %d", cfg.Generation.MaxConcurrent)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  addr: "127.0.0.1:9000"
model:
  repo: "someone/tiny-model"
  file: "tiny.Q4_K_M.gguf"
  device: cpu
  cache_dir: "` + filepath.Join(dir, "cache") + `"
generation:
  max_concurrent: 2
  queue_timeout: 5s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Expected addr from file, got %s", cfg.Server.Addr)
	}
	if cfg.Model.Repo != "someone/tiny-model" || cfg.Model.File != "tiny.Q4_K_M.gguf" {
		t.Errorf("Unexpected model section: %+v", cfg.Model)
	}
	if cfg.Generation.MaxConcurrent != 2 {
		t.Errorf("Expected max_concurrent 2, got %d", cfg.Generation.MaxConcurrent)
	}
	if cfg.Generation.QueueTimeout != 5*time.Second {
		t.Errorf("Expected queue_timeout 5s, got %s", cfg.Generation.QueueTimeout)
	}
	// untouched keys keep their defaults
	if cfg.Model.Revision != "main" {
		t.Errorf("Expected default revision, got %s", cfg.Model.Revision)
	}
}

func TestLoadTokenFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HF_TOKEN", "hf_from_env")

	cfg, err := Load(writeMinimal(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hub.Token != "hf_from_env" {
		t.Errorf("Expected token from HF_TOKEN, got %q", cfg.Hub.Token)
	}

	t.Setenv("VSMSERVE_HUB_TOKEN", "hf_prefixed")
	cfg, err = Load(writeMinimal(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hub.Token != "hf_prefixed" {
		t.Errorf("Expected prefixed variable to win, got %q", cfg.Hub.Token)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("VSMSERVE_SERVER_ADDR", "127.0.0.1:1234")
	t.Setenv("VSMSERVE_MODEL_DEVICE", "cpu")

	cfg, err := Load(writeMinimal(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:1234" {
		t.Errorf("Expected env addr, got %s", cfg.Server.Addr)
	}
	if cfg.Model.Device != "cpu" {
		t.Errorf("Expected env device, got %s", cfg.Model.Device)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"zero hub timeout", func(c *Config) { c.Hub.Timeout = 0 }, "hub.timeout"},
		{"empty repo", func(c *Config) { c.Model.Repo = "" }, "model.repo"},
		{"tiny context", func(c *Config) { c.Model.ContextSize = 16 }, "context_size"},
		{"bad device", func(c *Config) { c.Model.Device = "tpu" }, "model.device"},
		{"negative layers", func(c *Config) { c.Model.GPULayers = -1 }, "gpu_layers"},
		{"zero concurrency", func(c *Config) { c.Generation.MaxConcurrent = 0 }, "max_concurrent"},
		{"zero queue timeout", func(c *Config) { c.Generation.QueueTimeout = 0 }, "queue_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error %q should mention %q", err, tt.errSub)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hub.Token = "hf_secret"

	r := cfg.Redacted()
	if r.Hub.Token == "hf_secret" {
		t.Error("Redacted must hide the token")
	}
	if cfg.Hub.Token != "hf_secret" {
		t.Error("Redacted must not modify the original")
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := DefaultConfig()
	cfg.Model.CacheDir = "~/models"
	cfg.ExpandPaths()
	if cfg.Model.CacheDir != filepath.Join(home, "models") {
		t.Errorf("Expected expanded path, got %s", cfg.Model.CacheDir)
	}
}

func writeMinimal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, "VSMSERVE_") || key == "HF_TOKEN" {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
