package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigPathEnvOverride(t *testing.T) {
	t.Setenv(envBoostConfig, "/tmp/custom/boost.yaml")
	if got := configPath(); got != "/tmp/custom/boost.yaml" {
		t.Fatalf("configPath() = %q", got)
	}
}

func TestConfigPathDefault(t *testing.T) {
	t.Setenv(envBoostConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	got := configPath()
	if filepath.Base(got) != "config.yaml" || filepath.Base(filepath.Dir(got)) != "boost" {
		t.Fatalf("unexpected default path %q", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(envBoostConfig, writeConfig(t, `
backend: vllm
base_url: http://gpu:8000/v1
sampler: greedy
temperature: 0.2
top_k: 40
seed: 9
strict: true
server_address: 0.0.0.0:9000
`))
	cfg := LoadConfig()
	if cfg.Backend != "vllm" || cfg.BaseURL != "http://gpu:8000/v1" || cfg.Sampler != "greedy" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Fatalf("temperature not loaded: %+v", cfg.Temperature)
	}
	if cfg.TopK == nil || *cfg.TopK != 40 || cfg.Seed == nil || *cfg.Seed != 9 {
		t.Fatalf("integers not loaded: %+v", cfg)
	}
	if cfg.Strict == nil || !*cfg.Strict {
		t.Fatalf("strict not loaded")
	}
	if cfg.TopP != nil {
		t.Fatalf("unset field should stay nil")
	}
}

func TestLoadConfigMissingOrInvalid(t *testing.T) {
	t.Setenv(envBoostConfig, filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg := LoadConfig(); cfg.Backend != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	t.Setenv(envBoostConfig, writeConfig(t, "backend: [unterminated"))
	if cfg := LoadConfig(); cfg.Backend != "" {
		t.Fatalf("expected zero config for invalid yaml, got %+v", cfg)
	}
}

// runWithFlags parses args against the model and sampler flags and applies
// cfg the way the generate command does.
func runWithFlags(t *testing.T, cfg Config, args ...string) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: append(commonModelFlags(), samplerFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, cfg)
			applySamplerConfig(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestApplyConfigRespectsFlags(t *testing.T) {
	temp := 0.2
	topKVal := int64(40)
	cfg := Config{Backend: "openai", Sampler: "greedy", Temperature: &temp, TopK: &topKVal}

	runWithFlags(t, cfg, "--backend", "local", "--temperature", "0.7")
	if backend != "local" {
		t.Fatalf("flag should win over config: backend=%q", backend)
	}
	if temperature != 0.7 {
		t.Fatalf("flag should win over config: temperature=%v", temperature)
	}
	if samplerName != "greedy" || topK != 40 {
		t.Fatalf("config should fill unset flags: sampler=%q topK=%d", samplerName, topK)
	}

	runWithFlags(t, Config{})
	if backend != "local" || samplerName != "multinomial" || topK != 0 {
		t.Fatalf("flag defaults not restored: backend=%q sampler=%q topK=%d", backend, samplerName, topK)
	}
}

func TestSamplerConfigFromFlags(t *testing.T) {
	runWithFlags(t, Config{}, "--sampler", "greedy", "--temperature", "0.9", "--seed", "4")
	cfg, err := samplerConfig()
	if err != nil {
		t.Fatalf("samplerConfig: %v", err)
	}
	if cfg.Temperature != 0 || cfg.Seed != 4 {
		t.Fatalf("unexpected sampler config: %+v", cfg)
	}

	runWithFlags(t, Config{}, "--sampler", "beam")
	if _, err := samplerConfig(); err == nil {
		t.Fatalf("expected unknown sampler error")
	}
}

func TestStreamTo(t *testing.T) {
	var buf bytes.Buffer
	sf := streamTo(&buf)
	sf(0, "12")
	sf(0, "3")
	sf(1, "45")
	if got := buf.String(); got != "123\n45" {
		t.Fatalf("stream output = %q", got)
	}
}
