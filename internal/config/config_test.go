package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "phoenix.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected default driver sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Continuation.ContinuationThreshold != 0.90 {
		t.Fatalf("expected default continuation_threshold 0.90, got %v", cfg.Continuation.ContinuationThreshold)
	}
	if cfg.Executor.MaxAttempts != 3 {
		t.Fatalf("expected default max_attempts 3, got %d", cfg.Executor.MaxAttempts)
	}
}

func TestLoadValidatesDatabaseDriver(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mongodb
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.driver") {
		t.Fatalf("expected database.driver in error, got %v", err)
	}
}

func TestLoadRequiresGatewayBaseURLInGatewayMode(t *testing.T) {
	path := writeConfig(t, `
llm:
  mode: gateway
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "llm.gateway.base_url") {
		t.Fatalf("expected llm.gateway.base_url in error, got %v", err)
	}
}

func TestLoadRequiresDefaultProviderEntryInDirectMode(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider in error, got %v", err)
	}
}

func TestEnvOverrideSwitchesToGatewayMode(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)
	t.Setenv("LLM_GATEWAY", "https://gateway.internal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Mode != "gateway" {
		t.Fatalf("expected mode gateway, got %q", cfg.LLM.Mode)
	}
	if cfg.LLM.Gateway.BaseURL != "https://gateway.internal" {
		t.Fatalf("expected gateway base url override, got %q", cfg.LLM.Gateway.BaseURL)
	}
}

func TestEnvOverrideSetsProviderAPIKey(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test-key" {
		t.Fatalf("expected env override of provider api key, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte("server:\n  host: 10.0.0.1\n"), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	mainPath := filepath.Join(dir, "phoenix.yaml")
	mainContents := "$include: base.yaml\nllm:\n  default_provider: anthropic\n  providers:\n    anthropic: {}\n"
	if err := os.WriteFile(mainPath, []byte(mainContents), 0o644); err != nil {
		t.Fatalf("write main: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "10.0.0.1" {
		t.Fatalf("expected included host, got %q", cfg.Server.Host)
	}
}
