package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weft-ai/weft/internal/decision"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
provider:
  model: claude-test-model
  max_tokens: 1024
memory:
  max_tokens: 5000
runner:
  max_retries: 5
  retry_delay: 2s
snapshot:
  max_snapshots: 4
decision:
  strategy: prefer_builtin
debug: true
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Provider.Model != "claude-test-model" {
		t.Errorf("Provider.Model = %s", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != 1024 {
		t.Errorf("Provider.MaxTokens = %d", cfg.Provider.MaxTokens)
	}
	if cfg.Memory.MaxTokens != 5000 {
		t.Errorf("Memory.MaxTokens = %d", cfg.Memory.MaxTokens)
	}
	if cfg.Runner.MaxRetries != 5 || cfg.Runner.RetryDelay != 2*time.Second {
		t.Errorf("Runner = %+v", cfg.Runner)
	}
	if cfg.Snapshot.MaxSnapshots != 4 {
		t.Errorf("Snapshot.MaxSnapshots = %d", cfg.Snapshot.MaxSnapshots)
	}
	if cfg.Decision.Strategy != decision.StrategyPreferBuiltin {
		t.Errorf("Decision.Strategy = %s", cfg.Decision.Strategy)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	// A minimal file leaves everything else at the built-in defaults.
	path := writeConfig(t, "debug: true\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	def := Default()
	if cfg.Provider.Model != def.Provider.Model {
		t.Errorf("Provider.Model = %s, want default %s", cfg.Provider.Model, def.Provider.Model)
	}
	if cfg.Memory.MaxTokens != def.Memory.MaxTokens {
		t.Errorf("Memory.MaxTokens = %d, want default %d", cfg.Memory.MaxTokens, def.Memory.MaxTokens)
	}
	if cfg.Runner.MaxRetries != def.Runner.MaxRetries {
		t.Errorf("Runner.MaxRetries = %d, want default %d", cfg.Runner.MaxRetries, def.Runner.MaxRetries)
	}
	if cfg.Snapshot.CompressionThreshold != def.Snapshot.CompressionThreshold {
		t.Errorf("Snapshot.CompressionThreshold = %d, want default %d", cfg.Snapshot.CompressionThreshold, def.Snapshot.CompressionThreshold)
	}
	if cfg.Decision.Strategy != decision.StrategyIntelligentAuto {
		t.Errorf("Decision.Strategy = %s, want default", cfg.Decision.Strategy)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFromPathExpandsAPIKeyEnv(t *testing.T) {
	t.Setenv("WEFT_TEST_KEY", "sk-secret")
	path := writeConfig(t, "provider:\n  api_key: ${WEFT_TEST_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Provider.APIKey != "sk-secret" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Provider.APIKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir()) // no user config present
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("WEFT_MODEL", "claude-env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env value", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "claude-env-model" {
		t.Errorf("Model = %q, want env value", cfg.Provider.Model)
	}
}

func TestGetUserConfigPathHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "weft", "config.yaml")
	if got := GetUserConfigPath(); got != want {
		t.Errorf("GetUserConfigPath = %s, want %s", got, want)
	}
}

func TestAnthropicConversion(t *testing.T) {
	p := ProviderConfig{
		Model:         "claude-test",
		APIKey:        "sk-1",
		UseAWSBedrock: true,
		AWSRegion:     "us-west-2",
		AWSProfile:    "dev",
		MaxTokens:     2048,
	}
	a := p.Anthropic()
	if string(a.Model) != "claude-test" || a.APIKey != "sk-1" || !a.UseAWSBedrock {
		t.Errorf("Anthropic() = %+v", a)
	}
	if a.AWSRegion != "us-west-2" || a.AWSProfile != "dev" || a.MaxTokens != 2048 {
		t.Errorf("Anthropic() = %+v", a)
	}
}
