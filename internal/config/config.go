// Package config handles configuration loading for weft. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/viper"

	"github.com/weft-ai/weft/internal/decision"
	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/memory"
	"github.com/weft-ai/weft/internal/runner"
	"github.com/weft-ai/weft/internal/snapshot"
)

// Config holds all configuration for weft.
type Config struct {
	Provider ProviderConfig  `mapstructure:"provider"`
	Memory   memory.Config   `mapstructure:"memory"`
	Runner   runner.Config   `mapstructure:"runner"`
	Snapshot snapshot.Config `mapstructure:"snapshot"`
	Decision decision.Config `mapstructure:"decision"`
	Debug    bool            `mapstructure:"debug"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	// Model is the model identifier passed to the provider.
	Model string `mapstructure:"model"`
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes requests through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
	// MaxTokens is the default response cap per request.
	MaxTokens int `mapstructure:"max_tokens"`
}

// Anthropic converts the provider section to the LLM client configuration.
func (p ProviderConfig) Anthropic() llm.AnthropicConfig {
	return llm.AnthropicConfig{
		Model:         anthropic.Model(p.Model),
		APIKey:        p.APIKey,
		UseAWSBedrock: p.UseAWSBedrock,
		AWSRegion:     p.AWSRegion,
		AWSProfile:    p.AWSProfile,
		MaxTokens:     p.MaxTokens,
	}
}

// Load loads configuration with the following precedence (highest first):
// environment variables, project config (.weft.yaml in the working
// directory or a parent), user config (~/.config/weft/config.yaml),
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("provider.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("provider.model", "WEFT_MODEL")
	v.BindEnv("debug", "WEFT_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.model", string(anthropic.ModelClaudeSonnet4_20250514))
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.use_aws_bedrock", false)
	v.SetDefault("provider.max_tokens", 4096)

	mem := memory.DefaultConfig()
	v.SetDefault("memory.max_tokens", mem.MaxTokens)
	v.SetDefault("memory.max_messages", mem.MaxMessages)
	v.SetDefault("memory.compression_threshold", mem.CompressionThreshold)
	v.SetDefault("memory.compression_trigger_ratio", mem.CompressionTriggerRatio)
	v.SetDefault("memory.compression_target_count", mem.CompressionTargetCount)
	v.SetDefault("memory.truncate_threshold", mem.TruncateThreshold)
	v.SetDefault("memory.max_history_records", mem.MaxHistoryRecords)

	run := runner.DefaultConfig()
	v.SetDefault("runner.max_retries", run.MaxRetries)
	v.SetDefault("runner.retry_delay", run.RetryDelay.String())

	snap := snapshot.DefaultConfig()
	v.SetDefault("snapshot.max_snapshots", snap.MaxSnapshots)
	v.SetDefault("snapshot.compression_threshold", snap.CompressionThreshold)
	v.SetDefault("snapshot.auto_interval", snap.AutoInterval.String())

	v.SetDefault("decision.strategy", "intelligent_auto")
	v.SetDefault("decision.preference", "")

	v.SetDefault("debug", false)
}

// getUserConfigDir returns the XDG config directory for weft.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weft")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weft")
	}
	return filepath.Join(home, ".config", "weft")
}

// findProjectConfig searches for .weft.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weft.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:     string(anthropic.ModelClaudeSonnet4_20250514),
			MaxTokens: 4096,
		},
		Memory:   memory.DefaultConfig(),
		Runner:   runner.DefaultConfig(),
		Snapshot: snapshot.DefaultConfig(),
		Decision: decision.Config{Strategy: decision.StrategyIntelligentAuto},
	}
}
