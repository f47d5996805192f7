// Package config loads and persists the subtrans run configuration via
// viper, following the teacher's config.json + $HOME/.config convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every enumerated option from the translation pipeline's
// external interface: transport target, concurrency/rate limits, batch
// sizing, glossary store paths, and per-stage LLM temperatures.
type Config struct {
	// API / transport target
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	APIURL    string `json:"api_url" mapstructure:"api_url"`
	ModelName string `json:"model_name" mapstructure:"model_name"`

	// Concurrency & rate limiting
	MaxConcurrentRequests int `json:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	RPMLimit              int `json:"rpm_limit" mapstructure:"rpm_limit"`
	BatchSize             int `json:"batch_size" mapstructure:"batch_size"`

	// Fault tolerance
	MaxRetries int     `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay float64 `json:"retry_delay" mapstructure:"retry_delay"` // seconds

	// Glossary store
	GlossaryDir         string `json:"glossary_dir" mapstructure:"glossary_dir"`
	GlossaryDBPath      string `json:"glossary_db_path" mapstructure:"glossary_db_path"`
	LLMDiscoveryDBPath  string `json:"llm_discovery_db_path" mapstructure:"llm_discovery_db_path"`
	EnableLLMDiscovery  bool   `json:"enable_llm_discovery" mapstructure:"enable_llm_discovery"`

	// Language & temperatures
	TargetLang  string  `json:"target_lang" mapstructure:"target_lang"` // selects prompt suffix: zh (default) or en
	TempTerms   float64 `json:"temp_terms" mapstructure:"temp_terms"`
	TempLiteral float64 `json:"temp_literal" mapstructure:"temp_literal"`
	TempPolish  float64 `json:"temp_polish" mapstructure:"temp_polish"`

	// Run shape
	Bilingual      bool `json:"bilingual" mapstructure:"bilingual"`
	PrefetchWindow int  `json:"prefetch_window" mapstructure:"prefetch_window"`

	// Ambient
	AutoCheckUpdates bool   `json:"auto_check_updates" mapstructure:"auto_check_updates"`
	LogLevel         string `json:"log_level" mapstructure:"log_level"` // info, debug
}

var (
	configPath = "config.json"
	instance   *Config
)

// Default returns a Config with the same defaults as the original
// translation_pipeline's TranslationConfig dataclass.
func Default() *Config {
	return &Config{
		APIKey:    "",
		APIURL:    "http://localhost:19183/v1/chat/completions",
		ModelName: "openai/gpt-oss-20b",

		MaxConcurrentRequests: 4,
		RPMLimit:              60,
		BatchSize:             8,

		MaxRetries: 3,
		RetryDelay: 2.0,

		GlossaryDir:        "./glossaries",
		GlossaryDBPath:     "./glossary_cache.db",
		LLMDiscoveryDBPath: "./llm_discovery.db",
		EnableLLMDiscovery: true,

		TargetLang:  "zh",
		TempTerms:   0.1,
		TempLiteral: 0.3,
		TempPolish:  0.5,

		Bilingual:      true,
		PrefetchWindow: 3,

		AutoCheckUpdates: true,
		LogLevel:         "info",
	}
}

// Exists checks if config file exists
func Exists() bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// Load reads the configuration from config.json, consulting
// $HOME/.config/subtrans when no local file is present, and falling back
// to Default() when neither exists.
func Load() (*Config, error) {
	if instance != nil {
		return instance, nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/subtrans")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			instance = Default()
			return instance, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	instance = cfg
	return instance, nil
}

// Save writes the configuration to config.json.
func (c *Config) Save() error {
	configDir := filepath.Dir(configPath)
	if configDir != "." && configDir != "" {
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	viper.Set("api_key", c.APIKey)
	viper.Set("api_url", c.APIURL)
	viper.Set("model_name", c.ModelName)
	viper.Set("max_concurrent_requests", c.MaxConcurrentRequests)
	viper.Set("rpm_limit", c.RPMLimit)
	viper.Set("batch_size", c.BatchSize)
	viper.Set("max_retries", c.MaxRetries)
	viper.Set("retry_delay", c.RetryDelay)
	viper.Set("glossary_dir", c.GlossaryDir)
	viper.Set("glossary_db_path", c.GlossaryDBPath)
	viper.Set("llm_discovery_db_path", c.LLMDiscoveryDBPath)
	viper.Set("enable_llm_discovery", c.EnableLLMDiscovery)
	viper.Set("target_lang", c.TargetLang)
	viper.Set("temp_terms", c.TempTerms)
	viper.Set("temp_literal", c.TempLiteral)
	viper.Set("temp_polish", c.TempPolish)
	viper.Set("bilingual", c.Bilingual)
	viper.Set("prefetch_window", c.PrefetchWindow)
	viper.Set("auto_check_updates", c.AutoCheckUpdates)
	viper.Set("log_level", c.LogLevel)

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
