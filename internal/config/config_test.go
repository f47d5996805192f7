package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.APIURL != "http://localhost:19183/v1/chat/completions" {
		t.Errorf("unexpected APIURL: %q", cfg.APIURL)
	}

	if cfg.ModelName != "openai/gpt-oss-20b" {
		t.Errorf("unexpected ModelName: %q", cfg.ModelName)
	}

	if cfg.MaxConcurrentRequests != 4 {
		t.Errorf("expected MaxConcurrentRequests 4, got %d", cfg.MaxConcurrentRequests)
	}

	if cfg.RPMLimit != 60 {
		t.Errorf("expected RPMLimit 60, got %d", cfg.RPMLimit)
	}

	if cfg.BatchSize != 8 {
		t.Errorf("expected BatchSize 8, got %d", cfg.BatchSize)
	}

	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries)
	}

	if cfg.RetryDelay != 2.0 {
		t.Errorf("expected RetryDelay 2.0, got %f", cfg.RetryDelay)
	}

	if !cfg.EnableLLMDiscovery {
		t.Error("expected EnableLLMDiscovery to default true")
	}

	if cfg.TargetLang != "zh" {
		t.Errorf("expected TargetLang 'zh', got %q", cfg.TargetLang)
	}

	if cfg.TempTerms != 0.1 || cfg.TempLiteral != 0.3 || cfg.TempPolish != 0.5 {
		t.Errorf("unexpected temperatures: terms=%f literal=%f polish=%f", cfg.TempTerms, cfg.TempLiteral, cfg.TempPolish)
	}

	if !cfg.Bilingual {
		t.Error("expected Bilingual to default true")
	}

	if cfg.PrefetchWindow != 3 {
		t.Errorf("expected PrefetchWindow 3, got %d", cfg.PrefetchWindow)
	}

	if !cfg.AutoCheckUpdates {
		t.Error("expected AutoCheckUpdates to be true")
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel 'info', got %q", cfg.LogLevel)
	}
}

func TestExists(t *testing.T) {
	originalPath := configPath
	configPath = "nonexistent_config_test.json"
	defer func() { configPath = originalPath }()

	if Exists() {
		t.Error("Exists() should return false for non-existent file")
	}

	tmpDir := t.TempDir()
	tmpConfig := filepath.Join(tmpDir, "config.json")
	configPath = tmpConfig
	if err := os.WriteFile(tmpConfig, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists() {
		t.Error("Exists() should return true for existing file")
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	tmpConfig := filepath.Join(tmpDir, "config.json")
	originalPath := configPath
	configPath = tmpConfig
	defer func() { configPath = originalPath }()

	cfg := Default()
	cfg.TargetLang = "en"
	cfg.ModelName = "gpt-4o-mini"
	err := cfg.Save()

	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(tmpConfig); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	if len(content) == 0 {
		t.Error("config file should not be empty")
	}
}

func TestConfigStruct(t *testing.T) {
	cfg := &Config{
		APIKey:                "sk-test-key",
		APIURL:                "https://api.example.com/v1/chat/completions",
		ModelName:             "gpt-4o",
		MaxConcurrentRequests: 8,
		RPMLimit:              120,
		BatchSize:             12,
		MaxRetries:            5,
		RetryDelay:            1.5,
		GlossaryDir:           "./glossaries",
		GlossaryDBPath:        "./glossary_cache.db",
		LLMDiscoveryDBPath:    "./llm_discovery.db",
		EnableLLMDiscovery:    false,
		TargetLang:            "en",
		TempTerms:             0.2,
		TempLiteral:           0.4,
		TempPolish:            0.6,
		Bilingual:             false,
		PrefetchWindow:        5,
		AutoCheckUpdates:      false,
		LogLevel:              "debug",
	}

	if cfg.APIKey != "sk-test-key" {
		t.Errorf("unexpected APIKey: %q", cfg.APIKey)
	}

	if cfg.EnableLLMDiscovery {
		t.Error("EnableLLMDiscovery should be false")
	}

	if cfg.Bilingual {
		t.Error("Bilingual should be false")
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected LogLevel: %q", cfg.LogLevel)
	}
}
