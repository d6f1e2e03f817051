package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUsesDefaultsWhenNoFilesPresent(t *testing.T) {
	dir := t.TempDir()
	// The default claude backend needs a key to pass Validate.
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Core.SampleRate != 16000 || cfg.Core.ChunkMs != 32 {
		t.Fatalf("expected default core config, got %+v", cfg.Core)
	}
	if len(cfg.Whisper.Params) != 5 {
		t.Fatalf("expected 5-phase default param table, got %d", len(cfg.Whisper.Params))
	}
}

func TestLoadDeepMergeLaterWins(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[summary]
trigger_threshold = 100
backend = "vllm"
base_url = "http://localhost:8000/v1"

[hallucination]
min_char_repetition = 8
`), 0o644)
	os.WriteFile(filepath.Join(dir, "config.local.toml"), []byte(`
[summary]
trigger_threshold = 900
`), 0o644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Summary.TriggerThreshold != 900 {
		t.Fatalf("expected config.local.toml to win on trigger_threshold, got %d", cfg.Summary.TriggerThreshold)
	}
	// Disjoint key from config.toml must survive the local overlay untouched.
	if cfg.Hallucination.MinCharRepetition != 8 {
		t.Fatalf("expected disjoint key from base file preserved, got %d", cfg.Hallucination.MinCharRepetition)
	}
	if cfg.Summary.Backend != "vllm" {
		t.Fatalf("expected backend preserved from base file, got %q", cfg.Summary.Backend)
	}
}

func TestValidateRejectsWrongSampleRate(t *testing.T) {
	cfg := Default()
	cfg.Core.SampleRate = 44100
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for non-16kHz sample rate")
	}
}

func TestValidateRejectsMismatchedChunkSize(t *testing.T) {
	cfg := Default()
	cfg.Core.ChunkMs = 20 // 16000*20/1000 = 320, not 512
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for chunk size != 512")
	}
}

func TestValidateRejectsClaudeBackendWithoutKey(t *testing.T) {
	cfg := Default()
	cfg.Summary.Enabled = true
	cfg.Summary.Backend = "claude"
	cfg.Summary.APIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for missing claude api key")
	}
}

func TestLoadFallsBackToAnthropicEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Summary.APIKey != "sk-test-123" {
		t.Fatalf("expected ANTHROPIC_API_KEY to fill summary.api_key, got %q", cfg.Summary.APIKey)
	}
}
