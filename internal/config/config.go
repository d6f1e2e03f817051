// Package config loads and validates the TOML configuration described in
// spec §6: a base config.toml merged with an optional config.local.toml,
// later wins, on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/yujixr/stream-scribe/internal/asr"
	"github.com/yujixr/stream-scribe/internal/vad"
)

// CoreConfig fixes the PCM window shape shared by the VAD model, the
// pre-roll buffer, and the ASR engine.
type CoreConfig struct {
	SampleRate int `toml:"sample_rate"`
	ChunkMs    int `toml:"chunk_ms"`
}

// ChunkSize is the derived sample count per chunk.
func (c CoreConfig) ChunkSize() int { return c.SampleRate * c.ChunkMs / 1000 }

// AudioConfig tunes the audio-source/queue blocking points.
type AudioConfig struct {
	BlockSec           float64 `toml:"block_sec"`
	QueueGetTimeoutSec float64 `toml:"queue_get_timeout_sec"`
}

// VADDetectionConfig mirrors vad.Thresholds plus the pre-roll duration.
type VADDetectionConfig struct {
	StartThreshold   float64 `toml:"start_threshold"`
	EndThreshold     float64 `toml:"end_threshold"`
	MinSpeechChunks  int     `toml:"min_speech_chunks"`
	MaxSilenceChunks int     `toml:"max_silence_chunks"`
	IdleResetChunks  int     `toml:"idle_reset_chunks"`
	PreRollSec       float64 `toml:"pre_roll_sec"`
}

// ToThresholds converts to the vad package's pure-function configuration.
func (d VADDetectionConfig) ToThresholds() vad.Thresholds {
	return vad.Thresholds{
		StartThreshold:   d.StartThreshold,
		EndThreshold:     d.EndThreshold,
		MinSpeechChunks:  d.MinSpeechChunks,
		MaxSilenceChunks: d.MaxSilenceChunks,
		IdleResetChunks:  d.IdleResetChunks,
	}
}

// VADModelConfig points at the Silero ONNX graph and its on-disk cache path.
type VADModelConfig struct {
	URL       string `toml:"url"`
	CachePath string `toml:"cache_path"`
}

type VADConfig struct {
	Model     VADModelConfig     `toml:"model"`
	Detection VADDetectionConfig `toml:"detection"`
}

// WhisperParamConfig is one entry of the five-phase ASR parameter table.
type WhisperParamConfig struct {
	Language                string  `toml:"language"`
	Temperature             float64 `toml:"temperature"`
	ConditionOnPreviousText bool    `toml:"condition_on_previous_text"`
	InitialPrompt           *string `toml:"initial_prompt"`
	CompressionRatioThresh  float64 `toml:"compression_ratio_threshold"`
	LogprobThresh           float64 `toml:"logprob_threshold"`
	NoSpeechThresh          float64 `toml:"no_speech_threshold"`
}

func (p WhisperParamConfig) toASRParams() asr.Params {
	return asr.Params{
		Language:                p.Language,
		Temperature:             p.Temperature,
		ConditionOnPreviousText: p.ConditionOnPreviousText,
		InitialPrompt:           p.InitialPrompt,
		CompressionRatioThresh:  p.CompressionRatioThresh,
		LogprobThresh:           p.LogprobThresh,
		NoSpeechThresh:          p.NoSpeechThresh,
	}
}

type WhisperConfig struct {
	Model              string                `toml:"model"`
	ShutdownTimeoutSec float64               `toml:"shutdown_timeout_sec"`
	Params             []WhisperParamConfig  `toml:"params"`
}

// ToParamTable converts the configured phase table to asr.Params, falling
// back to the spec's canonical defaults if the config omitted it entirely.
func (w WhisperConfig) ToParamTable() []asr.Params {
	if len(w.Params) == 0 {
		return asr.DefaultParamTable()
	}
	out := make([]asr.Params, len(w.Params))
	for i, p := range w.Params {
		out[i] = p.toASRParams()
	}
	return out
}

// HallucinationConfig mirrors asr.FilterConfig for TOML decoding.
type HallucinationConfig struct {
	BannedPhrases               []string `toml:"banned_phrases"`
	GreetingPhrases              []string `toml:"greeting_phrases"`
	MinCharRepetition           int      `toml:"min_char_repetition"`
	ShortMaxPatternLen          int      `toml:"short_max_pattern_len"`
	PatternSearchStartPositions int      `toml:"pattern_search_start_positions"`
	MinShortRepetition          int      `toml:"min_short_repetition"`
	RepetitionRatioThreshold    float64  `toml:"repetition_ratio_threshold"`
	LongMinPatternLen           int      `toml:"long_min_pattern_len"`
	LongMaxPatternLen           int      `toml:"long_max_pattern_len"`
	MinLongRepetition           int      `toml:"min_long_repetition"`
	MinTokenRepetition          int      `toml:"min_token_repetition"`
	ShortTextThreshold          int      `toml:"short_text_threshold"`
	LowLogprobThreshold         float64  `toml:"low_logprob_threshold"`
	LongAudioThreshold          float64  `toml:"long_audio_threshold"`
	ExtremeLowLogprobThreshold  float64  `toml:"extreme_low_logprob_threshold"`
}

func (h HallucinationConfig) ToFilterConfig() asr.FilterConfig {
	return asr.FilterConfig{
		BannedPhrases:               h.BannedPhrases,
		GreetingPhrases:              h.GreetingPhrases,
		MinCharRepetition:           h.MinCharRepetition,
		ShortMaxPatternLen:          h.ShortMaxPatternLen,
		PatternSearchStartPositions: h.PatternSearchStartPositions,
		MinShortRepetition:          h.MinShortRepetition,
		RepetitionRatioThreshold:    h.RepetitionRatioThreshold,
		LongMinPatternLen:           h.LongMinPatternLen,
		LongMaxPatternLen:           h.LongMaxPatternLen,
		MinLongRepetition:           h.MinLongRepetition,
		MinTokenRepetition:          h.MinTokenRepetition,
		ShortTextThreshold:          h.ShortTextThreshold,
		LowLogprobThreshold:         h.LowLogprobThreshold,
		LongAudioThreshold:          h.LongAudioThreshold,
		ExtremeLowLogprobThreshold:  h.ExtremeLowLogprobThreshold,
	}
}

// SummaryConfig configures C6: trigger thresholds and the LLM backend.
type SummaryConfig struct {
	Enabled                  bool    `toml:"enabled"`
	Backend                  string  `toml:"backend"` // "claude" | "vllm"
	APIKey                   string  `toml:"api_key"`
	BaseURL                  string  `toml:"base_url"`
	Model                    string  `toml:"model"`
	TriggerThreshold         int     `toml:"trigger_threshold"`
	SilenceTimeoutSec        float64 `toml:"silence_timeout_sec"`
	MaxTokens                int     `toml:"max_tokens"`
	RecentSegmentsForContext int     `toml:"recent_segments_for_context"`
	ShutdownTimeoutSec       float64 `toml:"shutdown_timeout_sec"`
}

// AppConfig covers persistence and UI-facing knobs not owned by any one
// component.
type AppConfig struct {
	SaveJSON               bool `toml:"save_json"`
	FastShutdownJoinSec    float64 `toml:"fast_shutdown_join_sec"`
	UITruncationChars      int     `toml:"ui_truncation_chars"`
}

// Config is the fully merged, validated configuration tree.
type Config struct {
	Core          CoreConfig          `toml:"core"`
	Audio         AudioConfig         `toml:"audio"`
	VAD           VADConfig           `toml:"vad"`
	Whisper       WhisperConfig       `toml:"whisper"`
	Hallucination HallucinationConfig `toml:"hallucination"`
	Summary       SummaryConfig       `toml:"summary"`
	App           AppConfig           `toml:"app"`
}

// Default returns the spec's canonical default configuration (§4.1, §4.3,
// §6), before any TOML file or environment variable is applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	filter := asr.DefaultFilterConfig()

	var params []WhisperParamConfig
	for _, p := range asr.DefaultParamTable() {
		params = append(params, WhisperParamConfig{
			Language:                p.Language,
			Temperature:             p.Temperature,
			ConditionOnPreviousText: p.ConditionOnPreviousText,
			InitialPrompt:           p.InitialPrompt,
			CompressionRatioThresh:  p.CompressionRatioThresh,
			LogprobThresh:           p.LogprobThresh,
			NoSpeechThresh:          p.NoSpeechThresh,
		})
	}

	return Config{
		Core: CoreConfig{SampleRate: 16000, ChunkMs: 32},
		Audio: AudioConfig{
			BlockSec:           0.1,
			QueueGetTimeoutSec: 0.5,
		},
		VAD: VADConfig{
			Model: VADModelConfig{
				URL:       "https://github.com/snakers4/silero-vad/raw/master/files/silero_vad.onnx",
				CachePath: filepath.Join(home, ".cache", "silero-vad", "silero_vad.onnx"),
			},
			Detection: VADDetectionConfig{
				StartThreshold:   0.5,
				EndThreshold:     0.3,
				MinSpeechChunks:  3,
				MaxSilenceChunks: 25,
				IdleResetChunks:  1000,
				PreRollSec:       3.0,
			},
		},
		Whisper: WhisperConfig{
			Model:              "ggml-large-v3.bin",
			ShutdownTimeoutSec: 10,
			Params:             params,
		},
		Hallucination: HallucinationConfig{
			BannedPhrases:               filter.BannedPhrases,
			GreetingPhrases:             filter.GreetingPhrases,
			MinCharRepetition:           filter.MinCharRepetition,
			ShortMaxPatternLen:          filter.ShortMaxPatternLen,
			PatternSearchStartPositions: filter.PatternSearchStartPositions,
			MinShortRepetition:          filter.MinShortRepetition,
			RepetitionRatioThreshold:    filter.RepetitionRatioThreshold,
			LongMinPatternLen:           filter.LongMinPatternLen,
			LongMaxPatternLen:           filter.LongMaxPatternLen,
			MinLongRepetition:           filter.MinLongRepetition,
			MinTokenRepetition:          filter.MinTokenRepetition,
			ShortTextThreshold:          filter.ShortTextThreshold,
			LowLogprobThreshold:         filter.LowLogprobThreshold,
			LongAudioThreshold:          filter.LongAudioThreshold,
			ExtremeLowLogprobThreshold:  filter.ExtremeLowLogprobThreshold,
		},
		Summary: SummaryConfig{
			Enabled:                  true,
			Backend:                  "claude",
			TriggerThreshold:         600,
			SilenceTimeoutSec:        60,
			MaxTokens:                4096,
			RecentSegmentsForContext: 5,
			ShutdownTimeoutSec:       2,
		},
		App: AppConfig{
			SaveJSON:            true,
			FastShutdownJoinSec: 1.0,
			UITruncationChars:   120,
		},
	}
}

// Load builds the effective configuration: defaults, then dir/config.toml
// if present, then dir/config.local.toml if present (later wins on
// overlapping scalar keys; BurntSushi/toml only touches keys actually
// present in a document, so fields absent from a layer keep whatever the
// previous layer set — defaults included).
func Load(dir string) (Config, error) {
	cfg := Default()

	for _, name := range []string{"config.toml", "config.local.toml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv fills in secrets the config file may have deliberately omitted.
// Per spec §6: ANTHROPIC_API_KEY may supply summary.api_key when the
// backend is "claude" and the config left it blank.
func applyEnv(cfg *Config) error {
	if cfg.Summary.Enabled && cfg.Summary.Backend == "claude" && cfg.Summary.APIKey == "" {
		cfg.Summary.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return nil
}

// Validate enforces the startup-fatal invariants named in spec §7 and §9's
// open questions: the chunk/sample-rate pair the VAD graph was trained on,
// and an LLM backend that can actually authenticate.
func Validate(cfg Config) error {
	if cfg.Core.SampleRate != 16000 {
		return fmt.Errorf("config: core.sample_rate must be 16000 (the Silero VAD graph and whisper.cpp are both hard-wired to it), got %d", cfg.Core.SampleRate)
	}
	if cfg.Core.ChunkSize() != 512 {
		return fmt.Errorf("config: core.sample_rate * core.chunk_ms / 1000 must equal 512 (the VAD model only accepts 512-sample windows), got %d", cfg.Core.ChunkSize())
	}
	if cfg.Summary.Enabled {
		switch cfg.Summary.Backend {
		case "claude":
			if cfg.Summary.APIKey == "" {
				return fmt.Errorf("config: summary.backend = claude requires summary.api_key or ANTHROPIC_API_KEY")
			}
		case "vllm":
			if cfg.Summary.BaseURL == "" {
				return fmt.Errorf("config: summary.backend = vllm requires summary.base_url")
			}
		default:
			return fmt.Errorf("config: unknown summary.backend %q (expected claude or vllm)", cfg.Summary.Backend)
		}
	}
	return nil
}
