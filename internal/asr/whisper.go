package asr

import (
	"fmt"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Segment is one decoded whisper.cpp segment.
type Segment struct {
	Text    string
	StartMs int64
	EndMs   int64
}

// Result is the full output of one Transcribe call.
type Result struct {
	Text     string
	Segments []Segment
}

// Engine is the ASR-engine contract C5 drives through the C3/C4 loop.
type Engine interface {
	Transcribe(samples []float32, params Params) (Result, error)
}

// WhisperEngine adapts github.com/ggerganov/whisper.cpp/bindings/go to the
// Engine contract. A single model is loaded once and shared; each
// Transcribe call opens its own Context, since whisper.cpp contexts are not
// safe for concurrent use (mirrors the "each inference gets a fresh
// context, contexts share the model" pattern).
type WhisperEngine struct {
	model whisper.Model
	mu    sync.Mutex
}

// NewWhisperEngine loads the model file at modelPath. Callers must Close it
// when done.
func NewWhisperEngine(modelPath string) (*WhisperEngine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &WhisperEngine{model: model}, nil
}

// Warmup runs one throwaway inference over silence so the first real
// utterance doesn't pay model JIT/allocation cost. Failure is logged by the
// caller, never fatal.
func (e *WhisperEngine) Warmup(sampleRate int) error {
	silence := make([]float32, sampleRate)
	_, err := e.Transcribe(silence, Params{Language: "ja"})
	return err
}

// Transcribe runs one decode pass. The whisper.cpp Go binding pinned here
// does not expose per-call temperature/compression-ratio/logprob/no-speech
// thresholds on Context, so Params' Temperature and threshold fields are
// not passed into the engine, and neither the hallucination filter (C3) nor
// the retry ladder (C4) reads them; InitialPrompt and Language are the only
// fields used.
func (e *WhisperEngine) Transcribe(samples []float32, params Params) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, err := e.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("whisper: new context: %w", err)
	}

	lang := params.Language
	if lang == "" {
		lang = "ja"
	}
	if err := ctx.SetLanguage(lang); err != nil {
		return Result{}, fmt.Errorf("whisper: set language: %w", err)
	}
	ctx.SetTranslate(false)
	ctx.SetTokenTimestamps(true)
	ctx.SetMaxSegmentLength(0)
	if params.InitialPrompt != nil {
		ctx.SetInitialPrompt(*params.InitialPrompt)
	}

	var segments []Segment
	cb := func(s whisper.Segment) {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			return
		}
		segments = append(segments, Segment{
			Text:    text,
			StartMs: int64(s.Start.Milliseconds()),
			EndMs:   int64(s.End.Milliseconds()),
		})
	}

	if err := ctx.Process(samples, nil, cb, nil); err != nil {
		return Result{}, fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return Result{Text: strings.Join(parts, " "), Segments: segments}, nil
}

// Close releases the underlying model.
func (e *WhisperEngine) Close() error {
	return e.model.Close()
}
