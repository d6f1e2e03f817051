package summarizer

import "context"

// GenerateParams carries the optional decode knobs the summarizer varies
// between realtime and final-summary calls. A nil pointer means "don't
// send this field" so the backend's own default applies — Anthropic
// rejects requests that set both Temperature and TopP together, so
// callers are expected to populate at most one.
type GenerateParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// Client is the LLM backend contract: one blocking text-generation call.
// Both concrete backends talk raw HTTP/JSON; no SDK wrapper is used, which
// keeps dependency surface small and the request shape fully visible.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error)
	BackendInfo() string
}
