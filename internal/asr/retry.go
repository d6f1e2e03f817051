package asr

import "fmt"

// Params is one entry of the whisper parameter phase table (§6).
type Params struct {
	Language                string
	Temperature             float64
	ConditionOnPreviousText bool
	InitialPrompt           *string
	CompressionRatioThresh  float64
	LogprobThresh           float64
	NoSpeechThresh          float64
}

// DefaultParamTable returns the spec's canonical five-phase progression,
// all phases Japanese with condition_on_previous_text disabled.
func DefaultParamTable() []Params {
	prompt := "えーと、あのー、そうですね"
	return []Params{
		{Language: "ja", Temperature: 0.0, InitialPrompt: &prompt, CompressionRatioThresh: 2.4, LogprobThresh: -1.0, NoSpeechThresh: 0.6},
		{Language: "ja", Temperature: 0.0, InitialPrompt: &prompt, CompressionRatioThresh: 2.0, LogprobThresh: -1.0, NoSpeechThresh: 0.6},
		{Language: "ja", Temperature: 0.0, InitialPrompt: nil, CompressionRatioThresh: 2.2, LogprobThresh: -1.0, NoSpeechThresh: 0.6},
		{Language: "ja", Temperature: 0.0, InitialPrompt: nil, CompressionRatioThresh: 1.8, LogprobThresh: -0.6, NoSpeechThresh: 0.5},
		{Language: "ja", Temperature: 0.0, InitialPrompt: nil, CompressionRatioThresh: 1.4, LogprobThresh: -0.4, NoSpeechThresh: 0.4},
	}
}

// MaxAttempts is C4's phase-table length bound.
const MaxAttempts = 5

// Decision is the closed sum type C4.Evaluate returns.
type Decision struct {
	Kind       DecisionKind
	NextParams Params
	Reason     string
}

type DecisionKind int

const (
	DecisionAccept DecisionKind = iota
	DecisionRetry
	DecisionDiscard
)

// RetryStrategy is C4: a per-utterance, single-use sequencer over the
// parameter phase table.
type RetryStrategy struct {
	params  []Params
	attempt int
}

// NewRetryStrategy constructs a fresh strategy at attempt 0. Instances are
// per-utterance and discarded afterward.
func NewRetryStrategy(params []Params) *RetryStrategy {
	return &RetryStrategy{params: params}
}

// CurrentParams returns the parameter record at the current attempt index.
func (r *RetryStrategy) CurrentParams() Params {
	return r.params[r.attempt]
}

// AttemptInfo returns (1-based attempt number, max attempts).
func (r *RetryStrategy) AttemptInfo() (attempt, max int) {
	return r.attempt + 1, len(r.params)
}

// Evaluate decides ACCEPT, RETRY or DISCARD given the normalized text and
// an optional hallucination-filter rejection reason ("" means accepted by
// the filter).
func (r *RetryStrategy) Evaluate(text string, filterReason string) Decision {
	if text != "" && filterReason == "" {
		return Decision{Kind: DecisionAccept}
	}
	if text == "" && filterReason == "" {
		return Decision{Kind: DecisionDiscard, Reason: "silence"}
	}
	if r.attempt < len(r.params)-1 {
		r.attempt++
		return Decision{Kind: DecisionRetry, NextParams: r.CurrentParams(), Reason: filterReason}
	}
	return Decision{Kind: DecisionDiscard, Reason: fmt.Sprintf("Max retries reached. Last: %s", filterReason)}
}
