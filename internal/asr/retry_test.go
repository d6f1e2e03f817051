package asr

import (
	"strings"
	"testing"
)

func TestRetryLadderAdvancesThroughAllPhasesThenDiscards(t *testing.T) {
	table := DefaultParamTable()
	r := NewRetryStrategy(table)

	for i := 1; i < len(table); i++ {
		d := r.Evaluate("", "some reason")
		if d.Kind != DecisionRetry {
			t.Fatalf("attempt %d: expected RETRY, got %v", i, d.Kind)
		}
		if d.NextParams != table[i] {
			t.Fatalf("attempt %d: expected next params %+v, got %+v", i, table[i], d.NextParams)
		}
	}

	final := r.Evaluate("", "some reason")
	if final.Kind != DecisionDiscard {
		t.Fatalf("expected DISCARD after exhausting phase table, got %v", final.Kind)
	}
	if !strings.Contains(final.Reason, "Max retries reached") {
		t.Fatalf("expected discard reason to mention max retries, got %q", final.Reason)
	}
}

func TestRetryAcceptsNonEmptyTextWithNoFilterReason(t *testing.T) {
	r := NewRetryStrategy(DefaultParamTable())
	d := r.Evaluate("こんにちは、今日は天気がいいですね", "")
	if d.Kind != DecisionAccept {
		t.Fatalf("expected ACCEPT, got %v", d.Kind)
	}
}

func TestRetryDiscardsPlainSilenceImmediately(t *testing.T) {
	r := NewRetryStrategy(DefaultParamTable())
	d := r.Evaluate("", "")
	if d.Kind != DecisionDiscard {
		t.Fatalf("expected DISCARD for silence, got %v", d.Kind)
	}
	if d.Reason != "silence" {
		t.Fatalf("expected reason 'silence', got %q", d.Reason)
	}
}

func TestAttemptInfoReflectsProgress(t *testing.T) {
	r := NewRetryStrategy(DefaultParamTable())
	attempt, max := r.AttemptInfo()
	if attempt != 1 || max != 5 {
		t.Fatalf("expected (1, 5) initially, got (%d, %d)", attempt, max)
	}
	r.Evaluate("", "noisy")
	attempt, _ = r.AttemptInfo()
	if attempt != 2 {
		t.Fatalf("expected attempt 2 after one retry, got %d", attempt)
	}
}
