package asr

import (
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestBannedPhrase(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	reason, accepted := f.Evaluate("ご視聴ありがとうございました", ptr(-0.5), 1.0)
	if accepted {
		t.Fatalf("expected rejection")
	}
	if want := "Banned phrase"; !strings.Contains(reason, want) {
		t.Fatalf("expected reason to contain %q, got %q", want, reason)
	}
}

func TestCharacterRepetition(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())

	ten := strings.Repeat("あ", 10)
	reason, accepted := f.Evaluate(ten, nil, 1.0)
	if accepted {
		t.Fatalf("expected rejection for 10 repeated chars")
	}
	if !strings.Contains(reason, "Character repetition") {
		t.Fatalf("expected reason to contain 'Character repetition', got %q", reason)
	}

	nine := strings.Repeat("あ", 9)
	_, accepted = f.Evaluate(nine, nil, 1.0)
	if !accepted {
		t.Fatalf("expected acceptance for 9 repeated chars")
	}
}

func TestContextlessGreeting(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())

	reason, accepted := f.Evaluate("おやすみなさい", ptr(-0.9), 2.0)
	if accepted {
		t.Fatalf("expected rejection for low-confidence greeting")
	}
	if !strings.Contains(reason, "Contextless greeting with low confidence") {
		t.Fatalf("expected specific reason, got %q", reason)
	}

	_, accepted = f.Evaluate("おやすみなさい", ptr(-0.3), 2.0)
	if !accepted {
		t.Fatalf("expected acceptance for higher-confidence greeting")
	}
}

func TestContextlessGreetingMatchesAcrossPunctuation(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())

	// The phrase only appears contiguous once punctuation/whitespace is
	// stripped; the detector must match against the normalized text, not
	// the raw one.
	reason, accepted := f.Evaluate("おやすみ、なさい。", ptr(-0.9), 2.0)
	if accepted {
		t.Fatalf("expected rejection for a punctuation-split greeting, got reason %q", reason)
	}
	if !strings.Contains(reason, "Contextless greeting with low confidence") {
		t.Fatalf("expected specific reason, got %q", reason)
	}
}

func TestExtremeLowConfidence(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	_, accepted := f.Evaluate("普通のテキストです", ptr(-1.8), 1.0)
	if accepted {
		t.Fatalf("expected rejection for extreme low confidence")
	}
}

func TestExtractMetrics(t *testing.T) {
	segs := []SegmentMetrics{
		{AvgLogprob: ptr(-0.5), CompressionRatio: ptr(1.5), NoSpeechProb: ptr(0.1)},
		{AvgLogprob: ptr(-0.3), CompressionRatio: ptr(2.5)},
		{},
	}
	avg, maxComp, maxNS := ExtractMetrics(segs)
	if avg == nil || *avg != -0.4 {
		t.Fatalf("expected mean logprob -0.4, got %v", avg)
	}
	if maxComp == nil || *maxComp != 2.5 {
		t.Fatalf("expected max compression 2.5, got %v", maxComp)
	}
	if maxNS == nil || *maxNS != 0.1 {
		t.Fatalf("expected max no_speech 0.1, got %v", maxNS)
	}
}
