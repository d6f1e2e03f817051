package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
)

func TestAppendOnlyCounts(t *testing.T) {
	s := New()
	lp := -0.4
	s.AppendSegment(bus.TranscriptionSegment{Text: "hello", AvgLogprob: &lp})
	s.AddError(Error{Timestamp: time.Now(), Message: "boom"})
	s.AddError(Error{Timestamp: time.Now(), Message: "boom2"})

	segs, errs := s.Counts()
	if segs != 1 || errs != 2 {
		t.Fatalf("expected 1 segment and 2 errors, got segs=%d errs=%d", segs, errs)
	}
}

func TestFinalSummaryReplacesNotAppends(t *testing.T) {
	s := New()
	now := time.Now()
	s.AddSummary("first", now, false)
	s.AddSummary("second", now, false)
	s.AddSummary("the final one", now, true)

	if len(s.summaries) != 2 {
		t.Fatalf("expected 2 incremental summaries, got %d", len(s.summaries))
	}
	if s.final == nil || s.final.Content != "the final one" {
		t.Fatalf("expected final summary to be set, got %+v", s.final)
	}
}

func TestWriteFileRoundsAndPreservesUnicode(t *testing.T) {
	s := New()
	lp := -0.123456
	s.AppendSegment(bus.TranscriptionSegment{
		Text:          "こんにちは",
		AudioDuration: 1.23456,
		AvgLogprob:    &lp,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := s.WriteFile(path, time.Now()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	segs := doc["segments"].([]interface{})
	seg := segs[0].(map[string]interface{})
	if seg["text"] != "こんにちは" {
		t.Fatalf("expected unicode text preserved, got %v", seg["text"])
	}
	if seg["audio_duration"].(float64) != 1.23 {
		t.Fatalf("expected audio_duration rounded to 2dp, got %v", seg["audio_duration"])
	}
	if seg["avg_logprob"].(float64) != -0.123 {
		t.Fatalf("expected avg_logprob rounded to 3dp, got %v", seg["avg_logprob"])
	}

	if string(raw[:1]) == "" {
		t.Fatalf("unexpected empty file")
	}
}

func TestRegisterHandlersRoutesSegmentToSessionAndSummarizer(t *testing.T) {
	s := New()
	b := bus.New()

	var sawSegment bool
	s.RegisterHandlers(b, func(seg bus.TranscriptionSegment) {
		sawSegment = true
	})

	b.PublishSegmentTranscribed(bus.SegmentTranscribedEvent{Segment: bus.TranscriptionSegment{Text: "hi"}})

	segs, _ := s.Counts()
	if segs != 1 {
		t.Fatalf("expected session to record 1 segment, got %d", segs)
	}
	if !sawSegment {
		t.Fatalf("expected summarizer callback to be invoked")
	}
}
