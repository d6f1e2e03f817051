package asr

import (
	"errors"
	"testing"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
)

type scriptedEngine struct {
	calls   int
	outputs []Result
	err     error
}

func (e *scriptedEngine) Transcribe(samples []float32, params Params) (Result, error) {
	defer func() { e.calls++ }()
	if e.err != nil && e.calls == 0 {
		return Result{}, e.err
	}
	if e.calls >= len(e.outputs) {
		return e.outputs[len(e.outputs)-1], nil
	}
	return e.outputs[e.calls], nil
}

func newTestWorker(engine Engine) (*Worker, *bus.Bus) {
	b := bus.New()
	f := NewFilter(DefaultFilterConfig())
	w := NewWorker(engine, f, DefaultParamTable(), b, nil, 4, time.Second)
	return w, b
}

func TestWorkerAcceptsCleanTranscriptOnFirstAttempt(t *testing.T) {
	engine := &scriptedEngine{outputs: []Result{{Text: "今日は会議がありました"}}}
	w, b := newTestWorker(engine)

	var got *bus.SegmentTranscribedEvent
	b.OnSegmentTranscribed(func(e bus.SegmentTranscribedEvent) { got = &e })

	go w.Run()
	w.Enqueue(bus.AudioRecordedEvent{
		Samples:   make([]float32, 16000),
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Second),
	})
	w.Stop()

	if got == nil {
		t.Fatalf("expected a SegmentTranscribedEvent")
	}
	if got.Segment.Text != "今日は会議がありました" {
		t.Fatalf("unexpected text %q", got.Segment.Text)
	}
	if engine.calls != 1 {
		t.Fatalf("expected exactly 1 engine call, got %d", engine.calls)
	}
}

func TestWorkerRetriesPastBannedPhraseThenAccepts(t *testing.T) {
	engine := &scriptedEngine{outputs: []Result{
		{Text: "ご視聴ありがとうございました"},
		{Text: "ご視聴ありがとうございました"},
		{Text: "本日の議事録はこちらです"},
	}}
	w, b := newTestWorker(engine)

	var got *bus.SegmentTranscribedEvent
	b.OnSegmentTranscribed(func(e bus.SegmentTranscribedEvent) { got = &e })

	go w.Run()
	w.Enqueue(bus.AudioRecordedEvent{
		Samples:   make([]float32, 16000),
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Second),
	})
	w.Stop()

	if got == nil {
		t.Fatalf("expected eventual acceptance after retries")
	}
	if engine.calls != 3 {
		t.Fatalf("expected 3 engine calls, got %d", engine.calls)
	}
}

func TestWorkerDiscardsAfterExhaustingRetryLadder(t *testing.T) {
	repeated := Result{Text: "ご視聴ありがとうございました"}
	engine := &scriptedEngine{outputs: []Result{repeated, repeated, repeated, repeated, repeated}}
	w, b := newTestWorker(engine)

	var accepted bool
	var discardMsg string
	b.OnSegmentTranscribed(func(e bus.SegmentTranscribedEvent) { accepted = true })
	b.OnMessagePosted(func(e bus.MessagePostedEvent) {
		if e.Level == bus.LevelError {
			discardMsg = e.Message
		}
	})

	go w.Run()
	w.Enqueue(bus.AudioRecordedEvent{
		Samples:   make([]float32, 16000),
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Second),
	})
	w.Stop()

	if accepted {
		t.Fatalf("expected discard, not acceptance")
	}
	if discardMsg == "" {
		t.Fatalf("expected a discard message to be posted")
	}
	if engine.calls != len(DefaultParamTable()) {
		t.Fatalf("expected engine called once per phase (%d), got %d", len(DefaultParamTable()), engine.calls)
	}
}

func TestWorkerReturnsImmediatelyOnEngineErrorWithoutRetry(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("model busy"), outputs: []Result{{Text: "テストです、正常なテキストです"}}}
	w, b := newTestWorker(engine)

	var got *bus.SegmentTranscribedEvent
	var errMsg string
	b.OnSegmentTranscribed(func(e bus.SegmentTranscribedEvent) { got = &e })
	b.OnMessagePosted(func(e bus.MessagePostedEvent) {
		if e.Level == bus.LevelError {
			errMsg = e.Message
		}
	})

	go w.Run()
	w.Enqueue(bus.AudioRecordedEvent{
		Samples:   make([]float32, 16000),
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Second),
	})
	w.Stop()

	if got != nil {
		t.Fatalf("expected no SegmentTranscribedEvent: an engine exception is a structural failure, never retried")
	}
	if errMsg == "" {
		t.Fatalf("expected a MessagePosted(ERROR) for the engine failure")
	}
	if engine.calls != 1 {
		t.Fatalf("expected exactly 1 engine call (no retry on exception), got %d", engine.calls)
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	engine := &scriptedEngine{outputs: []Result{{Text: "ゆっくり話しています"}}}
	b := bus.New()
	f := NewFilter(DefaultFilterConfig())
	w := NewWorker(engine, f, DefaultParamTable(), b, nil, 1, time.Second)

	e := bus.AudioRecordedEvent{Samples: make([]float32, 16000), StartTime: time.Now(), EndTime: time.Now()}
	w.Enqueue(e)
	w.Enqueue(e)
	w.Enqueue(e)

	var dropped bool
	b.OnMessagePosted(func(ev bus.MessagePostedEvent) {
		if ev.Level == bus.LevelWarning {
			dropped = true
		}
	})
	w.Enqueue(e)
	if !dropped {
		t.Fatalf("expected a drop warning once the queue is saturated")
	}
}
