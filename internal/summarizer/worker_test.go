package summarizer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
)

type recordingClient struct {
	mu       sync.Mutex
	calls    int
	lastUser string
	response string
}

func (c *recordingClient) Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastUser = userPrompt
	return c.response, nil
}

func (c *recordingClient) BackendInfo() string { return "test" }

func (c *recordingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestTriggerByCharThreshold(t *testing.T) {
	client := &recordingClient{response: "## updated summary"}
	b := bus.New()
	w := NewWorker(client, Settings{
		TriggerThreshold:   50,
		SilenceTimeoutSec:  60,
		QueueGetTimeoutSec: 0.05,
	}, b, nil)

	var summaries []bus.SummaryGeneratedEvent
	var mu sync.Mutex
	b.OnSummaryGenerated(func(e bus.SummaryGeneratedEvent) {
		mu.Lock()
		summaries = append(summaries, e)
		mu.Unlock()
	})

	go w.Run()
	defer func() { w.running.Store(false) }()

	w.AddSegment(bus.TranscriptionSegment{Text: strings.Repeat("a", 20)})
	w.AddSegment(bus.TranscriptionSegment{Text: strings.Repeat("b", 40)})

	waitFor(t, time.Second, func() bool { return client.callCount() == 1 })

	mu.Lock()
	n := len(summaries)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly 1 summary call, got %d", n)
	}
	if !strings.Contains(client.lastUser, strings.Repeat("a", 20)) || !strings.Contains(client.lastUser, strings.Repeat("b", 40)) {
		t.Fatalf("expected both segments' text in the user prompt, got %q", client.lastUser)
	}
	if w.pendingCharCount() != 0 {
		t.Fatalf("expected pending segments cleared after summarization, got char count %d", w.pendingCharCount())
	}
}

func TestTriggerBySilenceTimeout(t *testing.T) {
	client := &recordingClient{response: "## updated summary"}
	b := bus.New()
	w := NewWorker(client, Settings{
		TriggerThreshold:   10000,
		SilenceTimeoutSec:  0.1,
		QueueGetTimeoutSec: 0.05,
	}, b, nil)

	go w.Run()
	defer func() { w.running.Store(false) }()

	w.AddSegment(bus.TranscriptionSegment{Text: strings.Repeat("x", 20)})

	waitFor(t, time.Second, func() bool { return client.callCount() == 1 })
}

func TestShutdownRunsFinalSummaryOverWholeSession(t *testing.T) {
	client := &recordingClient{response: "final"}
	b := bus.New()
	w := NewWorker(client, Settings{
		TriggerThreshold:   10000,
		SilenceTimeoutSec:  60,
		QueueGetTimeoutSec: 0.05,
	}, b, nil)

	go w.Run()

	var final *bus.SummaryGeneratedEvent
	b.OnSummaryGenerated(func(e bus.SummaryGeneratedEvent) {
		if e.IsFinal {
			final = &e
		}
	})

	sess := fakeSession{segments: []bus.TranscriptionSegment{{Text: "hello"}, {Text: "world"}}}
	w.Shutdown(context.Background(), sess)

	if final == nil {
		t.Fatalf("expected a final SummaryGeneratedEvent")
	}
	if final.Summary != "final" {
		t.Fatalf("unexpected final summary content %q", final.Summary)
	}
}

func TestShutdownSkipsFinalSummaryWhenSessionEmpty(t *testing.T) {
	client := &recordingClient{response: "final"}
	b := bus.New()
	w := NewWorker(client, Settings{
		TriggerThreshold:   10000,
		SilenceTimeoutSec:  60,
		QueueGetTimeoutSec: 0.05,
	}, b, nil)

	go w.Run()

	w.Shutdown(context.Background(), fakeSession{})

	if client.callCount() != 0 {
		t.Fatalf("expected no LLM call for an empty session, got %d calls", client.callCount())
	}
}

type fakeSession struct {
	segments []bus.TranscriptionSegment
}

func (f fakeSession) AllSegments() []bus.TranscriptionSegment { return f.segments }
