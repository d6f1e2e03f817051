package summarizer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
	"github.com/yujixr/stream-scribe/internal/logging"
)

// Settings carries the tunables C6 needs from config.
type Settings struct {
	TriggerThreshold         int
	SilenceTimeoutSec        float64
	QueueGetTimeoutSec       float64
	RecentSegmentsForContext int
	MaxTokens                int
}

// Worker is C6: batches transcribed segments by char-count threshold or
// silence timeout, calls an LLM client to fold them into a rolling
// markdown summary, and produces a final whole-session summary on
// shutdown. Grounded on original_source's RealtimeSummarizer thread: a
// daemon goroutine woken by a one-shot trigger with a bounded wait,
// guarding pending/summarized segment lists behind one mutex.
type Worker struct {
	client   Client
	settings Settings
	bus      *bus.Bus
	logger   logging.Logger

	strategy RealtimePromptStrategy

	mu              sync.Mutex
	currentSummary  string
	summarizedSegs  []bus.TranscriptionSegment
	pendingSegs     []bus.TranscriptionSegment
	lastSegmentTime time.Time
	hasLastSegment  bool
	isSummarizing   bool

	trigger chan struct{}
	running atomic.Bool

	done chan struct{}
}

// NewWorker constructs a Worker. client may be nil only if the caller never
// calls Run (e.g. summarization disabled via --no-summary).
func NewWorker(client Client, settings Settings, b *bus.Bus, logger logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if settings.RecentSegmentsForContext <= 0 {
		settings.RecentSegmentsForContext = 5
	}
	w := &Worker{
		client:   client,
		settings: settings,
		bus:      b,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.running.Store(true)
	return w
}

// AddSegment records a newly transcribed segment and wakes the worker loop.
func (w *Worker) AddSegment(seg bus.TranscriptionSegment) {
	if !w.running.Load() {
		return
	}
	w.mu.Lock()
	w.pendingSegs = append(w.pendingSegs, seg)
	w.lastSegmentTime = time.Now()
	w.hasLastSegment = true
	w.mu.Unlock()

	w.wake()
}

func (w *Worker) wake() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// pendingCharCount returns the character count of text.not-yet-folded
// segments; also exposed for UI (buffer_char_count in the Python original).
func (w *Worker) pendingCharCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingCharCountLocked()
}

func (w *Worker) pendingCharCountLocked() int {
	n := 0
	for _, s := range w.pendingSegs {
		n += len([]rune(s.Text))
	}
	return n
}

// IsSummarizing reports whether an LLM call is in flight right now.
func (w *Worker) IsSummarizing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isSummarizing
}

func (w *Worker) shouldSummarize() bool {
	w.mu.Lock()
	charCount := w.pendingCharCountLocked()
	lastTime := w.lastSegmentTime
	hasLast := w.hasLastSegment
	w.mu.Unlock()

	if charCount == 0 {
		return false
	}
	if charCount >= w.settings.TriggerThreshold {
		return true
	}
	if hasLast {
		elapsed := time.Since(lastTime).Seconds()
		return elapsed >= w.settings.SilenceTimeoutSec
	}
	return false
}

// Run drives the trigger-wait loop until Shutdown is called. Meant to be
// launched in its own goroutine.
func (w *Worker) Run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.bus.Error(fmt.Sprintf("summarizer worker panicked: %v", r))
		}
	}()

	timeout := time.Duration(w.settings.QueueGetTimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = time.Second
	}

	for w.running.Load() {
		select {
		case <-w.trigger:
		case <-time.After(timeout):
		}

		if !w.running.Load() {
			return
		}
		if w.shouldSummarize() {
			w.processBuffer()
		}
	}
}

// processBuffer runs one realtime summarization round: move pending
// segments out under lock, build the prompt from the rolling summary plus
// a recent window of already-summarized segments, call the LLM, and fold
// the result back into the rolling state on success.
func (w *Worker) processBuffer() {
	w.mu.Lock()
	if len(w.pendingSegs) == 0 {
		w.mu.Unlock()
		return
	}
	newSegments := w.pendingSegs
	w.pendingSegs = nil
	previousSummary := w.currentSummary

	n := w.settings.RecentSegmentsForContext
	var recent []bus.TranscriptionSegment
	if len(w.summarizedSegs) > 0 {
		if len(w.summarizedSegs) > n {
			recent = w.summarizedSegs[len(w.summarizedSegs)-n:]
		} else {
			recent = w.summarizedSegs
		}
	}
	w.isSummarizing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.isSummarizing = false
		w.mu.Unlock()
	}()

	userPrompt := w.strategy.BuildUserPrompt(previousSummary, recent, newSegments)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := w.client.Generate(ctx, w.strategy.SystemPrompt(), userPrompt, GenerateParams{MaxTokens: w.settings.MaxTokens})
	if err != nil {
		w.logger.Warn("summary generation failed", "error", err)
		w.bus.Error(fmt.Sprintf("Summary generation failed: %v", err))
		// Keep the batch pending so the next trigger includes it again.
		w.mu.Lock()
		w.pendingSegs = append(newSegments, w.pendingSegs...)
		w.mu.Unlock()
		return
	}
	if result == "" {
		return
	}

	at := time.Now()
	w.mu.Lock()
	w.currentSummary = result
	w.summarizedSegs = append(w.summarizedSegs, newSegments...)
	n = w.settings.RecentSegmentsForContext
	if len(w.summarizedSegs) > n {
		w.summarizedSegs = w.summarizedSegs[len(w.summarizedSegs)-n:]
	}
	w.mu.Unlock()

	w.bus.PublishSummaryGenerated(bus.SummaryGeneratedEvent{Summary: result, IsFinal: false, At: at})
}

// Session is the narrow read-only view Shutdown needs to build a final
// summary, satisfied by *session.Session without importing that package
// here (avoids a summarizer<->session import cycle: session already
// depends on bus, and wires summarizer.AddSegment as a callback).
type Session interface {
	AllSegments() []bus.TranscriptionSegment
}

// Shutdown stops the worker loop and, if session is non-nil and has
// segments, synchronously runs one final whole-session summary before
// returning. Errors during the final summary are reported, never fatal.
func (w *Worker) Shutdown(ctx context.Context, session Session) {
	w.running.Store(false)
	w.mu.Lock()
	w.pendingSegs = nil
	w.mu.Unlock()
	w.wake()

	<-w.done

	if session == nil {
		return
	}
	segments := session.AllSegments()
	if len(segments) == 0 {
		return
	}

	final := FinalSummaryPromptStrategy{}
	userPrompt := final.BuildUserPrompt(segments)

	result, err := w.client.Generate(ctx, final.SystemPrompt(), userPrompt, GenerateParams{MaxTokens: w.settings.MaxTokens})
	if err != nil {
		w.bus.Error(fmt.Sprintf("Final summary generation failed: %v", err))
		return
	}
	if result == "" {
		return
	}
	w.bus.PublishSummaryGenerated(bus.SummaryGeneratedEvent{Summary: result, IsFinal: true, At: time.Now()})
}
