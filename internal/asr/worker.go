package asr

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
	"github.com/yujixr/stream-scribe/internal/logging"
)

// Worker is C5: a long-running goroutine that drains AudioRecordedEvents
// from a bounded channel and runs the ASR-engine + hallucination-filter +
// retry-ladder loop over each one, emitting at most one terminal outcome
// per utterance: a SegmentTranscribedEvent, an error MessagePosted (engine
// failure or quality discard), or nothing for plain silence.
type Worker struct {
	engine Engine
	filter *Filter
	params []Params
	bus    *bus.Bus
	logger logging.Logger

	queue        chan bus.AudioRecordedEvent
	done         chan struct{}
	stopOnce     sync.Once
	shutdownWait time.Duration

	transcribing atomic.Bool
	mu           sync.Mutex
}

// NewWorker constructs a Worker. queueSize bounds the backlog of pending
// utterances; when the queue is full, Enqueue drops the newly arriving
// utterance and keeps the queued ones. shutdownWait bounds how long
// Stop waits for an in-flight utterance to finish draining
// (whisper.shutdown_timeout_sec, default 10s); zero or negative falls back
// to that default.
func NewWorker(engine Engine, filter *Filter, params []Params, b *bus.Bus, logger logging.Logger, queueSize int, shutdownWait time.Duration) *Worker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if queueSize <= 0 {
		queueSize = 8
	}
	if shutdownWait <= 0 {
		shutdownWait = 10 * time.Second
	}
	return &Worker{
		engine:       engine,
		filter:       filter,
		params:       params,
		bus:          b,
		logger:       logger,
		queue:        make(chan bus.AudioRecordedEvent, queueSize),
		done:         make(chan struct{}),
		shutdownWait: shutdownWait,
	}
}

// Enqueue submits a finalized utterance. Non-blocking: if the queue is
// full, the new event is dropped and logged rather than stalling C2's
// capture goroutine.
func (w *Worker) Enqueue(e bus.AudioRecordedEvent) {
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("asr worker queue full; dropping utterance")
		w.bus.Warn("Transcription queue full; an utterance was dropped")
	}
}

// IsTranscribing reports whether the worker is mid-decode right now or has
// utterances waiting in its queue.
func (w *Worker) IsTranscribing() bool { return w.transcribing.Load() || len(w.queue) > 0 }

// Run drains the queue until Stop is called. It is meant to be launched in
// its own goroutine.
func (w *Worker) Run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.bus.Error(fmt.Sprintf("asr worker panicked: %v", r))
		}
	}()

	for e := range w.queue {
		w.process(e)
	}
}

// Stop closes the intake side and waits up to shutdownWait
// (whisper.shutdown_timeout_sec) for the in-flight utterance and any queued
// backlog to drain before returning. Safe to call more than once (e.g. the
// graceful path racing a forced fast-shutdown) — only the first call closes
// the queue.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.queue)
	})
	select {
	case <-w.done:
	case <-time.After(w.shutdownWait):
		w.logger.Warn("asr worker did not drain within shutdown timeout")
	}
}

func (w *Worker) process(e bus.AudioRecordedEvent) {
	w.transcribing.Store(true)
	defer w.transcribing.Store(false)

	start := time.Now()
	// Samples are 16 kHz mono (config.Validate rejects any other rate).
	audioDuration := float64(len(e.Samples)) / 16000

	strategy := NewRetryStrategy(w.params)

	for {
		attempt, max := strategy.AttemptInfo()
		result, err := w.engine.Transcribe(e.Samples, strategy.CurrentParams())
		if err != nil {
			// Structural ASR failure: never retried, mirrors the Python
			// original's transcriber.py, which treats an engine exception as
			// terminal for the utterance rather than feeding it to the retry
			// ladder.
			w.logger.Warn("whisper transcription failed", "attempt", attempt, "error", err)
			w.bus.Error(fmt.Sprintf("Transcription failed: %v", err))
			return
		}

		// The pinned whisper.cpp binding does not surface per-segment
		// avg_logprob/compression_ratio/no_speech_prob (see whisper.go), so
		// these stay nil; the filter and session schema both treat them as
		// optional. Detector 7's low-confidence arm, detector 8, and the
		// phase table's CompressionRatioThresh/LogprobThresh/NoSpeechThresh
		// fields are consequently inert in this port — see DESIGN.md.
		var avgLogprob, maxCompression, maxNoSpeech *float64

		filterReason, accepted := w.filter.Evaluate(result.Text, avgLogprob, audioDuration)
		if !accepted {
			w.logger.Info("hallucination filter rejected segment", "attempt", attempt, "reason", filterReason)
		}

		decisionInput := ""
		if accepted {
			decisionInput = result.Text
		}
		d := strategy.Evaluate(decisionInput, boolToReason(accepted, filterReason))

		switch d.Kind {
		case DecisionAccept:
			processingTime := time.Since(start).Seconds()
			w.bus.PublishSegmentTranscribed(bus.SegmentTranscribedEvent{Segment: bus.TranscriptionSegment{
				Text:             result.Text,
				StartTime:        e.StartTime,
				EndTime:          e.EndTime,
				AudioDuration:    audioDuration,
				ProcessingTime:   processingTime,
				AvgLogprob:       avgLogprob,
				CompressionRatio: maxCompression,
				NoSpeechProb:     maxNoSpeech,
			}})
			return
		case DecisionRetry:
			w.bus.Info(fmt.Sprintf("Quality issue detected (attempt %d/%d): %s | Retrying with stricter parameters...", attempt, max, d.Reason))
			continue
		case DecisionDiscard:
			// Plain silence is the common case and not an error; only a
			// real quality/filter rejection gets reported.
			if d.Reason != "silence" {
				w.bus.Error(fmt.Sprintf("Quality issue filtered (attempt %d/%d): %s | Text: '%s...'", attempt, max, d.Reason, truncateRunes(result.Text, 50)))
			}
			return
		}
	}
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// boolToReason normalizes the hallucination filter's result into the
// filterReason argument RetryStrategy.Evaluate expects ("" means accepted).
func boolToReason(accepted bool, reason string) string {
	if accepted {
		return ""
	}
	return reason
}
