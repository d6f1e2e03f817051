package vad

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
	"github.com/yujixr/stream-scribe/internal/logging"
)

// Source is the audio source contract (§6): a sequence of fixed-size PCM
// chunks, live (infinite, device-paced) or file-backed (finite, optionally
// sleep-paced to simulate real time).
type Source interface {
	IsRealtime() bool
	Start() error
	Stop() error
	// Stream returns a channel of chunks; it is closed on EOF (file
	// sources) or when Stop is called.
	Stream() <-chan []float32
}

// Status is a snapshot for the UI thread.
type Status struct {
	Probability  float64
	IsRecording  bool
	ElapsedSec   float64
	SpeechChunks int
}

// Stream is C2: owns the audio source, the pre-roll ring, and the
// in-progress recording buffer, drives the VAD model and C1, and emits
// AudioRecordedEvents onto the bus. All buffers are owned exclusively by
// the goroutine running Start's loop; there is no external access, per the
// spec's shared-resource policy.
type Stream struct {
	source Source
	model  Model
	sm     *StateMachine
	bus    *bus.Bus
	logger logging.Logger

	minSpeechChunks int
	preRoll         *PreRollBuffer

	recording    [][]float32
	recordStart  time.Time

	started atomic.Bool
	paused  atomic.Bool
	mu      sync.Mutex // guards status fields only

	probability  float64
	isRecording  bool
	startedAt    time.Time
	speechChunks int

	done chan struct{}
}

// NewStream constructs a Stream. preRollCapacityChunks is the pre-roll
// ring's chunk capacity (see CapacityForPreRoll).
func NewStream(source Source, model Model, thresholds Thresholds, preRollCapacityChunks int, b *bus.Bus, logger logging.Logger) *Stream {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Stream{
		source:          source,
		model:           model,
		sm:              New(thresholds),
		bus:             b,
		logger:          logger,
		minSpeechChunks: thresholds.MinSpeechChunks,
		preRoll:         NewPreRollBuffer(preRollCapacityChunks),
		done:            make(chan struct{}),
	}
}

// Start begins consuming audio and producing events. Idempotent: calling
// Start twice on an already-started Stream is a no-op.
func (s *Stream) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.source.Start(); err != nil {
		s.started.Store(false)
		return err
	}
	s.startedAt = time.Now()
	go s.run()
	return nil
}

// Pause halts event production without tearing down resources; chunks
// continue to be read from the source but are discarded, so the pre-roll,
// VAD decisions and recording buffering stop advancing (a paused-then-resumed
// stream behaves as a no-op for fully silent input, the observational
// equivalence the spec requires).
func (s *Stream) Pause() { s.paused.Store(true) }

// Resume restarts event production after Pause.
func (s *Stream) Resume() { s.paused.Store(false) }

// Stop terminates cleanly: it stops the source, and once the source's
// channel is closed and drained, an in-progress utterance is finalized (a
// synthesized STOP) before Stop returns.
func (s *Stream) Stop() error {
	err := s.source.Stop()
	<-s.done
	return err
}

// Done returns a channel closed once the run loop has exited, either
// because Stop was called or (for finite sources) the stream reached EOF.
// The caller selects on it to distinguish "input exhausted" from a signal.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Status returns a point-in-time snapshot for the UI thread.
func (s *Stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Probability:  s.probability,
		IsRecording:  s.isRecording,
		ElapsedSec:   time.Since(s.startedAt).Seconds(),
		SpeechChunks: s.speechChunks,
	}
}

func (s *Stream) run() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.bus.Error("audio stream panicked; shutting down")
		}
	}()

	ch := s.source.Stream()
	for chunk := range ch {
		if s.paused.Load() {
			continue
		}
		s.processChunk(chunk)
	}

	// EOF (file source exhausted) or Stop(): finalize any in-progress
	// utterance as a synthesized STOP.
	if s.recording != nil {
		s.emitRecording(time.Now())
	}
}

// processChunk is the deterministic, non-suspending per-chunk procedure
// from spec §4.2.
func (s *Stream) processChunk(chunk []float32) {
	p, err := s.model.Probability(chunk)
	if err != nil {
		s.logger.Warn("vad model inference failed", "error", err)
		return
	}

	s.preRoll.Append(chunk)

	action := s.sm.Process(p)

	s.mu.Lock()
	s.probability = p
	st := s.sm.State()
	s.isRecording = st.IsRecording
	s.speechChunks = st.SpeechChunks
	s.mu.Unlock()

	switch action {
	case ActionStartRecording:
		s.recordStart = time.Now()
		s.recording = append(s.preRoll.Snapshot(), chunk)
	case ActionStopRecording:
		now := time.Now()
		s.emitRecording(now)
		s.model.Reset()
	case ActionResetVADModel:
		s.model.Reset()
	case ActionNone:
		if st.IsRecording && s.recording != nil {
			s.recording = append(s.recording, chunk)
		}
	}
}

func (s *Stream) emitRecording(end time.Time) {
	rec := s.recording
	s.recording = nil
	if rec == nil {
		return
	}

	total := 0
	for _, c := range rec {
		total += len(c)
	}
	if total <= s.minSpeechChunks*ChunkSamples {
		return
	}

	samples := make([]float32, 0, total)
	for _, c := range rec {
		samples = append(samples, c...)
	}

	s.bus.PublishAudioRecorded(bus.AudioRecordedEvent{
		Samples:   samples,
		StartTime: s.recordStart,
		EndTime:   end,
	})
}
