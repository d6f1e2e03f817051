// Package session holds the append-only session aggregate (part of C7) and
// its JSON persistence.
package session

import (
	"sync"
	"time"

	"github.com/yujixr/stream-scribe/internal/bus"
)

// Error is a recoverable-but-reported condition recorded into the session.
type Error struct {
	Timestamp time.Time
	Message   string
}

// Summary is either one entry in the incremental-summary list, or (when
// added with isFinal set) the session's single final summary.
type Summary struct {
	Timestamp time.Time
	Content   string
}

// Session is mutated only by the event-bus dispatch goroutine(s); because
// dispatch is synchronous on the publisher's own goroutine, more than one
// publisher (audio thread emitting errors, ASR thread emitting segments,
// summarizer thread emitting summaries) may call in concurrently, so all
// mutation is serialized behind one mutex — mirroring the teacher's
// ConversationSession RWMutex discipline.
type Session struct {
	mu sync.RWMutex

	start    time.Time
	segments []bus.TranscriptionSegment
	errors   []Error
	summaries []Summary
	final    *Summary
}

// New starts a session with start recorded as now.
func New() *Session {
	return &Session{start: time.Now()}
}

// AppendSegment records one accepted transcription segment.
func (s *Session) AppendSegment(seg bus.TranscriptionSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

// AddError records one error-level message.
func (s *Session) AddError(e Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
}

// AddSummary appends a non-final summary, or replaces the final summary.
func (s *Session) AddSummary(content string, at time.Time, isFinal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isFinal {
		s.final = &Summary{Timestamp: at, Content: content}
		return
	}
	s.summaries = append(s.summaries, Summary{Timestamp: at, Content: content})
}

// AllSegments returns a copy of every segment accepted so far, in arrival
// order. Used by the summarizer's final-summary shutdown path, which needs
// the whole transcript rather than just the unsummarized tail.
func (s *Session) AllSegments() []bus.TranscriptionSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bus.TranscriptionSegment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Counts returns (total segments, total errors), used by the invariant
// "total_segments + total_errors equals consumed SegmentTranscribed +
// MessagePosted(ERROR) event counts".
func (s *Session) Counts() (segments, errors int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments), len(s.errors)
}

// RegisterHandlers wires the session's three handlers (segment_transcribed,
// summary_generated, message_posted) onto b; the audio_recorded handler that
// feeds the ASR worker is registered by the caller.
// summarizerAddSegment may be nil if summarization is disabled
// (--no-summary).
func (s *Session) RegisterHandlers(b *bus.Bus, summarizerAddSegment func(bus.TranscriptionSegment)) {
	b.OnSegmentTranscribed(func(e bus.SegmentTranscribedEvent) {
		s.AppendSegment(e.Segment)
		if summarizerAddSegment != nil {
			summarizerAddSegment(e.Segment)
		}
	})
	b.OnSummaryGenerated(func(e bus.SummaryGeneratedEvent) {
		s.AddSummary(e.Summary, e.At, e.IsFinal)
	})
	b.OnMessagePosted(func(e bus.MessagePostedEvent) {
		if e.Level == bus.LevelError {
			s.AddError(Error{Timestamp: e.Timestamp, Message: e.Message})
		}
	})
}
