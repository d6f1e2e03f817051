// Package vad implements the hysteresis voice-activity state machine (C1)
// and the audio stream processor (C2) that drives it.
package vad

// Action is the decision returned by the state machine for one processed
// probability sample.
type Action int

const (
	ActionNone Action = iota
	ActionStartRecording
	ActionStopRecording
	ActionResetVADModel
)

func (a Action) String() string {
	switch a {
	case ActionStartRecording:
		return "START_RECORDING"
	case ActionStopRecording:
		return "STOP_RECORDING"
	case ActionResetVADModel:
		return "RESET_VAD_MODEL"
	default:
		return "NONE"
	}
}

// Thresholds configures the hysteresis and chunk-count constants of C1.
// Zero-value Thresholds has no sane defaults; use DefaultThresholds.
type Thresholds struct {
	StartThreshold   float64
	EndThreshold     float64
	MinSpeechChunks  int
	MaxSilenceChunks int
	IdleResetChunks  int
}

// DefaultThresholds returns the spec's canonical defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StartThreshold:   0.5,
		EndThreshold:     0.3,
		MinSpeechChunks:  3,
		MaxSilenceChunks: 25,
		IdleResetChunks:  1000,
	}
}

// State is the VAD state machine's mutable counters. The zero value is the
// correct initial state.
type State struct {
	IsRecording       bool
	SpeechChunks      int
	SilenceChunks     int
	IdleSilenceChunks int
}

// StateMachine is C1: a pure function over (State, probability) plumbed
// through a small stateful wrapper so callers don't have to thread State
// themselves. Process is deterministic and side-effect free beyond its own
// State, so it is safe to construct many instances for property testing.
type StateMachine struct {
	thresholds Thresholds
	state      State
}

// New constructs a StateMachine with the given thresholds and zeroed state.
func New(t Thresholds) *StateMachine {
	return &StateMachine{thresholds: t}
}

// State returns a copy of the current counters, for status reporting.
func (m *StateMachine) State() State {
	return m.state
}

// Process feeds one probability sample and returns the resulting action.
// It is the sole mutator of m's internal state.
func (m *StateMachine) Process(p float64) Action {
	var action Action
	m.state, action = Transition(m.state, p, m.thresholds)
	return action
}

// Reset returns the state machine to its zero state, e.g. after a fast
// shutdown or a test case boundary.
func (m *StateMachine) Reset() {
	m.state = State{}
}

// Transition is the pure C1 core: (State, probability, Thresholds) ->
// (State', Action). Kept side-effect free and exported so it can be
// property-tested directly, independent of the stateful StateMachine
// wrapper above.
func Transition(s State, p float64, t Thresholds) (State, Action) {
	threshold := t.StartThreshold
	if s.IsRecording {
		threshold = t.EndThreshold
	}

	if p >= threshold {
		return transitionSpeech(s, t)
	}
	return transitionSilence(s, t)
}

func transitionSpeech(s State, t Thresholds) (State, Action) {
	s.SilenceChunks = 0
	s.IdleSilenceChunks = 0
	s.SpeechChunks++

	if !s.IsRecording {
		if s.SpeechChunks >= t.MinSpeechChunks {
			s.IsRecording = true
			return s, ActionStartRecording
		}
		return s, ActionNone
	}

	return s, ActionNone
}

func transitionSilence(s State, t Thresholds) (State, Action) {
	s.SpeechChunks = 0

	if s.IsRecording {
		s.SilenceChunks++
		if s.SilenceChunks >= t.MaxSilenceChunks {
			s.IsRecording = false
			s.SilenceChunks = 0
			s.SpeechChunks = 0
			return s, ActionStopRecording
		}
		return s, ActionNone
	}

	s.IdleSilenceChunks++
	if s.IdleSilenceChunks >= t.IdleResetChunks {
		s.IdleSilenceChunks = 0
		return s, ActionResetVADModel
	}
	return s, ActionNone
}
