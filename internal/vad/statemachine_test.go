package vad

import "testing"

func TestStartStopTrigger(t *testing.T) {
	m := New(DefaultThresholds())

	var last Action
	for i := 0; i < 3; i++ {
		last = m.Process(0.6)
	}
	if last != ActionStartRecording {
		t.Fatalf("expected START_RECORDING at chunk 3, got %v", last)
	}

	for i := 0; i < 25; i++ {
		last = m.Process(0.1)
	}
	if last != ActionStopRecording {
		t.Fatalf("expected STOP_RECORDING at chunk 25 of silence, got %v", last)
	}
}

func TestStartNotYetTriggeredAtTwoChunks(t *testing.T) {
	m := New(DefaultThresholds())
	if a := m.Process(0.6); a != ActionNone {
		t.Fatalf("chunk 1: expected NONE, got %v", a)
	}
	if a := m.Process(0.6); a != ActionNone {
		t.Fatalf("chunk 2: expected NONE, got %v", a)
	}
}

func TestIdleReset(t *testing.T) {
	m := New(DefaultThresholds())
	var last Action
	for i := 0; i < 1000; i++ {
		last = m.Process(0.1)
		if last == ActionStartRecording {
			t.Fatalf("unexpected START_RECORDING at chunk %d during idle silence", i+1)
		}
	}
	if last != ActionResetVADModel {
		t.Fatalf("expected RESET_VAD_MODEL at chunk 1000, got %v", last)
	}
}

func TestBoundaryThresholds(t *testing.T) {
	t.Run("start threshold exactly at boundary counts as speech when idle", func(t *testing.T) {
		th := DefaultThresholds()
		s := State{}
		s, a := Transition(s, th.StartThreshold, th)
		if a != ActionNone || s.SpeechChunks != 1 {
			t.Fatalf("expected speech_chunks=1 with NONE action, got speech_chunks=%d action=%v", s.SpeechChunks, a)
		}
	})

	t.Run("end threshold exactly at boundary counts as speech when recording", func(t *testing.T) {
		th := DefaultThresholds()
		s := State{IsRecording: true}
		s, a := Transition(s, th.EndThreshold, th)
		if a != ActionNone || s.SilenceChunks != 0 {
			t.Fatalf("expected silence_chunks reset to 0 (treated as speech), got silence_chunks=%d action=%v", s.SilenceChunks, a)
		}
	})
}

func TestStopStartOrdering(t *testing.T) {
	// Every START must be followed by exactly one STOP before another START.
	m := New(DefaultThresholds())
	starts, stops := 0, 0
	recording := false

	feed := func(p float64, n int) {
		for i := 0; i < n; i++ {
			switch m.Process(p) {
			case ActionStartRecording:
				if recording {
					t.Fatalf("START_RECORDING while already recording")
				}
				recording = true
				starts++
			case ActionStopRecording:
				if !recording {
					t.Fatalf("STOP_RECORDING while not recording")
				}
				recording = false
				stops++
			}
		}
	}

	feed(0.6, 3)
	feed(0.1, 25)
	feed(0.6, 3)
	feed(0.1, 25)

	if starts != 2 || stops != 2 {
		t.Fatalf("expected 2 starts and 2 stops, got starts=%d stops=%d", starts, stops)
	}
}

func TestStartFiresAtExactlyMinSpeechChunks(t *testing.T) {
	// Exercises the data-model invariant that an emission whose length equals
	// MIN_SPEECH_CHUNKS*512 exactly must be dropped by C2, not this state
	// machine; here we only confirm C1 itself still fires START at exactly
	// MinSpeechChunks consecutive speech samples (C2's strict-inequality
	// drop is tested in stream_test.go).
	th := DefaultThresholds()
	m := New(th)
	var last Action
	for i := 0; i < th.MinSpeechChunks; i++ {
		last = m.Process(th.StartThreshold)
	}
	if last != ActionStartRecording {
		t.Fatalf("expected START_RECORDING at exactly MinSpeechChunks samples, got %v", last)
	}
}
