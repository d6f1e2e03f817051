package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestReadWavMonoRoundTrip(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0x00, 0xC0, 0xFF, 0x7F, 0x00, 0x00} // 4 int16 samples
	wav := NewWavBuffer(pcm, 16000)

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	samples, sampleRate, err := ReadWavMono(path)
	if err != nil {
		t.Fatalf("ReadWavMono: %v", err)
	}
	if sampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", sampleRate)
	}
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	if samples[2] < 0.99 || samples[2] > 1.0 {
		t.Fatalf("expected near-full-scale positive sample, got %f", samples[2])
	}
}
