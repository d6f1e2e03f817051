package audiosource

import (
	"fmt"
	"time"

	"github.com/yujixr/stream-scribe/pkg/audio"
)

// File is the finite audio source kind: reads an entire WAV file up
// front, resamples it to the pipeline's sample rate if necessary, and
// replays it as a sequence of fixed-size chunks, optionally sleeping
// chunk_size/sample_rate seconds between chunks to simulate real-time
// pacing (grounded on original_source's FileAudioSource).
type File struct {
	path       string
	sampleRate int
	realtime   bool

	out chan []float32
}

// NewFile constructs a file source. realtime, when true, paces emission
// with real-time sleeps; when false (the default for batch processing),
// chunks are emitted as fast as the consumer can drain them.
func NewFile(path string, sampleRate int, realtime bool) *File {
	return &File{path: path, sampleRate: sampleRate, realtime: realtime, out: make(chan []float32)}
}

func (f *File) IsRealtime() bool { return f.realtime }

func (f *File) Start() error {
	samples, fileRate, err := audio.ReadWavMono(f.path)
	if err != nil {
		return fmt.Errorf("file source: %w", err)
	}
	if fileRate != f.sampleRate {
		samples = resampleLinear(samples, fileRate, f.sampleRate)
	}

	go f.replay(samples)
	return nil
}

func (f *File) replay(samples []float32) {
	defer close(f.out)

	chunkDur := time.Duration(float64(chunkSamples) / float64(f.sampleRate) * float64(time.Second))

	for i := 0; i+chunkSamples <= len(samples); i += chunkSamples {
		chunk := make([]float32, chunkSamples)
		copy(chunk, samples[i:i+chunkSamples])
		f.out <- chunk
		if f.realtime {
			time.Sleep(chunkDur)
		}
	}
	// A final partial chunk, if any, is zero-padded so C2 always sees
	// full 512-sample windows.
	rem := len(samples) % chunkSamples
	if rem > 0 {
		chunk := make([]float32, chunkSamples)
		copy(chunk, samples[len(samples)-rem:])
		f.out <- chunk
	}
}

func (f *File) Stop() error { return nil }

func (f *File) Stream() <-chan []float32 { return f.out }

// resampleLinear performs simple linear-interpolation resampling. Audio
// pipelines of this shape are not sample-rate-critical for intelligibility
// (unlike the VAD/ASR models downstream, which require exactly 16kHz —
// hence config.Load's startup validation), so a lightweight resampler is
// sufficient rather than pulling in a dedicated DSP dependency.
func resampleLinear(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		i1 := i0 + 1
		frac := float32(srcPos - float64(i0))
		if i1 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = in[i0]*(1-frac) + in[i1]*frac
	}
	return out
}
