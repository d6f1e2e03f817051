package vad

import "math"

// RMSModel is a dependency-free VAD model: it estimates speech probability
// from the root-mean-square energy of a chunk rather than a neural net. It
// satisfies the same Model contract as SileroModel; the CLI uses it in place
// of SileroModel when vad.model.url is empty.
//
// Probability is derived by mapping RMS linearly onto [0,1] against a
// reference ceiling rather than thresholding internally: C1 owns all
// threshold logic, this model must stay a pure "how loud is this" signal.
type RMSModel struct {
	ceiling float64
}

// NewRMSModel returns an RMSModel. ceiling is the RMS value (0..1 scale,
// since samples are normalized float32 PCM) that should map to probability
// 1.0; 0.1 is a reasonable default for close-mic speech.
func NewRMSModel(ceiling float64) *RMSModel {
	if ceiling <= 0 {
		ceiling = 0.1
	}
	return &RMSModel{ceiling: ceiling}
}

func (m *RMSModel) Probability(chunk []float32) (float64, error) {
	if len(chunk) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range chunk {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(chunk)))
	p := rms / m.ceiling
	if p > 1 {
		p = 1
	}
	return p, nil
}

func (m *RMSModel) Reset() {}

func (m *RMSModel) Close() error { return nil }
