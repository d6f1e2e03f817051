package vad

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroContextSamples = 64
	sileroInputSamples   = sileroContextSamples + ChunkSamples
	sileroStateSize      = 2 * 1 * 128
	sampleRate           = 16000
)

// SileroModel wraps the Silero VAD ONNX graph. Not safe for concurrent use;
// it is owned exclusively by the audio thread, matching the spec's
// single-writer rule for the VAD inference object.
type SileroModel struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	state    *ort.Tensor[float32]
	sr       *ort.Tensor[int64]
	output   *ort.Tensor[float32]
	stateOut *ort.Tensor[float32]

	context [sileroContextSamples]float32
}

// NewSileroModel loads the ONNX graph at modelPath (expected to already be
// present on disk, e.g. at ~/.cache/silero-vad/silero_vad.onnx; fetching it
// there is config/startup glue, not this type's job).
func NewSileroModel(modelPath string) (*SileroModel, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(1, sileroInputSamples), make([]float32, sileroInputSamples))
	if err != nil {
		return nil, fmt.Errorf("silero vad: allocate input tensor: %w", err)
	}
	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("silero vad: allocate state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("silero vad: allocate sample-rate tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("silero vad: allocate output tensor: %w", err)
	}
	stateOutTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("silero vad: allocate state-out tensor: %w", err)
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateOutTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateOutTensor.Destroy()
		return nil, fmt.Errorf("silero vad: create session: %w", err)
	}

	return &SileroModel{
		session:  sess,
		input:    inputTensor,
		state:    stateTensor,
		sr:       srTensor,
		output:   outputTensor,
		stateOut: stateOutTensor,
	}, nil
}

// Probability runs one inference step. chunk must be exactly ChunkSamples
// (512) long; the graph itself enforces 16kHz via the sr tensor.
func (m *SileroModel) Probability(chunk []float32) (float64, error) {
	if len(chunk) != ChunkSamples {
		return 0, fmt.Errorf("silero vad: chunk must be exactly %d samples, got %d", ChunkSamples, len(chunk))
	}

	inputData := m.input.GetData()
	copy(inputData[:sileroContextSamples], m.context[:])
	copy(inputData[sileroContextSamples:], chunk)
	copy(m.context[:], inputData[sileroInputSamples-sileroContextSamples:])

	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("silero vad: run: %w", err)
	}

	prob := m.output.GetData()[0]
	copy(m.state.GetData(), m.stateOut.GetData())

	return float64(prob), nil
}

// Reset zeros the LSTM state and the rolling context window, recovering the
// model from long-silence state drift. C2 calls this on RESET_VAD_MODEL and
// after every STOP_RECORDING.
func (m *SileroModel) Reset() {
	for i := range m.context {
		m.context[i] = 0
	}
	m.state.ZeroContents()
}

func (m *SileroModel) Close() error {
	return m.session.Destroy()
}
