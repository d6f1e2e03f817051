// Package audiosource provides the two concrete audio source contract
// implementations named in spec §6: a live microphone source and a file
// source.
package audiosource

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Microphone is the live audio source kind: non-restartable, infinite,
// paced by the capture device itself. Grounded on the teacher's
// cmd/agent/main.go malgo capture-callback wiring, simplified to
// capture-only since this pipeline has no synthesized playback to mix in.
type Microphone struct {
	deviceID   *malgo.DeviceID
	sampleRate int

	mctx   *malgo.AllocatedContext
	device *malgo.Device
	out    chan []float32

	pending []int16 // leftover int16 samples not yet forming a full chunk
}

// NewMicrophone constructs a live source. deviceID may be nil to use the
// platform default capture device.
func NewMicrophone(deviceID *malgo.DeviceID, sampleRate int) *Microphone {
	return &Microphone{deviceID: deviceID, sampleRate: sampleRate, out: make(chan []float32, 16)}
}

func (m *Microphone) IsRealtime() bool { return true }

func (m *Microphone) Start() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("microphone: init audio context: %w", err)
	}
	m.mctx = mctx

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1
	if m.deviceID != nil {
		cfg.Capture.DeviceID = m.deviceID.Pointer()
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onSamples,
	})
	if err != nil {
		mctx.Uninit()
		return fmt.Errorf("microphone: init device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("microphone: start device: %w", err)
	}
	return nil
}

func (m *Microphone) onSamples(pOutput, pInput []byte, frameCount uint32) {
	if len(pInput) == 0 {
		return
	}
	for i := 0; i+1 < len(pInput); i += 2 {
		s := int16(pInput[i]) | int16(pInput[i+1])<<8
		m.pending = append(m.pending, s)
	}
	for len(m.pending) >= chunkSamples {
		chunk := make([]float32, chunkSamples)
		for i := 0; i < chunkSamples; i++ {
			chunk[i] = float32(m.pending[i]) / 32768.0
		}
		select {
		case m.out <- chunk:
		default:
			// Drop the chunk rather than block the audio callback; a
			// stalled consumer must never stall capture.
		}
		m.pending = m.pending[chunkSamples:]
	}
}

const chunkSamples = 512

func (m *Microphone) Stop() error {
	if m.device != nil {
		m.device.Uninit()
	}
	if m.mctx != nil {
		m.mctx.Uninit()
	}
	close(m.out)
	return nil
}

func (m *Microphone) Stream() <-chan []float32 { return m.out }

// DeviceInfo describes one enumerated capture device for --list-devices.
// Index is the stable, human-typeable handle the CLI's --device flag takes
// (malgo.DeviceID itself is an opaque byte array, not something a user can
// type back in).
type DeviceInfo struct {
	Index     int
	ID        malgo.DeviceID
	Name      string
	IsDefault bool
}

// ListCaptureDevices enumerates input devices, per the CLI's --list-devices
// contract.
func ListCaptureDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("list devices: init audio context: %w", err)
	}
	defer mctx.Uninit()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list devices: enumerate: %w", err)
	}

	out := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		out = append(out, DeviceInfo{
			Index:     i,
			ID:        info.ID,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}
