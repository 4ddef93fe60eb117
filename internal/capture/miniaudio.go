package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Compile-time assertion that DeviceRecorder satisfies Recorder.
var _ Recorder = (*DeviceRecorder)(nil)

// DefaultSampleRate is the capture rate expected by the dialogue service.
const DefaultSampleRate = 16000

// DeviceRecorder is the miniaudio-backed Recorder. The capture device is
// initialized lazily on the first Start so that constructing a recorder on a
// headless host succeeds. Safe for concurrent use.
type DeviceRecorder struct {
	sampleRate int

	mu       sync.Mutex
	audioCtx *malgo.AllocatedContext
	device   *malgo.Device
	onAudio  func(pcm []byte)
	started  bool
	closed   bool
}

// NewDeviceRecorder initializes the miniaudio context. sampleRate <= 0 selects
// DefaultSampleRate.
func NewDeviceRecorder(sampleRate int) (*DeviceRecorder, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("capture: init context: %w", err)
	}
	return &DeviceRecorder{sampleRate: sampleRate, audioCtx: audioCtx}, nil
}

// HasCaptureDevice reports whether the host exposes at least one input device.
func (r *DeviceRecorder) HasCaptureDevice() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.audioCtx == nil {
		return false
	}
	infos, err := r.audioCtx.Devices(malgo.Capture)
	return err == nil && len(infos) > 0
}

// Start opens the capture device and begins delivering PCM16 mono chunks to
// onAudio. No-op when already started.
func (r *DeviceRecorder) Start(onAudio func(pcm []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("capture: recorder closed")
	}
	if r.started {
		return nil
	}

	infos, err := r.audioCtx.Devices(malgo.Capture)
	if err != nil || len(infos) == 0 {
		return ErrNoCaptureDevice
	}

	r.onAudio = onAudio

	if r.device == nil {
		if err := r.initDeviceLocked(); err != nil {
			return err
		}
	}
	if err := r.device.Start(); err != nil {
		return fmt.Errorf("capture: start device: %w", err)
	}
	r.started = true
	return nil
}

// initDeviceLocked creates the malgo capture device. Must be called with r.mu
// held.
func (r *DeviceRecorder) initDeviceLocked() error {
	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(r.sampleRate)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = 480
	cfg.Periods = 3

	device, err := malgo.InitDevice(r.audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			r.mu.Lock()
			handler := r.onAudio
			r.mu.Unlock()
			if handler != nil {
				// Copy out of the device-owned buffer before handing over.
				pcm := make([]byte, n)
				copy(pcm, pInput[:n])
				handler(pcm)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("capture: init device: %w", err)
	}
	r.device = device
	return nil
}

// Stop pauses capture. No-op when idle.
func (r *DeviceRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.device == nil {
		return nil
	}
	if err := r.device.Stop(); err != nil {
		return fmt.Errorf("capture: stop device: %w", err)
	}
	r.started = false
	r.onAudio = nil
	return nil
}

// Close releases the device and the miniaudio context. Idempotent.
func (r *DeviceRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	if r.audioCtx != nil {
		_ = r.audioCtx.Uninit()
		r.audioCtx.Free()
		r.audioCtx = nil
	}
	r.onAudio = nil
	return nil
}
