// Package capture provides the microphone collaborator characters listen
// through.
//
// [Recorder] abstracts the audio input device; [DeviceRecorder] is the
// miniaudio-backed implementation and internal/capture/mock the test
// stand-in. Characters probe [Recorder.HasCaptureDevice] before touching the
// network so that headless deployments fail fast with [ErrNoCaptureDevice].
package capture

import "errors"

// ErrNoCaptureDevice indicates that no audio input device is available on
// this host. Listening cannot start; text and trigger input still work.
var ErrNoCaptureDevice = errors.New("capture: no capture device available")

// Recorder is an audio input device delivering raw PCM16 chunks to a
// callback.
type Recorder interface {
	// HasCaptureDevice reports whether at least one input device exists.
	// It must not perform any network or session work.
	HasCaptureDevice() bool

	// Start opens the device and begins delivering PCM16 chunks to onAudio
	// from the device's real-time thread. Returns ErrNoCaptureDevice when no
	// device exists. Starting an already started recorder is a no-op.
	Start(onAudio func(pcm []byte)) error

	// Stop pauses capture. Stopping an idle recorder is a no-op.
	Stop() error

	// Close releases the device and its context. Idempotent.
	Close() error
}
