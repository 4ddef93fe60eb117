// Package mock provides an in-memory mock implementation of
// [capture.Recorder] for use in unit tests.
//
// The mock records every method call and allows the test to configure return
// values via exported fields. It is safe for concurrent use.
package mock

import (
	"sync"

	"github.com/tavernworks/parley/internal/capture"
)

// Compile-time interface assertion.
var _ capture.Recorder = (*Recorder)(nil)

// Recorder is a mock implementation of [capture.Recorder].
type Recorder struct {
	mu sync.Mutex

	// HasDevice is returned by [Recorder.HasCaptureDevice]. When false, Start
	// also fails with capture.ErrNoCaptureDevice.
	HasDevice bool

	// StartError is returned by [Recorder.Start] when HasDevice is true.
	StartError error

	// StopError is returned by [Recorder.Stop].
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Started reports whether the recorder is currently capturing.
	Started bool

	onAudio func(pcm []byte)
}

// HasCaptureDevice implements [capture.Recorder].
func (r *Recorder) HasCaptureDevice() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.HasDevice
}

// Start implements [capture.Recorder].
func (r *Recorder) Start(onAudio func(pcm []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStart++
	if !r.HasDevice {
		return capture.ErrNoCaptureDevice
	}
	if r.StartError != nil {
		return r.StartError
	}
	r.Started = true
	r.onAudio = onAudio
	return nil
}

// Stop implements [capture.Recorder].
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStop++
	r.Started = false
	r.onAudio = nil
	return r.StopError
}

// Close implements [capture.Recorder].
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountClose++
	r.Started = false
	return nil
}

// EmitAudio delivers a PCM chunk to the registered callback, simulating the
// device's data thread. No-op when capture is not running.
func (r *Recorder) EmitAudio(pcm []byte) {
	r.mu.Lock()
	handler := r.onAudio
	r.mu.Unlock()
	if handler != nil {
		handler(pcm)
	}
}
