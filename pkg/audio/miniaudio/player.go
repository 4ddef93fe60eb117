// Package miniaudio implements the [audio.Player] contract on top of a
// miniaudio (malgo) playback device.
//
// The device runs continuously once opened; clips are fed to the device
// callback through an internal buffer and silence is emitted between clips.
// This keeps device start/stop latency out of the per-clip playback path.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tavernworks/parley/pkg/audio"
)

// Compile-time interface check.
var _ audio.Player = (*Player)(nil)

// Player is a malgo-backed [audio.Player]. One clip plays at a time; the
// playback sequencer serialises Play calls.
type Player struct {
	audioCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format

	mu      sync.Mutex
	pending []byte
	drained chan struct{} // 1-buffered; signalled when pending empties
	closed  bool
}

// NewPlayer opens a playback device with the given output format and starts
// it. Call [Player.Close] to stop the device and release the audio context.
func NewPlayer(format audio.Format) (*Player, error) {
	if format.SampleRate <= 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("miniaudio: invalid output format %+v", format)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}

	p := &Player{
		audioCtx: audioCtx,
		format:   format,
		drained:  make(chan struct{}, 1),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(format.SampleRate / 100) // ~10ms periods
	cfg.Periods = 4

	device, err := malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: p.feed,
	})
	if err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("miniaudio: init playback device: %w", err)
	}
	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("miniaudio: start playback device: %w", err)
	}

	return p, nil
}

// feed is the device data callback. It copies pending PCM into the output
// buffer and zero-fills the remainder (silence) when the buffer runs dry.
func (p *Player) feed(pOutput, _ []byte, _ uint32) {
	p.mu.Lock()
	n := copy(pOutput, p.pending)
	p.pending = p.pending[n:]
	empty := len(p.pending) == 0
	p.mu.Unlock()

	for i := n; i < len(pOutput); i++ {
		pOutput[i] = 0
	}

	if empty && n > 0 {
		select {
		case p.drained <- struct{}{}:
		default:
		}
	}
}

// Play converts clip to the device format, queues it, and blocks until the
// device has consumed it or ctx is cancelled. On cancellation the remaining
// PCM is discarded immediately.
func (p *Player) Play(ctx context.Context, clip *audio.Clip) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}

	conv := audio.FormatConverter{Target: p.format}
	converted := conv.Convert(clip)
	if len(converted.PCM) == 0 {
		return fmt.Errorf("miniaudio: clip PCM is corrupt, nothing to play")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("miniaudio: player is closed")
	}
	p.pending = converted.PCM

	// Flush a stale drained signal from a previous clip.
	select {
	case <-p.drained:
	default:
	}
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.pending = nil
			p.mu.Unlock()
			return ctx.Err()
		case <-p.drained:
			p.mu.Lock()
			done := len(p.pending) == 0
			p.mu.Unlock()
			if done {
				return nil
			}
		}
	}
}

// Close stops the playback device and releases the audio context. Close is
// idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
	}
	if p.audioCtx != nil {
		if err := p.audioCtx.Uninit(); err != nil {
			p.audioCtx.Free()
			return fmt.Errorf("miniaudio: uninit context: %w", err)
		}
		p.audioCtx.Free()
	}
	return nil
}
