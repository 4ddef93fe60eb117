// Package audio provides the playback substrate for Parley: decoded PCM
// clips, WAV/Opus decoding, format conversion, and the [Player] contract
// implemented by the miniaudio output device.
//
// All PCM data is little-endian signed 16-bit. A [Clip] is the unit handed
// to a [Player]; producers (the response decoder) build clips from raw
// network payloads and consumers play them sequentially.
package audio

import (
	"context"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Clip is a fully decoded, playable piece of audio.
type Clip struct {
	// PCM is little-endian int16 sample data, interleaved when stereo.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for dialogue-service output, 48000
	// for the local output device).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback duration of the clip. A clip with a
// non-positive sample rate or channel count reports zero.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2 / c.Channels
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Player plays one clip at a time. Play blocks until the clip has been
// played to completion or ctx is cancelled; cancellation must stop output
// promptly and return ctx.Err().
//
// Implementations need not be safe for concurrent Play calls — the playback
// sequencer serialises them.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
	Close() error
}
