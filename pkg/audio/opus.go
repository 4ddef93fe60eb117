package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus frame parameters for dialogue-service streams: 48 kHz mono at 20 ms
// per frame.
const (
	opusFrameMs = 20
	// opusMaxFrameSize is the largest decoded frame we accept per packet
	// (120 ms at 48 kHz), matching libopus limits.
	opusMaxFrameSize = 48000 * 120 / 1000
)

// OpusDecoder decodes a stream of Opus packets into PCM16 clips. Opus is
// stateful across consecutive packets, so each character's response stream
// needs its own decoder.
//
// Not safe for concurrent use; the response decoder calls it from the
// polling goroutine only.
type OpusDecoder struct {
	dec        *gopus.Decoder
	sampleRate int
	channels   int
	frameSize  int
}

// NewOpusDecoder creates a decoder for the given stream format.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  sampleRate * opusFrameMs / 1000,
	}, nil
}

// Decode decodes one Opus packet into a [Clip].
func (d *OpusDecoder) Decode(packet []byte) (*Clip, error) {
	frameSize := d.frameSize
	if frameSize > opusMaxFrameSize {
		frameSize = opusMaxFrameSize
	}
	pcm, err := d.dec.Decode(packet, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return &Clip{
		PCM:        int16sToBytes(pcm),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}, nil
}

// int16sToBytes converts int16 samples to little-endian bytes.
func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
