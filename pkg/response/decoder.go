package response

import (
	"errors"
	"fmt"

	"github.com/tavernworks/parley/pkg/audio"
)

// MinFrameBytes is the default minimal-frame threshold. A WAV payload of 46
// bytes or less is a header plus at most one sample — header-only noise the
// service emits around utterance boundaries.
const MinFrameBytes = 46

// ErrDecode wraps audio decoding failures. Units that fail to decode are
// dropped and playback continues; the error is surfaced to the caller for
// logging only.
var ErrDecode = errors.New("response: decode")

// Encoding selects how chunk audio payloads are decoded.
type Encoding string

const (
	// EncodingWAV decodes RIFF/WAVE payloads, falling back to headerless
	// PCM16 at the chunk's declared sample rate.
	EncodingWAV Encoding = "wav"

	// EncodingOpus decodes Opus packets. Opus carries decoder state across
	// packets, so one [Decoder] must see a whole response stream in order.
	EncodingOpus Encoding = "opus"
)

// IsValid reports whether e is a recognised encoding.
func (e Encoding) IsValid() bool {
	return e == EncodingWAV || e == EncodingOpus
}

// Decoder converts drained chunks into playable [Unit] values, filtering
// noise frames below the minimal-frame threshold.
//
// Not safe for concurrent use; a character's polling tick is the only
// caller.
type Decoder struct {
	minFrameBytes int
	encoding      Encoding
	opus          *audio.OpusDecoder
}

// DecoderOption configures a [Decoder] during construction.
type DecoderOption func(*Decoder)

// WithMinFrameBytes overrides the minimal-frame threshold. Chunks whose
// audio payload is at or below this size (and which are not end-of-response
// markers) are discarded as noise. The default is [MinFrameBytes].
func WithMinFrameBytes(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.minFrameBytes = n
		}
	}
}

// WithEncoding selects the audio payload encoding. The default is
// [EncodingWAV].
func WithEncoding(e Encoding) DecoderOption {
	return func(d *Decoder) {
		d.encoding = e
	}
}

// NewDecoder creates a decoder for one character's response streams.
func NewDecoder(opts ...DecoderOption) (*Decoder, error) {
	d := &Decoder{
		minFrameBytes: MinFrameBytes,
		encoding:      EncodingWAV,
	}
	for _, o := range opts {
		o(d)
	}
	if !d.encoding.IsValid() {
		return nil, fmt.Errorf("response: unknown encoding %q", d.encoding)
	}
	if d.encoding == EncodingOpus {
		opus, err := audio.NewOpusDecoder(48000, 1)
		if err != nil {
			return nil, err
		}
		d.opus = opus
	}
	return d, nil
}

// Decode decides the disposition of one chunk and returns the playable
// units it yields, in playback order:
//
//   - audio at or below the minimal-frame threshold and not final → no unit
//     (noise frame, discarded)
//   - audio above the threshold → one decoded unit, unless the transcript
//     is empty, in which case the audio is discarded anyway (silent or
//     garbage audio with no caption)
//   - final → exactly one terminal unit, regardless of audio payload; a
//     final chunk that also carries usable audio yields the audio unit
//     first, then the terminal unit
//
// Malformed audio returns an error wrapping [ErrDecode]; the bad payload is
// dropped (the terminal marker, if any, still comes through) and later
// chunks decode normally.
func (d *Decoder) Decode(chunk *Chunk) ([]*Unit, error) {
	if chunk == nil {
		return nil, nil
	}

	var units []*Unit
	var decodeErr error

	if len(chunk.Audio) > d.minFrameBytes {
		clip, err := d.decodeClip(chunk)
		switch {
		case err != nil:
			decodeErr = fmt.Errorf("%w: %v", ErrDecode, err)
		case chunk.Transcript == "":
			// Audio without a caption is discarded. This mirrors the
			// dialogue service's contract that every audible chunk carries
			// its transcript; see the decoder tests for the policy.
		default:
			units = append(units, &Unit{Clip: clip, Transcript: chunk.Transcript})
		}
	}

	if chunk.Final {
		// The terminal marker must survive a bad or discarded payload or
		// the response cycle never closes.
		units = append(units, &Unit{Final: true})
	}

	return units, decodeErr
}

// decodeClip decodes the chunk's audio payload using the configured
// encoding.
func (d *Decoder) decodeClip(chunk *Chunk) (*audio.Clip, error) {
	if d.encoding == EncodingOpus {
		return d.opus.Decode(chunk.Audio)
	}
	return audio.DecodeWAV(chunk.Audio, chunk.SampleRate)
}
