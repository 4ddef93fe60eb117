package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a single
// "fmt " chunk followed by "data". Payloads at or below this size carry no
// audible samples.
const wavHeaderSize = 44

// DecodeWAV decodes a dialogue-service audio payload into a [Clip].
//
// Payloads that start with a RIFF magic are parsed as WAV: the format chunk
// supplies the authoritative sample rate and channel count (overriding
// declaredRate), and only 16-bit PCM encodings are accepted. Anything else
// is treated as headerless PCM16 mono at declaredRate, which is how the
// service streams continuation chunks after the first.
func DecodeWAV(payload []byte, declaredRate int) (*Clip, error) {
	if len(payload) >= 4 && string(payload[:4]) == "RIFF" {
		return decodeRIFF(payload)
	}

	if declaredRate <= 0 {
		return nil, fmt.Errorf("audio: raw pcm payload with invalid sample rate %d", declaredRate)
	}
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("audio: raw pcm payload has odd byte count %d", len(payload))
	}
	return &Clip{PCM: payload, SampleRate: declaredRate, Channels: 1}, nil
}

// decodeRIFF walks the RIFF chunk list, validates the format chunk, and
// extracts the data chunk as PCM.
func decodeRIFF(payload []byte) (*Clip, error) {
	if len(payload) < wavHeaderSize {
		return nil, fmt.Errorf("audio: wav payload truncated at %d bytes", len(payload))
	}
	if string(payload[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: RIFF payload is not WAVE (got %q)", payload[8:12])
	}

	var (
		clip     Clip
		haveFmt  bool
		haveData bool
	)

	// Chunks start after the 12-byte RIFF descriptor.
	off := 12
	for off+8 <= len(payload) {
		id := string(payload[off : off+4])
		size := int(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(payload) {
			return nil, fmt.Errorf("audio: wav chunk %q overruns payload (size %d)", id, size)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: wav fmt chunk too small (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(payload[body : body+2])
			channels := int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			rate := int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(payload[body+14 : body+16])

			if audioFormat != 1 {
				return nil, fmt.Errorf("audio: unsupported wav encoding %d (want PCM)", audioFormat)
			}
			if bits != 16 {
				return nil, fmt.Errorf("audio: unsupported wav bit depth %d (want 16)", bits)
			}
			if channels < 1 || channels > 2 {
				return nil, fmt.Errorf("audio: unsupported wav channel count %d", channels)
			}
			if rate <= 0 {
				return nil, fmt.Errorf("audio: invalid wav sample rate %d", rate)
			}
			clip.SampleRate = rate
			clip.Channels = channels
			haveFmt = true

		case "data":
			clip.PCM = payload[body : body+size]
			haveData = true
		}

		// Chunks are word-aligned; odd sizes are padded with one byte.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("audio: wav payload missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("audio: wav payload missing data chunk")
	}
	if len(clip.PCM)%2 != 0 {
		return nil, fmt.Errorf("audio: wav data chunk has odd byte count %d", len(clip.PCM))
	}
	return &clip, nil
}
