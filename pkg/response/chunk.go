// Package response implements the inbound half of a character's dialogue
// pipeline: the thread-safe FIFO of raw chunks appended by the network
// receive path, and the decoder that turns drained chunks into playable
// units for the playback sequencer.
package response

import "github.com/tavernworks/parley/pkg/audio"

// Chunk is one unit of streamed dialogue-service output, exactly as it
// arrived off the wire. Chunks are never mutated after creation; the queue
// owns a chunk from Enqueue until DrainOne hands it to the decoder.
type Chunk struct {
	// Audio is the encoded audio payload. May be empty on terminal chunks.
	Audio []byte

	// Transcript is the text caption for this piece of audio.
	Transcript string

	// SampleRate is the sample rate in Hz declared by the service for
	// headerless payloads.
	SampleRate int

	// Final marks the end of one response cycle. A final chunk may or may
	// not carry audio.
	Final bool
}

// Unit is a decoded, playable piece of response. Exactly one Final unit
// terminates each response cycle.
type Unit struct {
	// Clip is the decoded audio. Nil when Final is set.
	Clip *audio.Clip

	// Transcript is the caption associated with Clip.
	Transcript string

	// Final marks end-of-utterance; a Final unit carries no audio.
	Final bool
}
