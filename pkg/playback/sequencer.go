// Package playback turns an ordered stream of decoded response units into
// sequential audio output with talking-state tracking and mid-stream
// interruption.
//
// A [Sequencer] owns a background dispatch goroutine that plays buffered
// units strictly in arrival order, one at a time, through an [audio.Player].
// Observers subscribe to talking-state transitions, per-unit transcripts,
// and response-finished signals; talking-state events strictly alternate —
// consumers never observe two consecutive identical values.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tavernworks/parley/pkg/audio"
	"github.com/tavernworks/parley/pkg/response"
)

// Sequencer is the per-character playback state machine: Idle until an
// audio unit arrives, Playing while a unit is audible, back to Idle when
// the buffer drains, the response finishes, or [Sequencer.Interrupt] fires.
//
// All exported methods are safe for concurrent use.
type Sequencer struct {
	player audio.Player

	mu         sync.Mutex
	buffer     []bufferedUnit
	gen        uint64 // bumped by Interrupt; stale units are discarded
	cancelPlay context.CancelFunc
	closed     bool

	// talkingMu serialises talking-state emissions from the dispatch
	// goroutine and Interrupt so observers always see alternating values.
	talkingMu sync.Mutex
	talking   bool

	notify chan struct{} // 1-buffered wake-up for the dispatch goroutine
	done   chan struct{} // closed by Close

	talkingObs    registry[func(bool)]
	transcriptObs registry[func(string)]
	finishedObs   registry[func()]
}

type bufferedUnit struct {
	unit *response.Unit
	gen  uint64
}

// NewSequencer creates a sequencer that plays units through player and
// starts its dispatch goroutine immediately. Call [Sequencer.Close] to stop
// the goroutine and release the player.
func NewSequencer(player audio.Player) *Sequencer {
	s := &Sequencer{
		player: player,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Generation returns the current interrupt generation. Capture it before
// decoding a drained chunk and pass it to [Sequencer.Add]: units decoded
// before an interrupt but added after are then discarded instead of played
// late.
func (s *Sequencer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Add appends unit to the playback buffer. The unit is dropped when gen no
// longer matches the current interrupt generation or the sequencer is
// closed; the return value reports whether the unit was accepted. Units are
// never reordered.
func (s *Sequencer) Add(unit *response.Unit, gen uint64) bool {
	if unit == nil {
		return false
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.buffer = append(s.buffer, bufferedUnit{unit: unit, gen: gen})
	s.mu.Unlock()

	s.wake()
	return true
}

// Buffered reports the number of units waiting to be played.
func (s *Sequencer) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Talking reports whether an audio unit is currently audible.
func (s *Sequencer) Talking() bool {
	s.talkingMu.Lock()
	defer s.talkingMu.Unlock()
	return s.talking
}

// OnTalkingChanged subscribes handler to talking-state transitions.
func (s *Sequencer) OnTalkingChanged(handler func(talking bool)) Token {
	return s.talkingObs.subscribe(handler)
}

// OffTalkingChanged removes a talking-state subscription.
func (s *Sequencer) OffTalkingChanged(token Token) {
	s.talkingObs.unsubscribe(token)
}

// OnTranscript subscribes handler to transcript-available events, fired
// after each audio unit plays to completion.
func (s *Sequencer) OnTranscript(handler func(transcript string)) Token {
	return s.transcriptObs.subscribe(handler)
}

// OffTranscript removes a transcript subscription.
func (s *Sequencer) OffTranscript(token Token) {
	s.transcriptObs.unsubscribe(token)
}

// OnResponseFinished subscribes handler to the end-of-response signal fired
// when a terminal unit is reached.
func (s *Sequencer) OnResponseFinished(handler func()) Token {
	return s.finishedObs.subscribe(handler)
}

// OffResponseFinished removes a response-finished subscription.
func (s *Sequencer) OffResponseFinished(token Token) {
	s.finishedObs.unsubscribe(token)
}

// Interrupt immediately stops any in-flight playback, discards all buffered
// units, and forces Idle. If the character was talking, exactly one
// talking=false event is emitted. Interrupt is idempotent — calling it
// while Idle is a no-op.
func (s *Sequencer) Interrupt() {
	s.mu.Lock()
	s.gen++
	s.buffer = nil
	if s.cancelPlay != nil {
		s.cancelPlay()
		s.cancelPlay = nil
	}
	s.mu.Unlock()

	s.setTalking(false)
}

// Close stops the dispatch goroutine permanently and releases the player.
// Buffered and in-flight audio is discarded. Close is idempotent.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	s.buffer = nil
	if s.cancelPlay != nil {
		s.cancelPlay()
		s.cancelPlay = nil
	}
	s.mu.Unlock()

	close(s.done)
	s.setTalking(false)
	return s.player.Close()
}

// wake nudges the dispatch goroutine without blocking.
func (s *Sequencer) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// dispatch is the background goroutine that pops buffered units in order
// and plays them one at a time. It runs until Close.
func (s *Sequencer) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			entry, ok := s.pop()
			if !ok {
				break
			}

			if entry.unit.Final {
				// End of the response cycle: back to Idle, then let
				// consumers react to the finished response.
				s.setTalking(false)
				for _, h := range s.finishedObs.snapshot() {
					h()
				}
				continue
			}

			s.playUnit(entry)
		}

		// Buffer drained mid-response: the run of audio is over until the
		// next unit arrives.
		s.setTalking(false)
	}
}

// pop removes the oldest buffered unit, skipping any made stale by an
// interrupt after they were added.
func (s *Sequencer) pop() (bufferedUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buffer) > 0 {
		entry := s.buffer[0]
		s.buffer = s.buffer[1:]
		if entry.gen == s.gen {
			return entry, true
		}
	}
	s.buffer = nil
	return bufferedUnit{}, false
}

// playUnit plays one audio unit to completion or interruption.
func (s *Sequencer) playUnit(entry bufferedUnit) {
	s.mu.Lock()
	if s.closed || entry.gen != s.gen {
		// Interrupted between pop and play: discard.
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPlay = cancel
	s.mu.Unlock()

	s.setTalking(true)
	err := s.player.Play(ctx, entry.unit.Clip)

	s.mu.Lock()
	if s.cancelPlay != nil {
		s.cancelPlay = nil
	}
	s.mu.Unlock()
	cancel()

	switch {
	case err == nil:
		for _, h := range s.transcriptObs.snapshot() {
			h(entry.unit.Transcript)
		}
	case errors.Is(err, context.Canceled):
		// Interrupted; talking=false was already emitted by Interrupt.
	default:
		slog.Error("playback: unit failed", "err", err)
	}
}

// setTalking updates the talking state and notifies observers when the
// value actually changes, guaranteeing strict alternation of events.
func (s *Sequencer) setTalking(talking bool) {
	s.talkingMu.Lock()
	defer s.talkingMu.Unlock()

	if s.talking == talking {
		return
	}
	s.talking = talking
	for _, h := range s.talkingObs.snapshot() {
		h(talking)
	}
}
