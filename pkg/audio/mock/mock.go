// Package mock provides an in-memory mock implementation of the
// [audio.Player] interface for use in unit tests.
//
// The mock records every clip handed to Play so that tests can assert on
// playback order and content, and exposes exported fields to control return
// values and block playback until the test releases it.
//
// Typical usage:
//
//	p := &mock.Player{}
//	seq := playback.NewSequencer(p)
//	...
//	if got := p.PlayCount(); got != 2 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/tavernworks/parley/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Player = (*Player)(nil)

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play].
	PlayError error

	// CloseError is returned by [Player.Close].
	CloseError error

	// Release, when non-nil, blocks each Play call until a value is
	// received or the context is cancelled. Use it to hold a clip
	// "in playback" while the test inspects intermediate state.
	Release chan struct{}

	// Played accumulates every clip passed to Play, in order.
	Played []*audio.Clip

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Player]. It records the clip, then optionally
// blocks on Release.
func (p *Player) Play(ctx context.Context, clip *audio.Clip) error {
	p.mu.Lock()
	p.Played = append(p.Played, clip)
	release := p.Release
	err := p.PlayError
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close implements [audio.Player]. Returns CloseError.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return p.CloseError
}

// PlayCount returns how many clips have been played so far.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// LastPlayed returns the most recently played clip, or nil.
func (p *Player) LastPlayed() *audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Played) == 0 {
		return nil
	}
	return p.Played[len(p.Played)-1]
}
