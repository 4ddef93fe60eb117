package playback

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies one observer subscription. Pass it back to the matching
// unsubscribe method to stop receiving events.
type Token string

// registry is an ordered observer list. Handlers are invoked in
// subscription order, synchronously on the sequencer's dispatch goroutine,
// so observers see events in exactly the order the state machine produced
// them. Handlers must return quickly and must not call back into the
// sequencer.
type registry[H any] struct {
	mu      sync.RWMutex
	entries []registryEntry[H]
}

type registryEntry[H any] struct {
	token   Token
	handler H
}

// subscribe registers handler and returns its token.
func (r *registry[H]) subscribe(handler H) Token {
	token := Token(uuid.NewString())
	r.mu.Lock()
	r.entries = append(r.entries, registryEntry[H]{token: token, handler: handler})
	r.mu.Unlock()
	return token
}

// unsubscribe removes the handler registered under token. Unknown tokens
// are a no-op.
func (r *registry[H]) unsubscribe(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.token == token {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the current handlers in subscription order.
func (r *registry[H]) snapshot() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make([]H, len(r.entries))
	for i, e := range r.entries {
		handlers[i] = e.handler
	}
	return handlers
}
