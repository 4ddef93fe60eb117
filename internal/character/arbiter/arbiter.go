// Package arbiter decides which character currently holds the floor.
//
// At most one character speaks at a time across the whole process.
// [ActiveSpeakerArbiter] is the explicit registry characters subscribe to: on
// every change of the active speaker each subscriber is notified, and a
// character that sees someone else take the floor interrupts its own
// playback. [AddressDetector] picks the active speaker from what the player
// actually said.
package arbiter

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies a subscription for later removal.
type Token string

// Handler is notified with the id of the new active character. The empty
// string means nobody holds the floor.
type Handler func(active string)

// ActiveSpeakerArbiter tracks the single character allowed to speak.
// Safe for concurrent use.
type ActiveSpeakerArbiter struct {
	mu       sync.RWMutex
	active   string
	handlers map[Token]Handler
	order    []Token
}

// New creates an arbiter with no active speaker.
func New() *ActiveSpeakerArbiter {
	return &ActiveSpeakerArbiter{handlers: make(map[Token]Handler)}
}

// Active returns the id of the character currently holding the floor, or the
// empty string when nobody does.
func (a *ActiveSpeakerArbiter) Active() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// SetActive hands the floor to the given character and notifies every
// subscriber. Setting the current active speaker again is a no-op. Pass the
// empty string to release the floor.
func (a *ActiveSpeakerArbiter) SetActive(characterID string) {
	a.mu.Lock()
	if a.active == characterID {
		a.mu.Unlock()
		return
	}
	a.active = characterID
	handlers := make([]Handler, 0, len(a.order))
	for _, token := range a.order {
		handlers = append(handlers, a.handlers[token])
	}
	a.mu.Unlock()

	for _, h := range handlers {
		h(characterID)
	}
}

// Subscribe registers a handler invoked on every active-speaker change, in
// subscription order. The returned token removes it again.
func (a *ActiveSpeakerArbiter) Subscribe(handler Handler) Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	token := Token(uuid.NewString())
	a.handlers[token] = handler
	a.order = append(a.order, token)
	return token
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (a *ActiveSpeakerArbiter) Unsubscribe(token Token) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.handlers[token]; !ok {
		return
	}
	delete(a.handlers, token)
	for i, t := range a.order {
		if t == token {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}
