// Package dialogue connects characters to the remote conversation service.
//
// The central type is [Service], the network collaborator a character talks
// through: it bootstraps a session per character, forwards player input (text,
// audio, triggers) and delivers the service's streamed response chunks, in
// send order, to a registered handler. [Client] is the concrete WebSocket
// implementation; internal/dialogue/mock provides an in-memory stand-in for
// tests.
package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/tavernworks/parley/pkg/response"
)

// NoSession is the sentinel session id of a character that has not completed
// a bootstrap yet. The service rejects input sent against it.
const NoSession = "-1"

// ErrSendFailed is wrapped by all send operations when the underlying
// transport write fails. The session itself stays usable; callers surface the
// failure once and carry on.
var ErrSendFailed = errors.New("dialogue: send failed")

// BootstrapError reports a failed session bootstrap for a character.
type BootstrapError struct {
	CharacterID string
	Err         error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("dialogue: bootstrap character %q: %v", e.CharacterID, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// ChunkHandler receives one streamed response chunk. Implementations must not
// block: the client's read loop invokes the handler inline, so a slow handler
// stalls every session on the connection.
type ChunkHandler func(sessionID string, chunk *response.Chunk)

// Service is the conversation backend a character sends input to and receives
// streamed responses from.
type Service interface {
	// Bootstrap creates a session for the given character and returns its id.
	Bootstrap(ctx context.Context, characterID string) (string, error)

	// SendText forwards a typed player message into the session.
	SendText(ctx context.Context, sessionID, text string) error

	// SendAudio forwards a raw PCM16 capture chunk into the session.
	SendAudio(ctx context.Context, sessionID string, pcm []byte) error

	// SendTrigger fires a named scene trigger in the session.
	SendTrigger(ctx context.Context, sessionID, trigger string) error

	// OnChunk registers the handler for streamed response chunks. At most one
	// handler is active; registering replaces the previous one.
	OnChunk(handler ChunkHandler)

	// Close tears down the connection and all sessions on it. Idempotent.
	Close() error
}
