// Package transcript persists the conversation log between players and
// characters.
//
// [Store] is the persistence interface; [PostgresStore] backs it with a
// PostgreSQL table and [MemStore] keeps everything in memory for tests and
// storeless deployments.
package transcript

import (
	"context"
	"time"
)

// Speaker roles recorded on transcript entries.
const (
	SpeakerPlayer    = "player"
	SpeakerCharacter = "character"
)

// Entry is one line of conversation.
type Entry struct {
	// ID is assigned by the store on Append.
	ID int64

	// SessionID is the dialogue session the line belongs to.
	SessionID string

	// CharacterID identifies the character involved in the exchange.
	CharacterID string

	// Speaker is SpeakerPlayer or SpeakerCharacter.
	Speaker string

	// Text is the spoken or typed line.
	Text string

	// CreatedAt is assigned by the store on Append.
	CreatedAt time.Time
}

// Store persists conversation entries in arrival order.
type Store interface {
	// Append stores one entry, filling in its ID and CreatedAt.
	Append(ctx context.Context, entry *Entry) error

	// Recent returns up to limit entries for the session in chronological
	// order, oldest first. limit <= 0 returns all entries.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Ping verifies the store is reachable, for health checks.
	Ping(ctx context.Context) error
}
