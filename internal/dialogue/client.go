package dialogue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tavernworks/parley/internal/resilience"
	"github.com/tavernworks/parley/pkg/response"
)

// Compile-time assertion that Client satisfies the Service interface.
var _ Service = (*Client)(nil)

const defaultBootstrapTimeout = 10 * time.Second

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent on the WebSocket handshake.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBreakerConfig overrides the circuit breaker guarding the send path.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = resilience.NewCircuitBreaker(cfg) }
}

// WithRejectUnbound makes sends against the NoSession sentinel fail locally
// instead of travelling to the service just to be rejected there.
func WithRejectUnbound(reject bool) Option {
	return func(c *Client) { c.rejectUnbound = reject }
}

// WithVoices sets the voice identifier included in each character's
// session.start envelope. Characters without an entry get the service's
// default voice.
func WithVoices(voices map[string]string) Option {
	return func(c *Client) { c.voices = voices }
}

// ── Protocol envelopes ─────────────────────────────────────────────────────────

// envelope is the single JSON frame shape used in both directions. The Type
// field selects which of the remaining fields are meaningful.
type envelope struct {
	Type        string `json:"type"`
	CharacterID string `json:"character_id,omitempty"`
	Voice       string `json:"voice,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Trigger     string `json:"trigger,omitempty"`

	// input.audio / response.chunk payload, base64-encoded.
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Final      bool   `json:"final,omitempty"`

	// session.error / error events.
	Message string `json:"message,omitempty"`
}

type bootstrapReply struct {
	sessionID string
	err       error
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client is the WebSocket implementation of Service. A single connection
// carries every character session; frames are multiplexed by session id.
// Safe for concurrent use.
type Client struct {
	url           string
	apiKey        string
	rejectUnbound bool
	voices        map[string]string
	breaker       *resilience.CircuitBreaker

	mu      sync.Mutex
	conn    *websocket.Conn
	handler ChunkHandler
	pending map[string][]chan bootstrapReply
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a Client for the given WebSocket URL. The connection is
// established lazily on the first Bootstrap or send.
func NewClient(url string, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:     url,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "dialogue"}),
		pending: map[string][]chan bootstrapReply{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ensureConn dials the service if no connection exists yet. Must be called
// with c.mu held.
func (c *Client) ensureConn(ctx context.Context) error {
	if c.closed {
		return errors.New("dialogue: client closed")
	}
	if c.conn != nil {
		return nil
	}

	var header http.Header
	if c.apiKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dialogue: dial %s: %w", c.url, err)
	}
	c.conn = conn

	go c.receiveLoop(conn)
	return nil
}

// writeJSON marshals v and writes it as a text frame on the current connection.
// Must be called with c.mu held.
func (c *Client) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("dialogue: marshal: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Bootstrap creates a remote session for the character and waits for the
// service to acknowledge it with a session id.
func (c *Client) Bootstrap(ctx context.Context, characterID string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultBootstrapTimeout)
		defer cancel()
	}

	reply := make(chan bootstrapReply, 1)

	c.mu.Lock()
	if err := c.ensureConn(ctx); err != nil {
		c.mu.Unlock()
		return NoSession, &BootstrapError{CharacterID: characterID, Err: err}
	}
	c.pending[characterID] = append(c.pending[characterID], reply)
	err := c.writeJSON(ctx, envelope{
		Type:        "session.start",
		CharacterID: characterID,
		Voice:       c.voices[characterID],
	})
	c.mu.Unlock()

	if err != nil {
		c.dropPending(characterID, reply)
		return NoSession, &BootstrapError{CharacterID: characterID, Err: err}
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return NoSession, &BootstrapError{CharacterID: characterID, Err: r.err}
		}
		return r.sessionID, nil
	case <-ctx.Done():
		c.dropPending(characterID, reply)
		return NoSession, &BootstrapError{CharacterID: characterID, Err: ctx.Err()}
	}
}

// dropPending removes a reply channel that will no longer be read.
func (c *Client) dropPending(characterID string, reply chan bootstrapReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.pending[characterID]
	for i, w := range waiters {
		if w == reply {
			c.pending[characterID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
}

// SendText forwards a typed player message into the session.
func (c *Client) SendText(ctx context.Context, sessionID, text string) error {
	return c.send(ctx, "input.text", envelope{
		Type:      "input.text",
		SessionID: sessionID,
		Text:      text,
	})
}

// SendAudio forwards a raw PCM16 capture chunk into the session.
func (c *Client) SendAudio(ctx context.Context, sessionID string, pcm []byte) error {
	return c.send(ctx, "input.audio", envelope{
		Type:      "input.audio",
		SessionID: sessionID,
		Audio:     base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendTrigger fires a named scene trigger in the session.
func (c *Client) SendTrigger(ctx context.Context, sessionID, trigger string) error {
	return c.send(ctx, "input.trigger", envelope{
		Type:      "input.trigger",
		SessionID: sessionID,
		Trigger:   trigger,
	})
}

// send pushes one envelope through the circuit breaker. Transport failures are
// wrapped in ErrSendFailed; an open breaker surfaces as ErrCircuitOpen.
func (c *Client) send(ctx context.Context, kind string, env envelope) error {
	if c.rejectUnbound && (env.SessionID == "" || env.SessionID == NoSession) {
		return fmt.Errorf("%w: %s on unbootstrapped session", ErrSendFailed, kind)
	}

	err := c.breaker.Execute(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.ensureConn(ctx); err != nil {
			return err
		}
		return c.writeJSON(ctx, env)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("dialogue: %s: %w", kind, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrSendFailed, kind, err)
}

// OnChunk registers the handler for streamed response chunks.
func (c *Client) OnChunk(handler ChunkHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Ping verifies connection liveness for health checks, dialing if necessary.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	if err := c.ensureConn(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.mu.Unlock()
	return conn.Ping(ctx)
}

// receiveLoop reads frames from the connection and dispatches them until the
// connection dies or the client closes.
func (c *Client) receiveLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("dialogue connection lost", "err", err)
			}
			c.failConn(conn, err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("dialogue frame discarded", "err", err)
			continue
		}
		c.handleEnvelope(&env)
	}
}

func (c *Client) handleEnvelope(env *envelope) {
	switch env.Type {
	case "session.started":
		c.resolveBootstrap(env.CharacterID, bootstrapReply{sessionID: env.SessionID})

	case "session.error":
		msg := env.Message
		if msg == "" {
			msg = "session rejected"
		}
		c.resolveBootstrap(env.CharacterID, bootstrapReply{err: errors.New(msg)})

	case "response.chunk":
		c.handleChunk(env)

	case "error":
		slog.Warn("dialogue service error", "message", env.Message, "session_id", env.SessionID)
	}
}

// resolveBootstrap delivers a reply to the oldest waiter for the character.
func (c *Client) resolveBootstrap(characterID string, r bootstrapReply) {
	c.mu.Lock()
	waiters := c.pending[characterID]
	if len(waiters) == 0 {
		c.mu.Unlock()
		return
	}
	reply := waiters[0]
	c.pending[characterID] = waiters[1:]
	c.mu.Unlock()

	reply <- r
}

func (c *Client) handleChunk(env *envelope) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	var pcm []byte
	if env.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			// Drop only the payload. The chunk itself still ships so a
			// final marker survives a mangled frame and the response
			// cycle can close.
			slog.Warn("dialogue chunk audio discarded", "err", err, "session_id", env.SessionID)
		} else {
			pcm = decoded
		}
	}

	handler(env.SessionID, &response.Chunk{
		Audio:      pcm,
		Transcript: env.Transcript,
		SampleRate: env.SampleRate,
		Final:      env.Final,
	})
}

// failConn tears down a dead connection and fails every pending bootstrap.
// The next send or Bootstrap redials.
func (c *Client) failConn(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	for characterID, waiters := range c.pending {
		for _, reply := range waiters {
			reply <- bootstrapReply{err: err}
		}
		delete(c.pending, characterID)
	}
}

// Close tears down the connection and all sessions on it. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}
