// Package character implements the session controller that ties one NPC's
// dialogue session, response queue, decoder and playback together.
//
// A [Character] owns the full path from player input to audible speech:
// typed text and scene triggers go out through the dialogue service, streamed
// response chunks come back into a thread-safe queue, and a fixed-rate poll
// loop drains the queue through the decoder into the playback sequencer.
// Characters coordinate through the process-wide active-speaker arbiter so
// that only one of them speaks at a time.
package character

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tavernworks/parley/internal/capture"
	"github.com/tavernworks/parley/internal/character/arbiter"
	"github.com/tavernworks/parley/internal/dialogue"
	"github.com/tavernworks/parley/internal/observe"
	"github.com/tavernworks/parley/internal/transcript"
	"github.com/tavernworks/parley/pkg/audio"
	"github.com/tavernworks/parley/pkg/playback"
	"github.com/tavernworks/parley/pkg/response"
)

// DefaultPollInterval is the cadence at which the response queue is drained
// into the decoder.
const DefaultPollInterval = 10 * time.Millisecond

// storeTimeout bounds transcript writes issued from event handlers.
const storeTimeout = 5 * time.Second

// Config holds all dependencies needed to create a [Character].
//
// Required fields are ID, Name, Service, and Player. Recorder, Arbiter,
// Transcripts, and OnTrigger are optional — a nil Recorder means listening
// fails with [capture.ErrNoCaptureDevice], a nil Transcripts means the
// conversation is not persisted.
type Config struct {
	// ID is the stable, unique identifier for this character. Must not be
	// empty.
	ID string

	// Name is the human-readable in-world name.
	Name string

	// Service is the dialogue backend. Must not be nil.
	Service dialogue.Service

	// Recorder is the optional microphone used by StartListening.
	Recorder capture.Recorder

	// Player is the audio output the playback sequencer drives. Must not be
	// nil.
	Player audio.Player

	// Arbiter is the optional process-wide active-speaker registry. When set,
	// the character claims the floor before speaking and interrupts itself
	// when another character takes it.
	Arbiter *arbiter.ActiveSpeakerArbiter

	// Transcripts optionally persists both sides of the conversation.
	Transcripts transcript.Store

	// PollInterval is the queue drain cadence. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// DecoderOptions tune the chunk decoder (frame threshold, encoding).
	DecoderOptions []response.DecoderOption

	// Metrics records pipeline instrumentation. Nil selects the
	// process-wide default instance.
	Metrics *observe.Metrics

	// OnTrigger is invoked locally after a scene trigger was delivered.
	OnTrigger func(trigger string)
}

// Character is the session controller for one NPC. Safe for concurrent use.
type Character struct {
	id        string
	name      string
	svc       dialogue.Service
	recorder  capture.Recorder
	arb       *arbiter.ActiveSpeakerArbiter
	store     transcript.Store
	onTrigger func(trigger string)
	poll      time.Duration
	metrics   *observe.Metrics

	queue   *response.Queue
	decoder *response.Decoder
	seq     *playback.Sequencer

	mu        sync.RWMutex
	sessionID string
	started   bool
	closed    bool
	cancel    context.CancelFunc
	arbToken  arbiter.Token
}

// New creates a Character from the given configuration. The dialogue session
// is not bootstrapped until [Character.Start]; until then the session id is
// the dialogue.NoSession sentinel.
func New(cfg Config) (*Character, error) {
	if cfg.ID == "" {
		return nil, errors.New("character: ID must not be empty")
	}
	if cfg.Service == nil {
		return nil, errors.New("character: Service must not be nil")
	}
	if cfg.Player == nil {
		return nil, errors.New("character: Player must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	decoder, err := response.NewDecoder(cfg.DecoderOptions...)
	if err != nil {
		return nil, fmt.Errorf("character: %w", err)
	}

	c := &Character{
		id:        cfg.ID,
		name:      cfg.Name,
		svc:       cfg.Service,
		recorder:  cfg.Recorder,
		arb:       cfg.Arbiter,
		store:     cfg.Transcripts,
		onTrigger: cfg.OnTrigger,
		poll:      cfg.PollInterval,
		metrics:   cfg.Metrics,
		queue:     response.NewQueue(),
		decoder:   decoder,
		seq:       playback.NewSequencer(cfg.Player),
		sessionID: dialogue.NoSession,
	}

	c.seq.OnTranscript(func(text string) {
		c.persist(transcript.SpeakerCharacter, text)
	})

	return c, nil
}

// ID returns the stable, unique identifier for this character.
func (c *Character) ID() string { return c.id }

// Name returns the human-readable in-world name.
func (c *Character) Name() string { return c.name }

// SessionID returns the current dialogue session id, or dialogue.NoSession
// before a successful Start.
func (c *Character) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Start bootstraps the dialogue session and begins draining responses.
// Starting an already started character is a no-op.
func (c *Character) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("character: closed")
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sessionID, err := c.svc.Bootstrap(ctx, c.id)
	if err != nil {
		return fmt.Errorf("character: start %q: %w", c.id, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return errors.New("character: closed")
	}
	c.sessionID = sessionID
	c.started = true
	c.cancel = cancel
	if c.arb != nil {
		c.arbToken = c.arb.Subscribe(func(active string) {
			if active != c.id {
				c.InterruptSpeech()
			}
		})
	}
	c.mu.Unlock()

	go c.pollLoop(loopCtx)

	slog.Info("character session started", "character", c.id, "session_id", sessionID)
	return nil
}

// pollLoop drains the response queue at a fixed cadence, one chunk per tick.
func (c *Character) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainOnce()
		}
	}
}

// drainOnce decodes at most one queued chunk and feeds the resulting units to
// the sequencer. The generation is captured before decoding so that units
// still in flight when an interrupt lands are discarded.
func (c *Character) drainOnce() {
	chunk, ok := c.queue.DrainOne()
	if !ok {
		return
	}

	ctx := context.Background()
	gen := c.seq.Generation()
	start := time.Now()
	units, err := c.decoder.Decode(chunk)
	c.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordDecodeError(ctx, c.id)
		c.metrics.RecordChunkDropped(ctx, c.id, "decode")
		slog.Warn("response chunk dropped",
			"character", c.id,
			"err", err)
	}
	if err == nil && len(units) == 0 && !chunk.Final {
		// Sub-threshold or uncaptioned audio filtered by the decoder.
		c.metrics.RecordChunkDropped(ctx, c.id, "noise")
	}

	for _, unit := range units {
		if unit.Clip != nil && c.arb != nil {
			// Claim the floor before audible playback starts.
			c.arb.SetActive(c.id)
		}
		if !c.seq.Add(unit, gen) {
			c.metrics.RecordChunkDropped(ctx, c.id, "stale")
		}
	}
}

// EnqueueResponse appends a streamed response chunk for later decoding.
// Called from the dialogue service's receive path.
func (c *Character) EnqueueResponse(chunk *response.Chunk) {
	c.queue.Enqueue(chunk)
}

// SendText forwards a typed player message into the session and records it in
// the transcript store.
func (c *Character) SendText(ctx context.Context, text string) error {
	if err := c.svc.SendText(ctx, c.SessionID(), text); err != nil {
		return fmt.Errorf("character: send text: %w", err)
	}
	c.persist(transcript.SpeakerPlayer, text)
	return nil
}

// SendTrigger fires a named scene trigger in the session and, on success,
// emits the local trigger notification.
func (c *Character) SendTrigger(ctx context.Context, trigger string) error {
	if err := c.svc.SendTrigger(ctx, c.SessionID(), trigger); err != nil {
		return fmt.Errorf("character: send trigger: %w", err)
	}
	if c.onTrigger != nil {
		c.onTrigger(trigger)
	}
	return nil
}

// StartListening opens the microphone and streams captured audio into the
// session. It fails with [capture.ErrNoCaptureDevice] before any network work
// when no input device exists.
func (c *Character) StartListening() error {
	if c.recorder == nil || !c.recorder.HasCaptureDevice() {
		return capture.ErrNoCaptureDevice
	}

	err := c.recorder.Start(func(pcm []byte) {
		if err := c.svc.SendAudio(context.Background(), c.SessionID(), pcm); err != nil {
			slog.Warn("capture chunk dropped",
				"character", c.id,
				"err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("character: start listening: %w", err)
	}
	return nil
}

// StopListening closes the microphone. No-op when not listening.
func (c *Character) StopListening() error {
	if c.recorder == nil {
		return nil
	}
	if err := c.recorder.Stop(); err != nil {
		return fmt.Errorf("character: stop listening: %w", err)
	}
	return nil
}

// InterruptSpeech cancels in-flight playback and discards everything queued.
// Idempotent; safe while playback is running.
func (c *Character) InterruptSpeech() {
	c.seq.Interrupt()
	c.queue.Clear()
}

// Talking reports whether the character is audibly speaking.
func (c *Character) Talking() bool { return c.seq.Talking() }

// PendingResponses returns the number of undecoded chunks in the queue.
func (c *Character) PendingResponses() int { return c.queue.Len() }

// OnTalkingChanged registers an observer for talking-state transitions.
func (c *Character) OnTalkingChanged(handler func(talking bool)) playback.Token {
	return c.seq.OnTalkingChanged(handler)
}

// OffTalkingChanged removes a talking-state observer.
func (c *Character) OffTalkingChanged(token playback.Token) {
	c.seq.OffTalkingChanged(token)
}

// OnResponseFinished registers an observer invoked when a response's final
// unit has been processed.
func (c *Character) OnResponseFinished(handler func()) playback.Token {
	return c.seq.OnResponseFinished(handler)
}

// OffResponseFinished removes a response-finished observer.
func (c *Character) OffResponseFinished(token playback.Token) {
	c.seq.OffResponseFinished(token)
}

// persist appends one conversation line to the transcript store, if any.
func (c *Character) persist(speaker, text string) {
	if c.store == nil || text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.Append(ctx, &transcript.Entry{
		SessionID:   c.SessionID(),
		CharacterID: c.id,
		Speaker:     speaker,
		Text:        text,
	})
	if err != nil {
		slog.Warn("transcript entry dropped",
			"character", c.id,
			"err", err)
	}
}

// Close stops the poll loop, the microphone, and playback. Idempotent.
func (c *Character) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	arbToken := c.arbToken
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.arb != nil && arbToken != "" {
		c.arb.Unsubscribe(arbToken)
	}
	if c.recorder != nil {
		_ = c.recorder.Stop()
	}
	return c.seq.Close()
}
