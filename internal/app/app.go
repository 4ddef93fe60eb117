// Package app wires all Parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run bootstraps the characters and serves the operational HTTP
// endpoints, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithDialogueService, WithRecorder, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tavernworks/parley/internal/capture"
	"github.com/tavernworks/parley/internal/character"
	"github.com/tavernworks/parley/internal/character/arbiter"
	"github.com/tavernworks/parley/internal/config"
	"github.com/tavernworks/parley/internal/dialogue"
	"github.com/tavernworks/parley/internal/health"
	"github.com/tavernworks/parley/internal/observe"
	"github.com/tavernworks/parley/internal/resilience"
	"github.com/tavernworks/parley/internal/transcript"
	"github.com/tavernworks/parley/pkg/audio"
	"github.com/tavernworks/parley/pkg/audio/miniaudio"
	"github.com/tavernworks/parley/pkg/response"
)

// shutdownTimeout bounds the HTTP server drain during Shutdown.
const shutdownTimeout = 10 * time.Second

// PlayerFactory builds one audio output per character.
type PlayerFactory func(format audio.Format) (audio.Player, error)

// App owns all subsystem lifetimes and orchestrates the Parley voice NPC
// pipeline.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	svc        dialogue.Service
	store      transcript.Store
	pool       *pgxpool.Pool
	arb        *arbiter.ActiveSpeakerArbiter
	detector   *arbiter.AddressDetector
	recorder   capture.Recorder
	newPlayer  PlayerFactory
	characters map[string]*character.Character
	order      []string

	// sessions maps bootstrapped session IDs to their characters. Filled
	// during Run as characters come up.
	mu       sync.RWMutex
	sessions map[string]*character.Character

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialogueService injects a dialogue service instead of dialling the
// configured endpoint.
func WithDialogueService(s dialogue.Service) Option {
	return func(a *App) { a.svc = s }
}

// WithTranscriptStore injects a transcript store instead of creating one from
// config.
func WithTranscriptStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecorder injects a capture device instead of opening the system
// microphone.
func WithRecorder(r capture.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithPlayerFactory injects an audio output factory instead of opening real
// playback devices.
func WithPlayerFactory(f PlayerFactory) Option {
	return func(a *App) { a.newPlayer = f }
}

// WithMetrics injects a metrics instance instead of using the process-wide
// default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: the dialogue client,
// the transcript store, the shared microphone, the active-speaker arbiter,
// and one session controller per configured character.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		characters: make(map[string]*character.Character),
		sessions:   make(map[string]*character.Character),
		arb:        arbiter.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.newPlayer == nil {
		a.newPlayer = func(format audio.Format) (audio.Player, error) {
			return miniaudio.NewPlayer(format)
		}
	}

	a.initDialogue()
	if err := a.initTranscripts(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init transcripts: %w", err)
	}
	if err := a.initCapture(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	if err := a.initCharacters(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init characters: %w", err)
	}

	// Route incoming chunks to the owning character by session ID.
	a.svc.OnChunk(a.routeChunk)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDialogue creates the dialogue client if one wasn't injected.
func (a *App) initDialogue() {
	if a.svc != nil {
		return
	}

	var opts []dialogue.Option
	if a.cfg.Dialogue.APIKey != "" {
		opts = append(opts, dialogue.WithAPIKey(a.cfg.Dialogue.APIKey))
	}
	if a.cfg.Dialogue.RejectUnbound {
		opts = append(opts, dialogue.WithRejectUnbound(true))
	}
	voices := make(map[string]string, len(a.cfg.Characters))
	for _, cc := range a.cfg.Characters {
		if cc.Voice != "" {
			voices[cc.ID] = cc.Voice
		}
	}
	if len(voices) > 0 {
		opts = append(opts, dialogue.WithVoices(voices))
	}
	if b := a.cfg.Dialogue.Breaker; b.MaxFailures > 0 || b.ResetTimeout > 0 || b.HalfOpenMax > 0 {
		opts = append(opts, dialogue.WithBreakerConfig(resilience.CircuitBreakerConfig{
			Name:         "dialogue",
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout,
			HalfOpenMax:  b.HalfOpenMax,
		}))
	}

	client := dialogue.NewClient(a.cfg.Dialogue.URL, opts...)
	a.svc = client
	a.closers = append(a.closers, client.Close)
}

// initTranscripts connects the PostgreSQL store, or falls back to the
// in-memory store when no DSN is configured.
func (a *App) initTranscripts(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Transcripts.PostgresDSN
	if dsn == "" {
		a.store = transcript.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	store := transcript.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("migrate transcripts: %w", err)
	}

	a.pool = pool
	a.store = store
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

// initCapture opens the shared microphone. All characters share one capture
// device; at most one listens at a time, steered by the address detector.
func (a *App) initCapture() error {
	if a.recorder != nil || !a.cfg.Capture.Enabled {
		return nil
	}

	rec, err := capture.NewDeviceRecorder(a.cfg.Capture.SampleRate)
	if err != nil {
		return err
	}
	a.recorder = rec
	a.closers = append(a.closers, rec.Close)
	return nil
}

// initCharacters builds a session controller per configured character and the
// address detector over their names.
func (a *App) initCharacters() error {
	decoderOpts := a.decoderOptions()
	format := a.playbackFormat()

	names := make(map[string]string, len(a.cfg.Characters))
	for _, cc := range a.cfg.Characters {
		player, err := a.newPlayer(format)
		if err != nil {
			return fmt.Errorf("open playback device for %q: %w", cc.ID, err)
		}

		ch, err := character.New(character.Config{
			ID:             cc.ID,
			Name:           cc.Name,
			Service:        a.svc,
			Recorder:       a.recorder,
			Player:         player,
			Arbiter:        a.arb,
			Transcripts:    a.store,
			PollInterval:   a.cfg.Playback.TickInterval,
			DecoderOptions: decoderOpts,
			Metrics:        a.metrics,
		})
		if err != nil {
			_ = player.Close()
			return err
		}

		// Talking transitions strictly alternate and observers run on the
		// sequencer goroutine, so spokeAt needs no lock.
		var spokeAt time.Time
		ch.OnTalkingChanged(func(talking bool) {
			ctx := context.Background()
			if talking {
				spokeAt = time.Now()
				a.metrics.TalkingCharacters.Add(ctx, 1)
				return
			}
			a.metrics.TalkingCharacters.Add(ctx, -1)
			if !spokeAt.IsZero() {
				a.metrics.PlaybackDuration.Record(ctx, time.Since(spokeAt).Seconds())
			}
		})

		a.characters[cc.ID] = ch
		a.order = append(a.order, cc.ID)
		names[cc.ID] = cc.Name
		a.closers = append(a.closers, ch.Close)
		slog.Info("configured character", "id", cc.ID, "name", cc.Name)
	}

	a.detector = arbiter.NewAddressDetector(names)
	return nil
}

// decoderOptions translates playback config into decoder options.
func (a *App) decoderOptions() []response.DecoderOption {
	var opts []response.DecoderOption
	if n := a.cfg.Playback.MinFrameBytes; n > 0 {
		opts = append(opts, response.WithMinFrameBytes(n))
	}
	if e := a.cfg.Playback.Encoding; e != "" {
		opts = append(opts, response.WithEncoding(response.Encoding(e)))
	}
	return opts
}

// playbackFormat returns the output device format from config with defaults
// applied.
func (a *App) playbackFormat() audio.Format {
	f := audio.Format{
		SampleRate: a.cfg.Playback.SampleRate,
		Channels:   a.cfg.Playback.Channels,
	}
	if f.SampleRate == 0 {
		f.SampleRate = 48000
	}
	if f.Channels == 0 {
		f.Channels = 2
	}
	return f
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run bootstraps all characters against the dialogue service, starts the
// operational HTTP server, and blocks until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Bootstrap characters sequentially so session mappings exist before
	// the first chunk can arrive.
	for _, id := range a.order {
		ch := a.characters[id]
		start := time.Now()
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.metrics.BootstrapDuration.Record(ctx, time.Since(start).Seconds())
		a.metrics.ActiveCharacters.Add(ctx, 1)

		a.mu.Lock()
		a.sessions[ch.SessionID()] = ch
		a.mu.Unlock()
		slog.Info("character online", "id", ch.ID(), "session_id", ch.SessionID())
	}

	srv := a.httpServer()
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// httpServer builds the operational HTTP endpoint: Prometheus metrics plus
// liveness and readiness probes, wrapped in the tracing middleware.
func (a *App) httpServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	var checkers []health.Checker
	if p, ok := a.svc.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("dialogue", p))
	}
	checkers = append(checkers, health.PingChecker("transcripts", a.store))
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// ─── Operations ──────────────────────────────────────────────────────────────

// routeChunk delivers an incoming response chunk to the character that owns
// its session. Chunks for unknown sessions are dropped with a warning.
func (a *App) routeChunk(sessionID string, chunk *response.Chunk) {
	a.mu.RLock()
	ch, ok := a.sessions[sessionID]
	a.mu.RUnlock()

	if !ok {
		slog.Warn("chunk for unknown session", "session_id", sessionID)
		return
	}
	a.metrics.RecordChunkReceived(context.Background(), ch.ID())
	ch.EnqueueResponse(chunk)
}

// Say routes a line of player speech to the addressed character and returns
// that character's ID. Address resolution falls back to the current active
// speaker, so follow-up lines stick to the same character.
func (a *App) Say(ctx context.Context, text string) (string, error) {
	id, err := a.detector.Detect(text, a.arb.Active())
	if err != nil {
		return "", fmt.Errorf("app: say: %w", err)
	}
	ch := a.characters[id]
	if err := ch.SendText(ctx, text); err != nil {
		a.metrics.RecordSendFailed(ctx, id, "text")
		return "", err
	}
	return id, nil
}

// Listen starts microphone capture for the named character. Any other
// character currently listening is stopped first; the shared device only
// feeds one session at a time.
func (a *App) Listen(characterID string) error {
	ch, ok := a.characters[characterID]
	if !ok {
		return fmt.Errorf("app: listen: unknown character %q", characterID)
	}

	for id, other := range a.characters {
		if id == characterID {
			continue
		}
		if err := other.StopListening(); err != nil {
			slog.Warn("stop listening", "id", id, "err", err)
		}
	}
	return ch.StartListening()
}

// Trigger sends a scene trigger to the named character.
func (a *App) Trigger(ctx context.Context, characterID, trigger string) error {
	ch, ok := a.characters[characterID]
	if !ok {
		return fmt.Errorf("app: trigger: unknown character %q", characterID)
	}
	if err := ch.SendTrigger(ctx, trigger); err != nil {
		a.metrics.RecordSendFailed(ctx, characterID, "trigger")
		return err
	}
	return nil
}

// Interrupt silences the named character, or every character when id is
// empty.
func (a *App) Interrupt(characterID string) {
	if characterID == "" {
		for _, ch := range a.characters {
			ch.InterruptSpeech()
			a.metrics.RecordInterrupt(context.Background(), ch.ID())
		}
		return
	}
	if ch, ok := a.characters[characterID]; ok {
		ch.InterruptSpeech()
		a.metrics.RecordInterrupt(context.Background(), characterID)
	}
}

// Character returns the session controller for id, or nil when unknown.
func (a *App) Character(id string) *character.Character {
	return a.characters[id]
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. Safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers unwinds partially-built state when New fails midway.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
