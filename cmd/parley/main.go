// Command parley is the main entry point for the Parley voice NPC server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tavernworks/parley/internal/app"
	"github.com/tavernworks/parley/internal/config"
	"github.com/tavernworks/parley/internal/observe"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	console := flag.Bool("console", false, "read player lines from stdin")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("parley starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parley",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config hot reload (log level only) ────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.CharactersChanged {
			slog.Warn("character roster changed on disk, restart to apply",
				"changes", len(d.CharacterChanges))
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *console {
		go consoleLoop(ctx, application)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Console ───────────────────────────────────────────────────────────────────

// consoleLoop reads player input from stdin. Plain lines are routed to the
// addressed character; a few slash commands drive the rest of the surface:
//
//	/listen <character-id>        start microphone capture for a character
//	/trigger <character-id> <t>   fire a scene trigger
//	/interrupt [character-id]     silence one or all characters
func consoleLoop(ctx context.Context, a *app.App) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "/listen "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/listen "))
			if err := a.Listen(id); err != nil {
				fmt.Fprintf(os.Stderr, "listen: %v\n", err)
			}

		case strings.HasPrefix(line, "/trigger "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/trigger "))
			id, trigger, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Fprintln(os.Stderr, "usage: /trigger <character-id> <trigger>")
				continue
			}
			if err := a.Trigger(ctx, id, strings.TrimSpace(trigger)); err != nil {
				fmt.Fprintf(os.Stderr, "trigger: %v\n", err)
			}

		case strings.HasPrefix(line, "/interrupt"):
			a.Interrupt(strings.TrimSpace(strings.TrimPrefix(line, "/interrupt")))

		default:
			id, err := a.Say(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "say: %v\n", err)
				continue
			}
			fmt.Printf("→ %s\n", id)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parley — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Dialogue", trimValue(cfg.Dialogue.URL))
	printField("Encoding", string(cfg.Playback.Encoding))
	if cfg.Capture.Enabled {
		printField("Microphone", "enabled")
	} else {
		printField("Microphone", "(disabled)")
	}
	if cfg.Transcripts.PostgresDSN != "" {
		printField("Transcripts", "postgres")
	} else {
		printField("Transcripts", "in-memory")
	}
	fmt.Printf("║  Characters      : %-19d ║\n", len(cfg.Characters))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, trimValue(value))
}

func trimValue(v string) string {
	if len(v) > 19 {
		return v[:16] + "…"
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
