package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration with sensible defaults for local
// development. Network endpoints are left empty and must be provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Playback: PlaybackConfig{
			Encoding: EncodingWAV,
		},
		Capture: CaptureConfig{
			Enabled: true,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Config.Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Missing keys keep the values from [Default]; unknown keys are an error.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel))
	}

	if c.Dialogue.URL == "" {
		errs = append(errs, errors.New("dialogue.url must not be empty"))
	}
	if c.Dialogue.Breaker.MaxFailures < 0 {
		errs = append(errs, errors.New("dialogue.breaker.max_failures must not be negative"))
	}
	if c.Dialogue.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("dialogue.breaker.reset_timeout must not be negative"))
	}
	if c.Dialogue.Breaker.HalfOpenMax < 0 {
		errs = append(errs, errors.New("dialogue.breaker.half_open_max must not be negative"))
	}

	if t := c.Playback.TickInterval; t != 0 && (t < time.Millisecond || t > time.Second) {
		errs = append(errs, fmt.Errorf("playback.tick_interval %s must be between 1ms and 1s", t))
	}
	if c.Playback.MinFrameBytes < 0 {
		errs = append(errs, errors.New("playback.min_frame_bytes must not be negative"))
	}
	if !c.Playback.Encoding.IsValid() {
		errs = append(errs, fmt.Errorf("playback.encoding %q is not one of wav, opus", c.Playback.Encoding))
	}
	if c.Playback.SampleRate < 0 {
		errs = append(errs, errors.New("playback.sample_rate must not be negative"))
	}
	if ch := c.Playback.Channels; ch < 0 || ch > 2 {
		errs = append(errs, fmt.Errorf("playback.channels %d must be 0, 1, or 2", ch))
	}

	if c.Capture.SampleRate < 0 {
		errs = append(errs, errors.New("capture.sample_rate must not be negative"))
	}

	if len(c.Characters) == 0 {
		slog.Warn("config: no characters defined, the server will idle")
	}
	seen := make(map[string]bool, len(c.Characters))
	for i, ch := range c.Characters {
		if ch.ID == "" {
			errs = append(errs, fmt.Errorf("characters[%d].id must not be empty", i))
			continue
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Errorf("characters[%d]: duplicate id %q", i, ch.ID))
		}
		seen[ch.ID] = true
		if ch.Name == "" {
			errs = append(errs, fmt.Errorf("characters[%d] (%s): name must not be empty", i, ch.ID))
		}
	}

	if c.Transcripts.PostgresDSN == "" {
		slog.Warn("config: transcripts.postgres_dsn not set, transcripts stay in memory")
	}

	return errors.Join(errs...)
}
