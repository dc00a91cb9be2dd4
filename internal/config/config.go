package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satindergrewal/stemsync/internal/audio"
	"github.com/satindergrewal/stemsync/internal/engine"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Stems
	Manifest string // YAML manifest path
	Watch    bool   // rebuild the engine when the manifest changes

	// Server
	Port int

	// Crossfades
	FadeDuration time.Duration
	FadeSteps    int
	FadeCurve    string // linear or smooth

	// Drift correction
	ResyncInterval time.Duration
	SmallTolerance time.Duration // offsets below this are left alone
	SeekTolerance  time.Duration // offsets at or above this are hard-seeked
	Smoothing      float64       // EMA factor for drift samples
	NudgeRate      float64       // playback-rate offset for moderate drift
	NudgeDuration  time.Duration

	// Logging
	LogLevel  string // zerolog level name
	LogFormat string // console or json
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Manifest: envStr("STEMSYNC_MANIFEST", "stems.yaml"),
		Watch:    envBool("STEMSYNC_WATCH", true),

		Port: envInt("STEMSYNC_PORT", 8080),

		FadeDuration: envMillis("STEMSYNC_FADE_MS", 300),
		FadeSteps:    envInt("STEMSYNC_FADE_STEPS", 30),
		FadeCurve:    envStr("STEMSYNC_FADE_CURVE", "linear"),

		ResyncInterval: envMillis("STEMSYNC_RESYNC_MS", 800),
		SmallTolerance: envMillis("STEMSYNC_SMALL_TOLERANCE_MS", 50),
		SeekTolerance:  envMillis("STEMSYNC_SEEK_TOLERANCE_MS", 250),
		Smoothing:      envFloat("STEMSYNC_SMOOTHING", 0.25),
		NudgeRate:      envFloat("STEMSYNC_NUDGE", 0.02),
		NudgeDuration:  envMillis("STEMSYNC_NUDGE_MS", 600),

		LogLevel:  envStr("STEMSYNC_LOG_LEVEL", "info"),
		LogFormat: envStr("STEMSYNC_LOG_FORMAT", "console"),
	}
}

// EngineOptions maps the tuning values onto engine options. Out-of-range
// values fall back to the engine defaults.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		FadeDuration:   c.FadeDuration,
		FadeSteps:      c.FadeSteps,
		FadeCurve:      audio.CurveByName(c.FadeCurve),
		ResyncInterval: c.ResyncInterval,
		SmallTolerance: c.SmallTolerance,
		SeekTolerance:  c.SeekTolerance,
		Smoothing:      c.Smoothing,
		NudgeRate:      c.NudgeRate,
		NudgeDuration:  c.NudgeDuration,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// envMillis reads a whole number of milliseconds.
func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
