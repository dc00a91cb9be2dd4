package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"STEMSYNC_MANIFEST", "STEMSYNC_WATCH", "STEMSYNC_PORT",
	"STEMSYNC_FADE_MS", "STEMSYNC_FADE_STEPS", "STEMSYNC_FADE_CURVE",
	"STEMSYNC_RESYNC_MS", "STEMSYNC_SMALL_TOLERANCE_MS",
	"STEMSYNC_SEEK_TOLERANCE_MS", "STEMSYNC_SMOOTHING", "STEMSYNC_NUDGE",
	"STEMSYNC_NUDGE_MS", "STEMSYNC_LOG_LEVEL", "STEMSYNC_LOG_FORMAT",
}

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Manifest != "stems.yaml" {
		t.Errorf("Manifest = %q, want default", cfg.Manifest)
	}
	if !cfg.Watch {
		t.Error("Watch = false, want true")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.FadeDuration != 300*time.Millisecond {
		t.Errorf("FadeDuration = %v, want 300ms", cfg.FadeDuration)
	}
	if cfg.FadeSteps != 30 {
		t.Errorf("FadeSteps = %d, want 30", cfg.FadeSteps)
	}
	if cfg.FadeCurve != "linear" {
		t.Errorf("FadeCurve = %q, want linear", cfg.FadeCurve)
	}
	if cfg.ResyncInterval != 800*time.Millisecond {
		t.Errorf("ResyncInterval = %v, want 800ms", cfg.ResyncInterval)
	}
	if cfg.SmallTolerance != 50*time.Millisecond {
		t.Errorf("SmallTolerance = %v, want 50ms", cfg.SmallTolerance)
	}
	if cfg.SeekTolerance != 250*time.Millisecond {
		t.Errorf("SeekTolerance = %v, want 250ms", cfg.SeekTolerance)
	}
	if cfg.Smoothing != 0.25 {
		t.Errorf("Smoothing = %f, want 0.25", cfg.Smoothing)
	}
	if cfg.NudgeRate != 0.02 {
		t.Errorf("NudgeRate = %f, want 0.02", cfg.NudgeRate)
	}
	if cfg.NudgeDuration != 600*time.Millisecond {
		t.Errorf("NudgeDuration = %v, want 600ms", cfg.NudgeDuration)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log = %q/%q, want info/console", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STEMSYNC_MANIFEST", "/srv/songs.yml")
	t.Setenv("STEMSYNC_WATCH", "false")
	t.Setenv("STEMSYNC_PORT", "3000")
	t.Setenv("STEMSYNC_FADE_MS", "500")
	t.Setenv("STEMSYNC_FADE_STEPS", "50")
	t.Setenv("STEMSYNC_FADE_CURVE", "smooth")
	t.Setenv("STEMSYNC_RESYNC_MS", "1000")
	t.Setenv("STEMSYNC_SMALL_TOLERANCE_MS", "40")
	t.Setenv("STEMSYNC_SEEK_TOLERANCE_MS", "300")
	t.Setenv("STEMSYNC_SMOOTHING", "0.5")
	t.Setenv("STEMSYNC_NUDGE", "0.03")
	t.Setenv("STEMSYNC_NUDGE_MS", "400")
	t.Setenv("STEMSYNC_LOG_LEVEL", "debug")
	t.Setenv("STEMSYNC_LOG_FORMAT", "json")

	cfg := Load()

	if cfg.Manifest != "/srv/songs.yml" {
		t.Errorf("Manifest = %q, want env override", cfg.Manifest)
	}
	if cfg.Watch {
		t.Error("Watch = true, want false")
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.FadeDuration != 500*time.Millisecond {
		t.Errorf("FadeDuration = %v, want 500ms", cfg.FadeDuration)
	}
	if cfg.FadeSteps != 50 {
		t.Errorf("FadeSteps = %d, want 50", cfg.FadeSteps)
	}
	if cfg.FadeCurve != "smooth" {
		t.Errorf("FadeCurve = %q, want smooth", cfg.FadeCurve)
	}
	if cfg.ResyncInterval != time.Second {
		t.Errorf("ResyncInterval = %v, want 1s", cfg.ResyncInterval)
	}
	if cfg.SmallTolerance != 40*time.Millisecond {
		t.Errorf("SmallTolerance = %v, want 40ms", cfg.SmallTolerance)
	}
	if cfg.SeekTolerance != 300*time.Millisecond {
		t.Errorf("SeekTolerance = %v, want 300ms", cfg.SeekTolerance)
	}
	if cfg.Smoothing != 0.5 {
		t.Errorf("Smoothing = %f, want 0.5", cfg.Smoothing)
	}
	if cfg.NudgeRate != 0.03 {
		t.Errorf("NudgeRate = %f, want 0.03", cfg.NudgeRate)
	}
	if cfg.NudgeDuration != 400*time.Millisecond {
		t.Errorf("NudgeDuration = %v, want 400ms", cfg.NudgeDuration)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("STEMSYNC_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("STEMSYNC_WATCH", "maybe")
	if cfg := Load(); !cfg.Watch {
		t.Error("Invalid bool env should fallback to true")
	}
}

func TestEngineOptions(t *testing.T) {
	for _, k := range envVars {
		os.Unsetenv(k)
	}
	t.Setenv("STEMSYNC_FADE_CURVE", "smooth")
	opts := Load().EngineOptions()

	if opts.FadeDuration != 300*time.Millisecond || opts.FadeSteps != 30 {
		t.Errorf("fade = %v/%d, want 300ms/30", opts.FadeDuration, opts.FadeSteps)
	}
	if opts.FadeCurve == nil {
		t.Fatal("FadeCurve not set")
	}
	// Smoothstep eases in: a quarter of the way is below linear.
	if got := opts.FadeCurve(0.25); got >= 0.25 {
		t.Errorf("FadeCurve(0.25) = %f, want smoothstep below 0.25", got)
	}
	if opts.ResyncInterval != 800*time.Millisecond {
		t.Errorf("ResyncInterval = %v, want 800ms", opts.ResyncInterval)
	}
	if opts.Now != nil {
		t.Error("Now should be left to the engine default")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("stem", "t-0").Msg("Play failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 (info filtered): %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["level"] != "warn" || rec["stem"] != "t-0" || rec["message"] != "Play failed" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLoggerBadLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{LogLevel: "loud", LogFormat: "json"}.NewLogger(&buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q, want info level", out)
	}
}
