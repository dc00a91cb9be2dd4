// Package native plays stems through the host audio device.
package native

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	ebaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/stemsync/internal/audio"
	"github.com/satindergrewal/stemsync/internal/audio/codec"
	"github.com/satindergrewal/stemsync/internal/engine"
	"github.com/satindergrewal/stemsync/internal/stem"
)

var (
	contextOnce  sync.Once
	audioContext *ebaudio.Context
)

// sharedContext returns the process-wide audio context. Ebiten allows only
// one per process.
func sharedContext() *ebaudio.Context {
	contextOnce.Do(func() {
		audioContext = ebaudio.CurrentContext()
		if audioContext == nil {
			audioContext = ebaudio.NewContext(audio.SampleRate)
		}
	})
	return audioContext
}

// player is the part of *ebaudio.Player the transport drives.
type player interface {
	Play()
	Pause()
	IsPlaying() bool
	Position() time.Duration
	SetPosition(time.Duration) error
	SetVolume(float64)
	Close() error
}

// Transport is one stem decoded into memory and played by its own player.
type Transport struct {
	p    player
	rate *audio.RateReader
}

// Opener returns an engine.Opener that fetches each stem source (HTTP URL or
// file path), decodes it and prepares a paused player.
func Opener(ctx context.Context, client *http.Client, logger zerolog.Logger) engine.Opener {
	if client == nil {
		client = http.DefaultClient
	}
	logger = logger.With().Str("component", "native").Logger()

	return func(s *stem.Stem) (engine.Transport, error) {
		start := time.Now()
		data, err := Load(ctx, client, s.Source)
		if err != nil {
			return nil, err
		}
		pcm, err := codec.Decode(ctx, s.Source, data)
		if err != nil {
			return nil, err
		}

		rr := audio.NewRateReader(pcm)
		p, err := sharedContext().NewPlayer(rr)
		if err != nil {
			return nil, fmt.Errorf("player for %s: %w", s.ID, err)
		}
		logger.Debug().Str("stem", s.ID).Int("bytes", len(data)).Dur("took", time.Since(start)).Msg("Stem loaded")
		return newTransport(p, rr), nil
	}
}

func newTransport(p player, rr *audio.RateReader) *Transport {
	return &Transport{p: p, rate: rr}
}

// Load reads a stem source from an http(s) URL or the local filesystem.
func Load(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: HTTP %d", source, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return data, nil
}

// Play resumes the player. The device never refuses, so done is called
// immediately.
func (t *Transport) Play(done func(error)) {
	t.p.Play()
	if done != nil {
		done(nil)
	}
}

func (t *Transport) Pause() { t.p.Pause() }

func (t *Transport) Paused() bool { return !t.p.IsPlaying() }

// Position is the source position: what the player has emitted plus the
// frames the rate reader skipped or repeated since the last seek.
func (t *Transport) Position() time.Duration {
	return t.p.Position() + t.rate.Skew()
}

func (t *Transport) Seek(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	return t.p.SetPosition(pos)
}

func (t *Transport) SetVolume(gain float64) {
	t.p.SetVolume(audio.ClampGain(gain))
}

func (t *Transport) SetRate(rate float64) error {
	return t.rate.SetRate(rate)
}

func (t *Transport) Close() error {
	return t.p.Close()
}
