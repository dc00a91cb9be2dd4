// Package engine keeps the stems of a song phase-aligned while the listener
// toggles them on and off, and guarantees that only one song is audible.
//
// All engine state lives behind one mutex. Public operations mutate it,
// leave every invariant intact and return immediately; Run drives the timed
// work (fade steps, rate restores, drift cycles) against the same lock.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/satindergrewal/stemsync/internal/audio"
	"github.com/satindergrewal/stemsync/internal/notify"
	"github.com/satindergrewal/stemsync/internal/stem"
)

var (
	// ErrUnavailable is returned by New when no stem can be played.
	ErrUnavailable = errors.New("engine unavailable: no usable stems")
	// ErrUnknownStem is returned for ids missing from the registry.
	ErrUnknownStem = errors.New("unknown stem")
	// ErrStemDisabled is returned for stems whose source could not be resolved.
	ErrStemDisabled = errors.New("stem disabled")
)

// Transport is one stem's playback device: an audio element in the browser,
// an audio player on the desktop.
type Transport interface {
	// Play starts or resumes playback. It must not block; done is called
	// once the request succeeds or fails, possibly before Play returns.
	Play(done func(error))
	Pause()
	Paused() bool
	Position() time.Duration
	Seek(pos time.Duration) error
	SetVolume(gain float64)
	SetRate(rate float64) error
	Close() error
}

// Opener resolves a stem's source into a transport.
type Opener func(s *stem.Stem) (Transport, error)

// Options tunes fades and drift correction. Zero values take defaults.
type Options struct {
	FadeDuration   time.Duration // 300ms
	FadeSteps      int           // 30
	FadeCurve      audio.Curve   // linear
	ResyncInterval time.Duration // 800ms
	SmallTolerance time.Duration // 50ms, below this a stem counts as aligned
	SeekTolerance  time.Duration // 250ms, at or above this a stem is hard-seeked
	Smoothing      float64       // 0.25, EMA factor for drift samples
	NudgeRate      float64       // 0.02, playback-rate offset for moderate drift
	NudgeDuration  time.Duration // 600ms
	Now            func() time.Time
}

// DefaultOptions returns the tuning used when nothing is configured.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.FadeDuration <= 0 {
		o.FadeDuration = 300 * time.Millisecond
	}
	if o.FadeSteps <= 0 {
		o.FadeSteps = 30
	}
	if o.FadeCurve == nil {
		o.FadeCurve = audio.Linear
	}
	if o.ResyncInterval <= 0 {
		o.ResyncInterval = 800 * time.Millisecond
	}
	if o.SmallTolerance <= 0 {
		o.SmallTolerance = 50 * time.Millisecond
	}
	if o.SeekTolerance <= 0 {
		o.SeekTolerance = 250 * time.Millisecond
	}
	if o.Smoothing <= 0 || o.Smoothing > 1 {
		o.Smoothing = 0.25
	}
	if o.NudgeRate <= 0 || o.NudgeRate >= 0.5 {
		o.NudgeRate = 0.02
	}
	if o.NudgeDuration <= 0 {
		o.NudgeDuration = 600 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TickInterval is how often Run advances fades and timers.
func (o Options) TickInterval() time.Duration {
	o = o.withDefaults()
	if d := o.FadeDuration / time.Duration(o.FadeSteps); d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

// State is the engine-wide playback state.
type State struct {
	Started     bool   // transports have been started this session
	Playing     bool   // transports are not globally paused
	CurrentSong string // empty when no song is selected
	Session     string // regenerated each time Started becomes true
	Resync      bool   // drift loop subscribed
}

type track struct {
	stem  *stem.Stem
	tr    Transport
	state ToggleState
	gain  float64
	rate  float64
	fade  *fade

	drift      time.Duration // smoothed offset from the master
	driftValid bool
	restoreAt  time.Time // pending rate restore, zero when none

	// Play requests belong to a generation that every pause ends. pending
	// holds generation+1 of the request in flight, 0 when none.
	generation atomic.Uint64
	pending    atomic.Uint64
}

// Engine owns the stems of one page or manifest.
type Engine struct {
	opts     Options
	reg      *stem.Registry
	bus      *notify.Bus
	logger   zerolog.Logger
	resyncCh chan struct{}

	mu     sync.Mutex
	state  State
	tracks []*track
	byID   map[string]*track
	closed bool
}

// New opens a transport for every usable stem. Stems whose transport cannot
// be opened are disabled. Returns ErrUnavailable if nothing is left to play.
func New(reg *stem.Registry, open Opener, opts Options, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		opts:     opts.withDefaults(),
		reg:      reg,
		logger:   logger.With().Str("component", "engine").Logger(),
		resyncCh: make(chan struct{}, 1),
		byID:     make(map[string]*track),
	}
	e.bus = notify.NewBus(logger)

	for _, s := range reg.All() {
		if s.Disabled {
			continue
		}
		tr, err := open(s)
		if err != nil {
			e.logger.Warn().Err(err).Str("stem", s.ID).Str("source", s.Source).Msg("Stem source unavailable, disabling")
			reg.Disable(s.ID)
			continue
		}
		tr.SetVolume(0)
		t := &track{stem: s, tr: tr, rate: 1}
		e.tracks = append(e.tracks, t)
		e.byID[s.ID] = t
	}

	if len(e.tracks) == 0 {
		e.logger.Warn().Msg("No usable stems, engine unavailable")
		return nil, ErrUnavailable
	}

	e.logger.Info().Int("stems", len(e.tracks)).Strs("songs", reg.Songs()).Msg("Engine ready")
	return e, nil
}

// Registry returns the stems the engine was built from.
func (e *Engine) Registry() *stem.Registry {
	return e.reg
}

// Subscribe registers an observer for engine events.
func (e *Engine) Subscribe(fn func(notify.Event)) (cancel func()) {
	return e.bus.Subscribe(fn)
}

// State returns a copy of the engine-wide state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run drives fades, rate restores and drift correction. Blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	tick := time.NewTicker(e.opts.TickInterval())
	defer tick.Stop()

	var resync *time.Ticker
	var resyncC <-chan time.Time
	stopResync := func() {
		if resync != nil {
			resync.Stop()
			resync, resyncC = nil, nil
		}
	}
	defer stopResync()

	// Pick up a subscription made before Run started.
	e.signalResync()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			e.tick(e.opts.Now())
		case <-e.resyncCh:
			if e.State().Resync {
				if resync == nil {
					resync = time.NewTicker(e.opts.ResyncInterval)
					resyncC = resync.C
					e.logger.Debug().Msg("Drift correction started")
				}
			} else if resync != nil {
				stopResync()
				e.logger.Debug().Msg("Drift correction stopped")
			}
		case <-resyncC:
			e.resync(e.opts.Now())
		}
	}
}

// Close pauses and releases every transport. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, t := range e.tracks {
		e.pauseLocked(t)
		if err := t.tr.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.state = State{}
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// tick advances fades and due rate restores to now.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, t := range e.tracks {
		e.guard(t, "tick", func() {
			e.stepFade(t, now)
			if !t.restoreAt.IsZero() && !now.Before(t.restoreAt) {
				e.setRate(t, 1)
				t.restoreAt = time.Time{}
			}
		})
	}
}

// guard runs fn for one stem and keeps a panic from escaping the timer loop.
func (e *Engine) guard(t *track, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("stem", t.stem.ID).Str("op", op).Msg("Stem operation failed")
		}
	}()
	fn()
}

// signalResync wakes Run to re-evaluate the drift subscription.
func (e *Engine) signalResync() {
	select {
	case e.resyncCh <- struct{}{}:
	default:
	}
}

// updateResyncLocked recomputes whether the drift loop should run. Must be
// called with mu held.
func (e *Engine) updateResyncLocked() {
	active := false
	if e.state.CurrentSong != "" {
		for _, t := range e.tracks {
			if t.stem.SongID == e.state.CurrentSong && t.state.Active() {
				active = true
				break
			}
		}
	}
	if active != e.state.Resync {
		e.state.Resync = active
		e.signalResync()
	}
}

func (e *Engine) lookup(id string) (*track, error) {
	if t, ok := e.byID[id]; ok {
		return t, nil
	}
	if s, ok := e.reg.Get(id); ok && s.Disabled {
		return nil, ErrStemDisabled
	}
	return nil, ErrUnknownStem
}
