package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/satindergrewal/stemsync/internal/notify"
	"github.com/satindergrewal/stemsync/internal/stem"
)

// fakeTransport is an in-memory transport whose position advances with a
// simulated clock at its playback rate.
type fakeTransport struct {
	mu  sync.Mutex
	id  string
	log *callLog

	paused    bool
	pos       time.Duration
	volume    float64
	rate      float64
	playCalls int
	seeks     []time.Duration
	closed    bool

	failPlay      error
	failSeek      error
	panicPosition bool

	// With deferPlay, Play leaves its result pending like a browser play()
	// promise; Pause rejects pending requests on the next settle.
	deferPlay bool
	pending   []func(error)
	queued    []func()
}

func newFakeTransport(id string, log *callLog) *fakeTransport {
	return &fakeTransport{id: id, log: log, paused: true, rate: 1}
}

func (f *fakeTransport) Play(done func(error)) {
	f.mu.Lock()
	f.playCalls++
	err := f.failPlay
	if err == nil {
		f.paused = false
	}
	if f.deferPlay {
		f.pending = append(f.pending, func(error) { done(err) })
		f.mu.Unlock()
		f.log.add(f.id, "play")
		return
	}
	f.mu.Unlock()
	f.log.add(f.id, "play")
	done(err)
}

func (f *fakeTransport) Pause() {
	f.mu.Lock()
	f.paused = true
	for _, done := range f.pending {
		done := done
		f.queued = append(f.queued, func() { done(errAborted) })
	}
	f.pending = nil
	f.mu.Unlock()
	f.log.add(f.id, "pause")
}

// settle delivers queued rejections, then resolves pending requests.
func (f *fakeTransport) settle() {
	f.mu.Lock()
	queued, pending := f.queued, f.pending
	f.queued, f.pending = nil, nil
	f.mu.Unlock()
	for _, fn := range queued {
		fn()
	}
	for _, done := range pending {
		done(nil)
	}
}

func (f *fakeTransport) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeTransport) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicPosition {
		panic("position unavailable")
	}
	return f.pos
}

func (f *fakeTransport) Seek(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSeek != nil {
		return f.failSeek
	}
	f.pos = pos
	f.seeks = append(f.seeks, pos)
	f.log.add(f.id, fmt.Sprintf("seek %v", pos))
	return nil
}

func (f *fakeTransport) SetVolume(g float64) {
	f.mu.Lock()
	f.volume = g
	f.mu.Unlock()
	f.log.add(f.id, fmt.Sprintf("volume %.3f", g))
}

func (f *fakeTransport) SetRate(r float64) error {
	f.mu.Lock()
	f.rate = r
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		f.pos += time.Duration(float64(d) * f.rate)
	}
}

func (f *fakeTransport) snapshot() (paused bool, pos time.Duration, volume, rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.pos, f.volume, f.rate
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(id, call string) {
	l.mu.Lock()
	l.calls = append(l.calls, id+": "+call)
	l.mu.Unlock()
}

func (l *callLog) reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// harness wires an engine to fake transports and a manual clock.
type harness struct {
	t      *testing.T
	e      *Engine
	now    time.Time
	fakes  map[string]*fakeTransport
	log    *callLog
	events []notify.Event
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, configs []stem.Config) *harness {
	t.Helper()
	h := &harness{t: t, now: epoch, fakes: map[string]*fakeTransport{}, log: &callLog{}}

	reg := stem.Build(configs, zerolog.Nop())
	open := func(s *stem.Stem) (Transport, error) {
		f := newFakeTransport(s.ID, h.log)
		h.fakes[s.ID] = f
		return f, nil
	}
	e, err := New(reg, open, Options{Now: func() time.Time { return h.now }}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.e = e
	e.Subscribe(func(ev notify.Event) { h.events = append(h.events, ev) })
	return h
}

// twoSongs is the default fixture: song A with a1, a2; song B with b1, b2.
func twoSongs() []stem.Config {
	return []stem.Config{
		{ID: "a1", Source: "A-bass.mp3", SongID: "A"},
		{ID: "a2", Source: "A-drums.mp3", SongID: "A"},
		{ID: "b1", Source: "B-keys.mp3", SongID: "B"},
		{ID: "b2", Source: "B-vox.mp3", SongID: "B"},
	}
}

// advance moves the clock in tick-sized steps, moving fake transports first.
func (h *harness) advance(d time.Duration) {
	step := 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		for _, f := range h.fakes {
			f.advance(step)
		}
		h.now = h.now.Add(step)
		h.e.tick(h.now)
	}
}

// cycle advances one resync interval and runs a drift cycle.
func (h *harness) cycle() {
	h.advance(h.e.opts.ResyncInterval)
	h.e.resync(h.now)
}

func (h *harness) toggle(id string) {
	h.t.Helper()
	if err := h.e.ToggleStem(id); err != nil {
		h.t.Fatalf("ToggleStem(%s): %v", id, err)
	}
}

func (h *harness) track(id string) *track {
	h.t.Helper()
	tr, ok := h.e.byID[id]
	if !ok {
		h.t.Fatalf("no track %s", id)
	}
	return tr
}

var (
	errAutoplay = errors.New("autoplay blocked")
	errAborted  = errors.New("play() interrupted by pause()")
)
