package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/satindergrewal/stemsync/internal/notify"
)

// EnsureStarted starts every stem transport, muted, the first time it is
// called in a session. Later calls do nothing until StopAll or a song switch
// ends the session.
func (e *Engine) EnsureStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ensureStartedLocked()
}

// PlayAll resumes every transport without touching position or gain.
func (e *Engine) PlayAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ensureStartedLocked()
	e.playAllLocked()
}

// PauseAll suspends every transport without touching position or gain.
func (e *Engine) PauseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, t := range e.tracks {
		e.pauseLocked(t)
	}
	e.state.Playing = false
	e.logger.Info().Msg("Paused")
}

// StopAll silences and rewinds every stem, turns them all off and forgets
// the current song.
func (e *Engine) StopAll() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.resetLocked()
	e.state.CurrentSong = ""
	e.updateResyncLocked()
	events := []notify.Event{
		notify.SongChanged{SongID: nil},
		e.stemsChangedLocked(),
	}
	e.mu.Unlock()

	e.logger.Info().Msg("Stopped")
	e.bus.Publish(events...)
}

// SeekAll moves every stem to pos, as a progress bar scrub does. Gains,
// toggle states and play/pause are untouched; drift estimates start over
// since the stems are aligned again.
func (e *Engine) SeekAll(pos time.Duration) {
	if pos < 0 {
		pos = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, t := range e.tracks {
		e.guard(t, "seek", func() {
			if err := t.tr.Seek(pos); err != nil {
				e.logger.Debug().Err(err).Str("stem", t.stem.ID).Dur("position", pos).Msg("Seek failed")
			}
			e.clearDrift(t)
		})
	}
	e.logger.Info().Dur("position", pos).Msg("Seeked")
}

func (e *Engine) ensureStartedLocked() {
	if e.state.Started {
		return
	}
	e.state.Started = true
	e.state.Session = uuid.NewString()
	e.logger.Info().Str("session", e.state.Session).Msg("Starting stem transports")
	e.playAllLocked()
}

func (e *Engine) playAllLocked() {
	for _, t := range e.tracks {
		if t.tr.Paused() {
			e.playLocked(t)
		}
	}
	e.state.Playing = true
}

// playLocked asks one transport to play. Failures only affect that stem; the
// next toggle of the stem retries. A request already in flight for the
// current generation is not repeated.
func (e *Engine) playLocked(t *track) {
	gen := t.generation.Load()
	if t.pending.Load() == gen+1 {
		return
	}
	t.pending.Store(gen + 1)
	logger := e.logger.With().Str("stem", t.stem.ID).Str("song", t.stem.SongID).Logger()
	t.tr.Play(func(err error) {
		// A pause since the request makes its result stale.
		current := t.pending.CompareAndSwap(gen+1, 0)
		if err == nil {
			return
		}
		if current {
			logger.Warn().Err(err).Msg("Play failed")
		} else {
			logger.Debug().Err(err).Msg("Stale play request failed")
		}
	})
}

// pauseLocked pauses one transport and ends its play generation, so a
// request interrupted by the pause does not block the next one.
func (e *Engine) pauseLocked(t *track) {
	t.tr.Pause()
	t.generation.Add(1)
}

// resetLocked is the hard reset shared by StopAll and song switches: every
// stem paused, rewound, muted and off, with fades and drift state dropped.
func (e *Engine) resetLocked() {
	for _, t := range e.tracks {
		e.guard(t, "reset", func() {
			e.pauseLocked(t)
			if err := t.tr.Seek(0); err != nil {
				e.logger.Debug().Err(err).Str("stem", t.stem.ID).Msg("Rewind failed")
			}
			t.fade = nil
			t.state = Off
			e.setGain(t, 0)
			e.clearDrift(t)
		})
	}
	e.state.Started = false
	e.state.Playing = false
}

// StemStatus is a point-in-time view of one stem.
type StemStatus struct {
	ID       string         `json:"id"`
	SongID   string         `json:"songId,omitempty"`
	Label    string         `json:"label"`
	Handle   string         `json:"handle,omitempty"`
	Disabled bool           `json:"disabled"`
	State    string         `json:"state"`
	Gain     float64        `json:"gain"`
	Rate     float64        `json:"rate"`
	Position time.Duration  `json:"position"`
	Drift    *time.Duration `json:"drift,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Started     bool         `json:"started"`
	Playing     bool         `json:"playing"`
	CurrentSong *string      `json:"currentSong"`
	Session     string       `json:"session,omitempty"`
	Resync      bool         `json:"resync"`
	Stems       []StemStatus `json:"stems"`
}

// Status reports every registered stem, disabled ones included.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Started:     e.state.Started,
		Playing:     e.state.Playing,
		CurrentSong: notify.SongRef(e.state.CurrentSong),
		Session:     e.state.Session,
		Resync:      e.state.Resync,
	}
	for _, s := range e.reg.All() {
		ss := StemStatus{
			ID:       s.ID,
			SongID:   s.SongID,
			Label:    s.Label,
			Handle:   s.Handle,
			Disabled: s.Disabled,
			State:    Off.String(),
		}
		if t, ok := e.byID[s.ID]; ok {
			ss.State = t.state.String()
			ss.Gain = t.gain
			ss.Rate = t.rate
			if !e.closed {
				ss.Position = t.tr.Position()
			}
			if t.driftValid {
				d := t.drift
				ss.Drift = &d
			}
		}
		st.Stems = append(st.Stems, ss)
	}
	return st
}
