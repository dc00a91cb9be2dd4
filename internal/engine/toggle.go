package engine

import (
	"github.com/satindergrewal/stemsync/internal/notify"
)

// ToggleState is where a stem is in its on/off cycle.
type ToggleState int

const (
	Off ToggleState = iota
	FadingIn
	On
	FadingOut
)

// String returns the state name.
func (s ToggleState) String() string {
	switch s {
	case Off:
		return "off"
	case FadingIn:
		return "fading-in"
	case On:
		return "on"
	case FadingOut:
		return "fading-out"
	default:
		return "unknown"
	}
}

// Active reports whether the listener wants the stem audible. Toggle intent,
// not the momentary gain, decides what observers see as active.
func (s ToggleState) Active() bool {
	return s == FadingIn || s == On
}

// ToggleStem flips a stem on or off with a crossfade. Selecting a stem of a
// different song first silences and rewinds every stem, so two songs are
// never audible together. Only unknown or disabled ids return an error.
func (e *Engine) ToggleStem(id string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	t, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	var events []notify.Event
	now := e.opts.Now()
	song := t.stem.SongID

	if song != "" && e.state.CurrentSong != "" && song != e.state.CurrentSong {
		e.logger.Info().Str("from", e.state.CurrentSong).Str("to", song).Msg("Switching song")
		e.resetLocked()
	}
	if song != "" && song != e.state.CurrentSong {
		e.state.CurrentSong = song
		events = append(events, notify.SongChanged{SongID: notify.SongRef(song)})
	}

	e.ensureStartedLocked()
	if !e.state.Playing {
		e.playAllLocked()
	}
	// Retry a stem whose earlier start was refused.
	if t.tr.Paused() {
		e.playLocked(t)
	}

	if t.state.Active() {
		t.state = FadingOut
		e.startFade(t, 0, now)
	} else {
		t.state = FadingIn
		e.startFade(t, 1, now)
	}
	e.logger.Debug().Str("stem", t.stem.ID).Str("song", song).Str("state", t.state.String()).Msg("Stem toggled")

	events = append(events, e.stemsChangedLocked())
	e.updateResyncLocked()
	e.mu.Unlock()

	e.bus.Publish(events...)
	return nil
}

// HoverStem tells observers the pointer is over a stem of a song group.
// Disabled slots still highlight their song.
func (e *Engine) HoverStem(id string) error {
	if e.isClosed() {
		return nil
	}
	s, ok := e.reg.Get(id)
	if !ok {
		return ErrUnknownStem
	}
	if s.SongID != "" {
		e.bus.Publish(notify.StemHover{SongID: s.SongID})
	}
	return nil
}

// UnhoverStem tells observers the pointer left the stems.
func (e *Engine) UnhoverStem() {
	if e.isClosed() {
		return
	}
	e.bus.Publish(notify.StemUnhover{})
}

// stemsChangedLocked builds the active-stems event. Stems outside any song
// group are reported along with the current song's stems.
func (e *Engine) stemsChangedLocked() notify.StemsChanged {
	labels := []string{}
	for _, t := range e.tracks {
		if !t.state.Active() {
			continue
		}
		if t.stem.SongID == "" || t.stem.SongID == e.state.CurrentSong {
			labels = append(labels, t.stem.Label)
		}
	}
	return notify.StemsChanged{
		SongID:      notify.SongRef(e.state.CurrentSong),
		ActiveStems: labels,
	}
}
