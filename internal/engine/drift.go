package engine

import (
	"time"
)

// resync runs one drift-correction cycle over the current song.
//
// Offsets are smoothed per stem. Within SmallTolerance a stem is left at rate
// 1.0. When either the smoothed or the latest offset reaches SeekTolerance it
// is snapped to the master. In between, its playback rate is nudged toward
// the master for NudgeDuration.
func (e *Engine) resync(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.state.Resync || e.state.CurrentSong == "" {
		return
	}

	group := e.songTracksLocked(e.state.CurrentSong)
	master := pickMaster(group)
	if master == nil || master.tr.Paused() {
		return
	}
	masterPos := master.tr.Position()

	for _, t := range group {
		if t == master || t.tr.Paused() {
			continue
		}
		e.guard(t, "resync", func() {
			e.correct(t, t.tr.Position()-masterPos, masterPos, now)
		})
	}
}

// pickMaster returns the first active stem of the group, else its first stem.
func pickMaster(group []*track) *track {
	for _, t := range group {
		if t.state.Active() {
			return t
		}
	}
	if len(group) > 0 {
		return group[0]
	}
	return nil
}

func (e *Engine) correct(t *track, offset, masterPos time.Duration, now time.Time) {
	if !t.driftValid {
		t.drift = offset
		t.driftValid = true
	} else {
		t.drift += time.Duration(e.opts.Smoothing * float64(offset-t.drift))
	}

	smoothed := abs(t.drift)

	switch {
	// A jump this large is snapped at once, however settled the estimate.
	case smoothed >= e.opts.SeekTolerance || abs(offset) >= e.opts.SeekTolerance:
		if err := t.tr.Seek(masterPos); err != nil {
			// Next cycle measures again.
			e.logger.Debug().Err(err).Str("stem", t.stem.ID).Msg("Drift seek failed")
			return
		}
		e.logger.Debug().Str("stem", t.stem.ID).Dur("drift", t.drift).Msg("Drift seek")
		t.drift = 0
		e.setRate(t, 1)
		t.restoreAt = time.Time{}

	case smoothed <= e.opts.SmallTolerance:
		e.setRate(t, 1)
		t.restoreAt = time.Time{}

	default:
		rate := 1 + e.opts.NudgeRate
		if t.drift > 0 {
			// Ahead of the master: slow down.
			rate = 1 - e.opts.NudgeRate
		}
		e.setRate(t, rate)
		t.restoreAt = now.Add(e.opts.NudgeDuration)
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (e *Engine) setRate(t *track, rate float64) {
	if t.rate == rate {
		return
	}
	if err := t.tr.SetRate(rate); err != nil {
		e.logger.Debug().Err(err).Str("stem", t.stem.ID).Float64("rate", rate).Msg("Rate change failed")
		return
	}
	t.rate = rate
}

// clearDrift forgets the smoothed offset and any pending nudge.
func (e *Engine) clearDrift(t *track) {
	t.drift = 0
	t.driftValid = false
	t.restoreAt = time.Time{}
	e.setRate(t, 1)
}

func (e *Engine) songTracksLocked(songID string) []*track {
	var out []*track
	for _, t := range e.tracks {
		if t.stem.SongID == songID {
			out = append(out, t)
		}
	}
	return out
}
