package engine

import (
	"time"

	"github.com/satindergrewal/stemsync/internal/audio"
)

// fade is the in-flight gain ramp of one stem. A new request replaces it.
type fade struct {
	from, to float64
	start    time.Time
	duration time.Duration
	steps    int
}

// startFade ramps t from its current gain to target. Position and play state
// are left alone; a paused stem still has its (inaudible) gain moved.
func (e *Engine) startFade(t *track, target float64, now time.Time) {
	t.fade = &fade{
		from:     t.gain,
		to:       audio.ClampGain(target),
		start:    now,
		duration: e.opts.FadeDuration,
		steps:    e.opts.FadeSteps,
	}
}

// stepFade applies the gain for the elapsed time and finishes the fade on its
// last step.
func (e *Engine) stepFade(t *track, now time.Time) {
	f := t.fade
	if f == nil {
		return
	}

	step := f.steps
	if stepTime := f.duration / time.Duration(f.steps); stepTime > 0 {
		step = int(now.Sub(f.start) / stepTime)
	}
	e.setGain(t, audio.RampGain(f.from, f.to, step, f.steps, e.opts.FadeCurve))
	if step < f.steps {
		return
	}

	t.fade = nil
	switch t.state {
	case FadingIn:
		t.state = On
	case FadingOut:
		t.state = Off
	}
}

func (e *Engine) setGain(t *track, g float64) {
	t.gain = audio.ClampGain(g)
	t.tr.SetVolume(t.gain)
}
