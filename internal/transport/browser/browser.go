//go:build js
// +build js

// Package browser plays stems through HTML audio elements.
package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/gopherjs/gopherjs/js"

	"github.com/satindergrewal/stemsync/internal/audio"
	"github.com/satindergrewal/stemsync/internal/engine"
	"github.com/satindergrewal/stemsync/internal/stem"
)

// ErrNoAudio is returned when the page has no Audio constructor.
var ErrNoAudio = errors.New("HTMLAudioElement not available")

// Transport wraps one audio element.
type Transport struct {
	el *js.Object
}

// Opener creates a preloading audio element per stem.
func Opener() engine.Opener {
	return func(s *stem.Stem) (engine.Transport, error) {
		ctor := js.Global.Get("Audio")
		if ctor == nil || ctor == js.Undefined {
			return nil, ErrNoAudio
		}
		el := ctor.New(s.Source)
		el.Set("preload", "auto")
		el.Set("loop", false)
		el.Set("volume", 0)
		return &Transport{el: el}, nil
	}
}

// Play asks the element to play. Browsers answer with a promise that is
// rejected when autoplay is blocked.
func (t *Transport) Play(done func(error)) {
	p := t.el.Call("play")
	if p == nil || p == js.Undefined || p.Get("then") == js.Undefined {
		done(nil)
		return
	}
	p.Call("then",
		func() { done(nil) },
		func(reason *js.Object) { done(fmt.Errorf("play rejected: %s", reason.String())) },
	)
}

func (t *Transport) Pause() { t.el.Call("pause") }

func (t *Transport) Paused() bool { return t.el.Get("paused").Bool() }

func (t *Transport) Position() time.Duration {
	return time.Duration(t.el.Get("currentTime").Float() * float64(time.Second))
}

// Seek sets currentTime. Elements that have not loaded metadata yet throw.
func (t *Transport) Seek(pos time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("seek: %v", r)
		}
	}()
	if pos < 0 {
		pos = 0
	}
	t.el.Set("currentTime", pos.Seconds())
	return nil
}

func (t *Transport) SetVolume(gain float64) {
	t.el.Set("volume", audio.ClampGain(gain))
}

func (t *Transport) SetRate(rate float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("playbackRate: %v", r)
		}
	}()
	t.el.Set("playbackRate", rate)
	return nil
}

// Close detaches the source so the browser can drop the buffered media.
func (t *Transport) Close() error {
	t.el.Call("pause")
	t.el.Call("removeAttribute", "src")
	t.el.Call("load")
	return nil
}
