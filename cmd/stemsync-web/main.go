//go:build js
// +build js

package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gopherjs/gopherjs/js"

	"github.com/satindergrewal/stemsync/internal/config"
	"github.com/satindergrewal/stemsync/internal/engine"
	"github.com/satindergrewal/stemsync/internal/notify"
	"github.com/satindergrewal/stemsync/internal/stem"
	"github.com/satindergrewal/stemsync/internal/transport/browser"
)

func present(o *js.Object) bool {
	return o != nil && o != js.Undefined
}

func data(el *js.Object, name string) string {
	v := el.Call("getAttribute", name)
	if !present(v) {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func main() {
	doc := js.Global.Get("document")
	if doc.Get("readyState").String() == "loading" {
		doc.Call("addEventListener", "DOMContentLoaded", func() { go setup(doc) })
		return
	}
	go setup(doc)
}

func setup(doc *js.Object) {
	cfg := config.Load()
	cfg.LogFormat = "json"
	logger := cfg.NewLogger(os.Stderr)

	container := doc.Call("querySelector", "[data-multitrack-player]")
	if !present(container) {
		logger.Warn().Msg("No [data-multitrack-player] found")
		return
	}
	if ms, err := strconv.Atoi(data(container, "data-mt-fade-ms")); err == nil && ms > 0 {
		cfg.FadeDuration = time.Duration(ms) * time.Millisecond
	}

	// Every trigger is a slot; empty ones stay in the registry as disabled.
	triggers := container.Call("querySelectorAll", "[data-mt-trigger]")
	els := make([]*js.Object, triggers.Length())
	configs := make([]stem.Config, len(els))
	for i := range els {
		el := triggers.Index(i)
		els[i] = el
		songID := ""
		if wrapper := el.Call("closest", "[data-mt-track]"); present(wrapper) {
			songID = data(wrapper, "data-mt-track")
		}
		configs[i] = stem.Config{
			Source: data(el, "data-mt-audio"),
			SongID: songID,
			Label:  data(el, "data-mt-stem"),
		}
	}

	reg := stem.Build(configs, logger)
	eng, err := engine.New(reg, browser.Opener(), cfg.EngineOptions(), logger)
	// New disables stems whose audio could not be opened, so mark slots after it.
	for _, s := range reg.All() {
		if s.Disabled {
			els[s.Index].Get("classList").Call("add", "is-disabled")
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Multitrack unavailable")
		return
	}
	go eng.Run(context.Background())

	eng.Subscribe(func(ev notify.Event) {
		mirror(container, els, eng, ev)
	})

	for _, s := range reg.All() {
		if s.Disabled {
			continue
		}
		id := s.ID
		el := els[s.Index]
		el.Call("addEventListener", "click", func() {
			go func() {
				if err := eng.ToggleStem(id); err != nil {
					logger.Warn().Err(err).Str("stem", id).Msg("Toggle failed")
				}
			}()
		})
		el.Call("addEventListener", "mouseenter", func() {
			go eng.HoverStem(id)
		})
		el.Call("addEventListener", "mouseleave", func() {
			go eng.UnhoverStem()
		})
	}

	bind := func(selector string, fn func()) {
		if btn := container.Call("querySelector", selector); present(btn) {
			btn.Call("addEventListener", "click", func() { go fn() })
		}
	}
	bind("[data-mt-play]", eng.PlayAll)
	bind("[data-mt-pause]", eng.PauseAll)
	bind("[data-mt-stop]", eng.StopAll)

	js.Global.Set("stemsync", map[string]interface{}{
		"toggle": func(id string) { go eng.ToggleStem(id) },
		"play":   func() { go eng.PlayAll() },
		"pause":  func() { go eng.PauseAll() },
		"stop":   func() { go eng.StopAll() },
		"seek": func(seconds float64) {
			go eng.SeekAll(time.Duration(seconds * float64(time.Second)))
		},
		// Status takes the engine lock, which cannot block a JS callback, so
		// the snapshot is delivered through a Promise.
		"status": func() *js.Object {
			return js.Global.Get("Promise").New(func(resolve, reject *js.Object) {
				go func() {
					b, err := json.Marshal(eng.Status())
					if err != nil {
						reject.Invoke(err.Error())
						return
					}
					resolve.Invoke(js.Global.Get("JSON").Call("parse", string(b)))
				}()
			})
		},
	})

	logger.Info().Int("triggers", len(els)).Int("usable", reg.UsableCount()).Msg("Multitrack ready")
}

// mirror copies an engine event onto the page: trigger classes, the active
// song and stem readouts, and a CustomEvent for visual layers.
func mirror(container *js.Object, els []*js.Object, eng *engine.Engine, ev notify.Event) {
	switch e := ev.(type) {
	case notify.StemsChanged:
		for _, s := range eng.Status().Stems {
			active := s.State == engine.FadingIn.String() || s.State == engine.On.String()
			if st, ok := eng.Registry().Get(s.ID); ok {
				els[st.Index].Get("classList").Call("toggle", "is-active", active)
			}
		}
		if ui := container.Call("querySelector", "[data-mt-activestem]"); present(ui) {
			ui.Set("textContent", strings.Join(e.ActiveStems, ", "))
		}
	case notify.SongChanged:
		if ui := container.Call("querySelector", "[data-mt-activesong]"); present(ui) {
			song := ""
			if e.SongID != nil {
				song = *e.SongID
			}
			ui.Set("textContent", song)
		}
	case notify.StemHover:
		highlight(container, e.SongID)
	case notify.StemUnhover:
		highlight(container, "")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	detail := js.Global.Get("JSON").Call("parse", string(payload))
	event := js.Global.Get("CustomEvent").New("stemsync:"+string(ev.Kind()), map[string]interface{}{
		"detail":  detail,
		"bubbles": true,
	})
	container.Call("dispatchEvent", event)
}

// highlight marks the wrappers of songID; an empty id clears the mark.
func highlight(container *js.Object, songID string) {
	wrappers := container.Call("querySelectorAll", "[data-mt-track]")
	for i := 0; i < wrappers.Length(); i++ {
		w := wrappers.Index(i)
		on := songID != "" && data(w, "data-mt-track") == songID
		w.Get("classList").Call("toggle", "is-highlighted", on)
	}
}
