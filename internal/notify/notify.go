// Package notify carries engine events to visual layers that must not depend
// on playback internals.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Kind names an event on the wire.
type Kind string

const (
	KindSongChanged  Kind = "song-changed"
	KindStemsChanged Kind = "stems-changed"
	KindStemHover    Kind = "stem-hover"
	KindStemUnhover  Kind = "stem-unhover"
)

// Event is implemented by every payload the bus delivers.
type Event interface {
	Kind() Kind
}

// SongChanged is emitted when the current song group changes. SongID is nil
// when playback was stopped.
type SongChanged struct {
	SongID *string `json:"songId"`
}

// StemsChanged is emitted after a toggle or stop with the labels of the stems
// whose toggle intent is on, in configured order.
type StemsChanged struct {
	SongID      *string  `json:"songId"`
	ActiveStems []string `json:"activeStems"`
}

// StemHover is emitted when the pointer enters a stem of a song group.
type StemHover struct {
	SongID string `json:"songId"`
}

// StemUnhover is emitted when the pointer leaves a stem.
type StemUnhover struct{}

func (SongChanged) Kind() Kind  { return KindSongChanged }
func (StemsChanged) Kind() Kind { return KindStemsChanged }
func (StemHover) Kind() Kind    { return KindStemHover }
func (StemUnhover) Kind() Kind  { return KindStemUnhover }

// SongRef converts an empty song id into a JSON null.
func SongRef(songID string) *string {
	if songID == "" {
		return nil
	}
	return &songID
}

// Envelope is the wire form used by remote transports.
type Envelope struct {
	Type    Kind  `json:"type"`
	Payload Event `json:"payload"`
}

// Marshal encodes an event inside its envelope.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Kind(), Payload: ev})
}

// Bus delivers events synchronously to every subscriber.
type Bus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
	order  []int
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "notify").Logger(),
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers events in order. Subscribers run on the caller's
// goroutine; a panicking subscriber is logged and skipped.
func (b *Bus) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			b.deliver(fn, ev)
		}
	}
}

func (b *Bus) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", string(ev.Kind())).Msg("Subscriber panicked")
		}
	}()
	fn(ev)
}
