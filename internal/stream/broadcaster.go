package stream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/stemsync/internal/notify"
)

// Message is one encoded engine event.
type Message struct {
	Type notify.Kind
	Data []byte // JSON envelope
}

// Broadcaster fans out engine events from one engine to N remote listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	logger    zerolog.Logger
}

// Listener receives messages from the broadcaster.
type Listener struct {
	C    chan Message // buffered channel of encoded events
	done chan struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		logger:    logger.With().Str("component", "stream").Logger(),
	}
}

// Subscribe registers a new listener. Returns a Listener that receives messages.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan Message, 64),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish fans a message out to all listeners.
// Slow listeners get messages dropped rather than blocking the engine.
func (b *Broadcaster) Publish(m Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- m:
		default:
			// listener too slow, drop message to keep the engine moving
		}
	}
}

// Relay returns an engine subscriber that encodes events and publishes them.
func (b *Broadcaster) Relay() func(notify.Event) {
	return func(ev notify.Event) {
		data, err := notify.Marshal(ev)
		if err != nil {
			b.logger.Warn().Err(err).Str("type", string(ev.Kind())).Msg("Event encode failed")
			return
		}
		b.Publish(Message{Type: ev.Kind(), Data: data})
	}
}
