package stream

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPHandler serves engine events as a server-sent event stream.
type HTTPHandler struct {
	broadcaster *Broadcaster
	heartbeat   time.Duration
}

// NewHTTPHandler creates an SSE handler.
func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, heartbeat: 15 * time.Second}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	logger := h.broadcaster.logger
	logger.Info().Int("listeners", h.broadcaster.ListenerCount()).Msg("SSE listener connected")
	defer logger.Info().Msg("SSE listener disconnected")

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case m := <-listener.C:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Type, m.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
