package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
)

// CommandFunc handles a text message sent by a peer over its data channel and
// returns the reply, if any.
type CommandFunc func(msg []byte) []byte

// WebRTCHandler serves WebRTC SDP negotiation for a low-latency event channel.
// The peer opens a data channel; engine events are pushed on it and text
// messages from the peer are passed to the command handler.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	commands    CommandFunc
	mu          sync.Mutex
	peers       []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC event handler. commands may be nil.
func NewWebRTCHandler(b *Broadcaster, commands CommandFunc) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		commands:    commands,
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		h.serveChannel(dc)
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	logger := h.broadcaster.logger
	logger.Info().Int("peers", h.PeerCount()).Msg("WebRTC peer connected")

	// Clean up on disconnect
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			if h.removePeer(pc) {
				pc.Close()
				logger.Info().Int("peers", h.PeerCount()).Msg("WebRTC peer disconnected")
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// serveChannel relays events to one data channel for as long as it is open.
func (h *WebRTCHandler) serveChannel(dc *webrtc.DataChannel) {
	logger := h.broadcaster.logger.With().Str("channel", dc.Label()).Logger()

	dc.OnOpen(func() {
		listener := h.broadcaster.Subscribe()
		dc.OnClose(func() {
			h.broadcaster.Unsubscribe(listener)
		})
		go func() {
			defer h.broadcaster.Unsubscribe(listener)
			for {
				select {
				case <-listener.done:
					return
				case m := <-listener.C:
					if err := dc.SendText(string(m.Data)); err != nil {
						logger.Debug().Err(err).Msg("Data channel send failed")
						return
					}
				}
			}
		}()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.commands == nil || !msg.IsString {
			return
		}
		if reply := h.commands(msg.Data); reply != nil {
			if err := dc.SendText(string(reply)); err != nil {
				logger.Debug().Err(err).Msg("Data channel reply failed")
			}
		}
	})
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}
