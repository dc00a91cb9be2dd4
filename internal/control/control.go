// Package control exposes the engine over HTTP and the WebRTC data channel.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/stemsync/internal/engine"
)

// Engine is the part of *engine.Engine the API drives.
type Engine interface {
	PlayAll()
	PauseAll()
	StopAll()
	SeekAll(pos time.Duration)
	ToggleStem(id string) error
	HoverStem(id string) error
	UnhoverStem()
	Status() engine.Status
}

var (
	errNoEngine        = errors.New("no engine loaded")
	errInvalidPosition = errors.New("invalid position")
)

// Server routes API calls to the current engine. The engine can be swapped
// while serving, e.g. after the manifest is reloaded.
type Server struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	engine Engine
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{logger: logger.With().Str("component", "control").Logger()}
}

// SetEngine replaces the engine calls are routed to. nil takes the API
// offline until the next engine is set.
func (s *Server) SetEngine(e Engine) {
	s.mu.Lock()
	s.engine = e
	s.mu.Unlock()
}

func (s *Server) current() (Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil, errNoEngine
	}
	return s.engine, nil
}

// Handler returns the API mux. events and offer are mounted at /events and
// /offer when non-nil.
func (s *Server) Handler(events, offer http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/play", s.handleAll(Engine.PlayAll))
	mux.HandleFunc("POST /api/pause", s.handleAll(Engine.PauseAll))
	mux.HandleFunc("POST /api/stop", s.handleAll(Engine.StopAll))
	mux.HandleFunc("POST /api/seek", s.handleSeek)
	mux.HandleFunc("POST /api/stems/{id}/toggle", s.handleStem(Engine.ToggleStem))
	mux.HandleFunc("POST /api/stems/{id}/hover", s.handleStem(Engine.HoverStem))
	mux.HandleFunc("POST /api/unhover", s.handleAll(Engine.UnhoverStem))
	if events != nil {
		mux.Handle("GET /events", events)
	}
	if offer != nil {
		mux.Handle("/offer", offer)
	}
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	e, err := s.current()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Status())
}

func (s *Server) handleAll(op func(Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.current()
		if err != nil {
			writeError(w, err)
			return
		}
		op(e)
		writeJSON(w, http.StatusOK, e.Status())
	}
}

// seekRequest is the body of POST /api/seek. Position is in seconds.
type seekRequest struct {
	Position *float64 `json:"position"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	e, err := s.current()
	if err != nil {
		writeError(w, err)
		return
	}
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		writeError(w, errInvalidPosition)
		return
	}
	pos, err := seconds(*req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	e.SeekAll(pos)
	writeJSON(w, http.StatusOK, e.Status())
}

// seconds converts a non-negative position in seconds to a duration.
func seconds(v float64) (time.Duration, error) {
	if math.IsNaN(v) || v < 0 || v > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("%w: %v", errInvalidPosition, v)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func (s *Server) handleStem(op func(Engine, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.current()
		if err != nil {
			writeError(w, err)
			return
		}
		id := r.PathValue("id")
		if err := op(e, id); err != nil {
			s.logger.Debug().Err(err).Str("stem", id).Str("path", r.URL.Path).Msg("Stem request rejected")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e.Status())
	}
}

// Command is one data-channel request: {"op":"toggle","id":"t-0"} or
// {"op":"seek","position":12.5}.
type Command struct {
	Op       string   `json:"op"`
	ID       string   `json:"id,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

// Reply answers a Command.
type Reply struct {
	OK    bool   `json:"ok"`
	Op    string `json:"op"`
	Error string `json:"error,omitempty"`
}

// Command runs a JSON command from a data channel and returns the JSON reply.
func (s *Server) Command(msg []byte) []byte {
	var cmd Command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return encodeReply(Reply{Error: "invalid command"})
	}
	reply := Reply{Op: cmd.Op}
	if err := s.run(cmd); err != nil {
		reply.Error = err.Error()
	} else {
		reply.OK = true
	}
	return encodeReply(reply)
}

func (s *Server) run(cmd Command) error {
	e, err := s.current()
	if err != nil {
		return err
	}
	switch cmd.Op {
	case "play":
		e.PlayAll()
	case "pause":
		e.PauseAll()
	case "stop":
		e.StopAll()
	case "seek":
		if cmd.Position == nil {
			return errInvalidPosition
		}
		pos, err := seconds(*cmd.Position)
		if err != nil {
			return err
		}
		e.SeekAll(pos)
	case "toggle":
		return e.ToggleStem(cmd.ID)
	case "hover":
		return e.HoverStem(cmd.ID)
	case "unhover":
		e.UnhoverStem()
	default:
		return errors.New("unknown op")
	}
	return nil
}

func encodeReply(r Reply) []byte {
	data, _ := json.Marshal(r)
	return data
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownStem):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrStemDisabled):
		code = http.StatusConflict
	case errors.Is(err, errInvalidPosition):
		code = http.StatusBadRequest
	case errors.Is(err, errNoEngine):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
