package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RequestTimeout bounds how long an HTTP caller waits on the session.
const RequestTimeout = 5 * time.Second

// Server exposes a session over HTTP: /control takes commands over a
// websocket and /health reports the display state.
type Server struct {
	reqs     chan<- Request
	upgrader websocket.Upgrader
	started  time.Time
}

func NewServer(reqs chan<- Request) *Server {
	return &Server{
		reqs:     reqs,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		started:  time.Now(),
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

// controlMsg is the JSON form of a command. Plain text frames are taken as
// the command line itself.
type controlMsg struct {
	Cmd string `json:"cmd"`
}

func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		line := string(data)
		var msg controlMsg
		if json.Unmarshal(data, &msg) == nil {
			line = msg.Cmd
		}

		ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
		rep, err := Submit(ctx, s.reqs, line)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("control request dropped")
			return
		}
		if err := conn.WriteJSON(rep); err != nil {
			return
		}
		if rep.Stop {
			return
		}
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	rep, err := Submit(ctx, s.reqs, "state")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"state": "unavailable", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"display":  rep.Display,
		"state":    rep.State,
		"uptime_s": time.Since(s.started).Seconds(),
	})
}
