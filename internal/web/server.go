// Package web provides an HTTP status server for the button-sensor daemon:
// a status page, its JSON form, a blink trigger and a websocket live feed.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/status"
)

// MaxBlinkCount bounds blink requests from the network.
const MaxBlinkCount = 20

// Blinker starts LED blink sequences.
type Blinker interface {
	RequestBlink(n int) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	blinker    Blinker
	hub        *Hub
}

// New creates a Server that reads state from the given tracker. blinker may
// be nil, in which case POST /blink is unavailable.
func New(addr string, tracker *status.Tracker, blinker Blinker) *Server {
	s := &Server{tracker: tracker, blinker: blinker, hub: NewHub()}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/blink", s.handleBlink)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes live feed clients and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleBlink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeBlink(w, http.StatusMethodNotAllowed, 0, errors.New("method not allowed"))
		return
	}
	if s.blinker == nil {
		writeBlink(w, http.StatusServiceUnavailable, 0, errors.New("blink unavailable"))
		return
	}

	count := 1
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBlink(w, http.StatusBadRequest, 0, errors.New("count must be an integer"))
			return
		}
		count = n
	}
	if count > MaxBlinkCount {
		writeBlink(w, http.StatusBadRequest, count, errors.New("count too large"))
		return
	}

	err := s.blinker.RequestBlink(count)
	switch {
	case errors.Is(err, logic.ErrInvalidBlinkCount):
		writeBlink(w, http.StatusBadRequest, count, err)
	case err != nil:
		log.WithError(err).Errorf("http: blink request failed")
		writeBlink(w, http.StatusInternalServerError, count, err)
	default:
		writeBlink(w, http.StatusAccepted, count, nil)
	}
}

func writeBlink(w http.ResponseWriter, code, count int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(formatBlinkResponse(count, err))
}
