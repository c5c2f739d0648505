// Package status serves a live view of a running verification: the current
// status as JSON, the event stream over SSE and the Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cgast/canarygate/pkg/events"
	"github.com/cgast/canarygate/pkg/verify"
)

// Source is the event bus the server reads from.
type Source interface {
	events.EventBus
	Latest(typ events.EventType) (events.Event, bool)
}

// Server is the status HTTP server.
type Server struct {
	bus       Source
	metrics   http.Handler
	logger    *slog.Logger
	mux       *http.ServeMux
	clients   map[*sseClient]bool
	clientsMu sync.Mutex
	startTime time.Time
}

// sseClient is one connected event stream.
type sseClient struct {
	send chan sseMessage
}

// sseMessage is one encoded event waiting to be written to a client.
type sseMessage struct {
	event events.EventType
	data  []byte
}

// writeSSE writes one named Server-Sent Event frame.
func writeSSE(w io.Writer, msg sseMessage) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
}

// New creates a status server. metrics may be nil, in which case /metrics
// is not served.
func New(bus Source, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
		mux:       http.NewServeMux(),
		clients:   make(map[*sseClient]bool),
		startTime: time.Now(),
	}

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is cancelled. The listener is bound before
// Serve returns its address on ready, so callers can log the real port.
func (s *Server) Serve(ctx context.Context, addr string, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", addr, err)
	}
	if ready != nil {
		ready <- ln.Addr()
	}

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	go s.broadcastEvents(ch)

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) broadcastEvents(ch <-chan events.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		msg := sseMessage{event: ev.Type, data: data}

		s.clientsMu.Lock()
		for client := range s.clients {
			select {
			case client.send <- msg:
			default:
				// Client is slow, drop the event.
			}
		}
		s.clientsMu.Unlock()
	}
}

// handleEvents streams events as Server-Sent Events, starting with the
// retained history.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{send: make(chan sseMessage, 64)}
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client)
		s.clientsMu.Unlock()
	}()

	for _, ev := range s.bus.History(time.Time{}) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		writeSSE(w, sseMessage{event: ev.Type, data: data})
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.send:
			writeSSE(w, msg)
			flusher.Flush()
		}
	}
}

// Snapshot is the /api/status document.
type Snapshot struct {
	RunID       string               `json:"run_id,omitempty"`
	Status      string               `json:"status"`
	CurrentPoll int                  `json:"current_poll"`
	LastPoll    []verify.CheckResult `json:"last_poll"`
	Reason      string               `json:"reason,omitempty"`
	Uptime      string               `json:"uptime"`
	Events      int                  `json:"events"`
}

// Snapshot summarizes the run from the events seen so far.
func (s *Server) Snapshot() Snapshot {
	history := s.bus.History(time.Time{})
	snap := Snapshot{
		Status:   "PENDING",
		LastPoll: []verify.CheckResult{},
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Events:   len(history),
	}

	if ev, ok := s.bus.Latest(events.EventRunStart); ok {
		snap.Status = "RUNNING"
		if data, ok := ev.Data.(map[string]any); ok {
			snap.RunID, _ = data["run_id"].(string)
		}
	}
	if ev, ok := s.bus.Latest(events.EventPollStart); ok {
		snap.CurrentPoll = ev.Poll
	}
	for _, ev := range history {
		if ev.Type != events.EventCheckResult || ev.Poll != snap.CurrentPoll {
			continue
		}
		if r, ok := ev.Data.(verify.CheckResult); ok {
			snap.LastPoll = append(snap.LastPoll, r)
		}
	}
	if ev, ok := s.bus.Latest(events.EventPollEnd); ok && ev.Poll == snap.CurrentPoll {
		if data, ok := ev.Data.(map[string]any); ok {
			snap.Reason, _ = data["reason"].(string)
		}
	}
	if ev, ok := s.bus.Latest(events.EventRunEnd); ok {
		if result, ok := ev.Data.(verify.VerificationResult); ok {
			snap.RunID = result.RunID
			snap.Status = string(result.Status)
			if result.FailureReason != "" {
				snap.Reason = result.FailureReason
			}
		}
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bus.History(time.Time{}))
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
