// Package inspector serves a live debugging view of the agent: event
// stream, run history, and the most recent snapshot, over plain HTTP.
package inspector

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/events"
	"github.com/agently/agently/pkg/history"
)

//go:embed ui/*
var embeddedUI embed.FS

// Server is the inspector HTTP server. Events stream to browsers over
// Server-Sent Events; everything else is plain JSON.
type Server struct {
	bus       events.EventBus
	store     *history.Store
	mux       *http.ServeMux
	startTime time.Time

	mu        sync.Mutex
	sseConns  map[*sseConn]bool
	lastGraph *ax.Graph
}

type sseConn struct {
	send chan []byte
}

// New creates an inspector server. The history store may be nil, in
// which case the run endpoints return empty lists.
func New(bus events.EventBus, store *history.Store) *Server {
	s := &Server{
		bus:       bus,
		store:     store,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		sseConns:  make(map[*sseConn]bool),
	}

	uiFS, _ := fs.Sub(embeddedUI, "ui")
	s.mux.Handle("/", http.FileServer(http.FS(uiFS)))

	s.mux.HandleFunc("/events", s.handleEventStream)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/", s.handleRunRecords)
	s.mux.HandleFunc("/api/graph", s.handleGraph)

	return s
}

// SetGraph records the most recent snapshot for /api/graph.
func (s *Server) SetGraph(g *ax.Graph) {
	s.mu.Lock()
	s.lastGraph = g
	s.mu.Unlock()
}

// ServeHTTP dispatches to the inspector's routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartAsync serves on the port in a background goroutine.
func (s *Server) StartAsync(port int) {
	ch := s.bus.Subscribe()
	go s.broadcast(ch)

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		logging.Info("inspector listening", "addr", addr)
		if err := http.ListenAndServe(addr, s); err != nil {
			logging.Error("inspector server stopped", "error", err)
		}
	}()
}

func (s *Server) broadcast(ch <-chan events.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		s.mu.Lock()
		for conn := range s.sseConns {
			select {
			case conn.send <- data:
			default:
				// Slow consumer, drop the event.
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	conn := &sseConn{send: make(chan []byte, 64)}
	s.mu.Lock()
	s.sseConns[conn] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sseConns, conn)
		s.mu.Unlock()
	}()

	// Replay the buffered history so a late-joining browser sees the
	// whole run.
	for _, ev := range s.bus.History(time.Time{}) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.send:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	evs := s.bus.History(time.Time{})
	var intents, failures int
	for _, ev := range evs {
		switch ev.Type {
		case events.EventIntentEnd:
			intents++
		case events.EventTaskFailed:
			failures++
		}
	}

	s.mu.Lock()
	elements := 0
	if s.lastGraph != nil {
		elements = len(s.lastGraph.Elements)
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"uptime":         time.Since(s.startTime).String(),
		"events":         len(evs),
		"intents_run":    intents,
		"tasks_failed":   failures,
		"graph_elements": elements,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bus.History(time.Time{}))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, []any{})
		return
	}
	runs, err := s.store.Runs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunRecords(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || s.store == nil {
		http.NotFound(w, r)
		return
	}
	records, err := s.store.Records(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g := s.lastGraph
	s.mu.Unlock()
	if g == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	writeJSON(w, g)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(data)
}
