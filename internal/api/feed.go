package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"railopt/internal/metrics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// PositionsHandler handles GET /v1/positions: the latest known position of
// every train the feeder is tracking for the caller's tenant.
func (s *Server) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Positions.Snapshot(p.TenantID)})
}

// PositionsStreamHandler handles GET /v1/feed/positions/stream (SSE)
func (s *Server) PositionsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	s.streamTopic(w, r, PositionsTopic(p.TenantID))
}

// RunsStreamHandler handles GET /v1/feed/runs/stream (SSE)
func (s *Server) RunsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	s.streamTopic(w, r, RunsTopic(p.TenantID))
}

// streamTopic streams broker events for one topic as server-sent events
// with a 15s heartbeat, until the client goes away.
func (s *Server) streamTopic(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	metrics.FeedClients.WithLabelValues("sse").Inc()
	defer metrics.FeedClients.WithLabelValues("sse").Dec()

	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	// initial heartbeat so clients see the stream is live
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"ts\":%q}\n\n", time.Now().Format(time.RFC3339))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"ts\":%q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// PositionsWSHandler handles GET /v1/feed/positions/ws: the same position
// feed over WebSocket, with an initial snapshot so new clients do not join
// dark. All writes happen from this goroutine; a reader goroutine only
// drains client frames so pongs and close are processed.
func (s *Server) PositionsWSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.FeedClients.WithLabelValues("ws").Inc()
	defer metrics.FeedClients.WithLabelValues("ws").Dec()

	topic := PositionsTopic(p.TenantID)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap := s.Positions.Snapshot(p.TenantID); len(snap) > 0 {
		if err := conn.WriteJSON(map[string]any{"type": "position.snapshot", "data": map[string]any{"items": snap}}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": evt.Type, "data": evt.Data}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
