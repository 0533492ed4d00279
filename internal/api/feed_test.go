package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "railopt/internal/model"
)

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}

func TestPositionCacheSnapshot(t *testing.T) {
    c := NewPositionCache()
    c.Upsert("t_demo", model.Position{TrainID: "T2", From: "STA", To: "STB", ProgressPct: 40})
    c.Upsert("t_demo", model.Position{TrainID: "T1", From: "STB", To: "STA", ProgressPct: 10})
    c.Upsert("t_demo", model.Position{TrainID: "T1", From: "STB", To: "STA", ProgressPct: 25})
    c.Upsert("t_other", model.Position{TrainID: "T9", From: "STC", To: "STD"})
    c.Upsert("", model.Position{TrainID: "T5"})

    snap := c.Snapshot("t_demo")
    if len(snap) != 2 { t.Fatalf("snapshot: got %d entries", len(snap)) }
    if snap[0].TrainID != "T1" || snap[1].TrainID != "T2" { t.Fatalf("snapshot order: %+v", snap) }
    if snap[0].ProgressPct != 25 { t.Fatalf("upsert should replace: got %v", snap[0].ProgressPct) }
    if got := c.Snapshot("t_missing"); len(got) != 0 { t.Fatalf("unknown tenant: %+v", got) }
}

func TestPositionsHandlerServesSnapshot(t *testing.T) {
    s := newTestServer(t)
    s.Positions.Upsert("t_demo", model.Position{TrainID: "T1", From: "STA", To: "STB", ProgressPct: 50, Status: "on_time"})

    rr := httptest.NewRecorder()
    s.PositionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/positions", nil))
    if rr.Code != 200 { t.Fatalf("positions: %d", rr.Code) }
    var res struct {
        Items []model.Position `json:"items"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode: %v", err) }
    if len(res.Items) != 1 || res.Items[0].TrainID != "T1" { t.Fatalf("items: %+v", res.Items) }
}

func TestRunsStreamSSE(t *testing.T) {
    s := newTestServer(t)

    sseReq := httptest.NewRequest(http.MethodGet, "/v1/feed/runs/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.RunsStreamHandler(rec, sseReq)
        close(done)
    }()

    // Give the handler time to subscribe and send the first heartbeat
    time.Sleep(50 * time.Millisecond)
    s.Broker.Publish(RunsTopic("t_demo"), FeedEvent{Type: "run.completed", Data: map[string]any{"runId": "r1"}})

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("event: run.completed")) { break }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: heartbeat")) {
        t.Fatalf("SSE missing heartbeat. Body: %s", rec.buf.String())
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: run.completed")) {
        t.Fatalf("SSE missing run event. Body: %s", rec.buf.String())
    }
    if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
        t.Fatalf("content type: %s", ct)
    }

    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}

func TestPositionsStreamDeliversFeederEvents(t *testing.T) {
    s := newTestServer(t)

    sseReq := httptest.NewRequest(http.MethodGet, "/v1/feed/positions/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.PositionsStreamHandler(rec, sseReq)
        close(done)
    }()

    time.Sleep(50 * time.Millisecond)
    s.Broker.Publish(PositionsTopic("t_demo"), FeedEvent{Type: "position.updated", Data: map[string]any{
        "trainId": "T1", "progressPct": 62.5,
    }})

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("position.updated")) { break }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte(`"trainId":"T1"`)) {
        t.Fatalf("SSE missing position payload. Body: %s", rec.buf.String())
    }

    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}
