package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"

    "railopt/internal/demo"
    "railopt/internal/explain"
    "railopt/internal/metrics"
    "railopt/internal/model"
    "railopt/internal/sched"
    "railopt/internal/store"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.CanOperate() { writeProblem(w, 403, "Forbidden", "controller or admin required", r.URL.Path); return }
    if !s.limiter(p.TenantID).Allow() { writeProblem(w, http.StatusTooManyRequests, "Rate limited", "optimization call budget exhausted, retry shortly", r.URL.Path); return }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { req.TenantID = p.TenantID }

    res, runID, err := s.runOptimization(r.Context(), req)
    if err != nil {
        var verr *sched.ValidationError
        if errors.As(err, &verr) {
            writeProblem(w, http.StatusBadRequest, "Invalid schedule", verr.Error(), r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
        return
    }
    // An infeasible schedule is a result, not a transport error: clients get
    // 200 with status "failed" and a reason.
    writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

// runOptimization builds the constraint model, solves it under the resolved
// settings, persists the run and emits run lifecycle events.
func (s *Server) runOptimization(ctx context.Context, req model.OptimizeRequest) (model.OptimizeResult, string, error) {
    m, err := sched.Build(req)
    if err != nil {
        return model.OptimizeResult{}, "", err
    }

    weights, backend, opts := s.resolveSolverSettings(ctx, req)
    obj := sched.Compose(m, weights)
    out, serr := sched.Solve(ctx, m, obj, backend, opts)
    res := sched.Extract(m, out, weights, backend, opts.Seed)
    if serr != nil && res.Message == "" { res.Message = serr.Error() }

    metrics.OptimizeRuns.WithLabelValues(res.Status, backend).Inc()
    metrics.SolveDuration.WithLabelValues(backend).Observe(out.Stats.Wall.Seconds())

    run := model.Run{
        ID:        uuid.New().String(),
        TenantID:  req.TenantID,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
        Status:    res.Status,
        Backend:   backend,
        Movements: len(req.Movements),
        Result:    res,
    }
    if err := s.Store.SaveRun(ctx, run); err != nil {
        return res, "", fmt.Errorf("save run: %w", err)
    }

    evtType := "run.completed"
    if res.Status == "failed" { evtType = "run.failed" }
    data := map[string]any{
        "runId":              run.ID,
        "status":             res.Status,
        "backend":            backend,
        "movements":          run.Movements,
        "improvementPercent": res.Metrics.ImprovementPercent,
    }
    s.Pub.Emit(ctx, req.TenantID, evtType, run.ID, data)
    s.Broker.Publish(RunsTopic(req.TenantID), FeedEvent{Type: evtType, Data: data})
    s.Log.Info().
        Str("run_id", run.ID).
        Str("tenant", req.TenantID).
        Str("status", res.Status).
        Str("backend", backend).
        Int("movements", run.Movements).
        Int64("wall_ms", res.Metrics.SolveWallMs).
        Msg("optimization run")
    return res, run.ID, nil
}

// resolveSolverSettings layers the solve parameters: service defaults, then
// the tenant's stored optimizer config, then per-request overrides.
func (s *Server) resolveSolverSettings(ctx context.Context, req model.OptimizeRequest) (model.Weights, string, sched.Options) {
    weights := sched.DefaultWeights()
    backend := s.cfg.Solver.Backend
    budget := time.Duration(s.cfg.Solver.TimeBudgetSec * float64(time.Second))
    workers := s.cfg.Solver.Workers

    if tc, err := s.Store.GetOptimizerConfig(ctx, req.TenantID); err == nil && tc != nil {
        if tc.Weights != nil { weights = *tc.Weights }
        if tc.Backend != "" { backend = tc.Backend }
        if tc.TimeBudgetSec > 0 { budget = time.Duration(tc.TimeBudgetSec * float64(time.Second)) }
    }
    if req.Weights != nil { weights = *req.Weights }
    if req.Algorithm != "" { backend = req.Algorithm }
    if req.TimeBudgetSec > 0 { budget = time.Duration(req.TimeBudgetSec * float64(time.Second)) }
    if req.MaxWorkers > 0 { workers = req.MaxWorkers }

    seed := req.Seed
    if seed == 0 { seed = time.Now().UnixNano() }
    return weights, backend, sched.Options{TimeBudget: budget, Workers: workers, Seed: seed}
}

// DemoDataHandler handles GET /v1/demo-data
func (s *Server) DemoDataHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var seed int64 = 42
    if v := r.URL.Query().Get("seed"); v != "" { fmt.Sscanf(v, "%d", &seed) }
    writeJSON(w, http.StatusOK, demo.Dataset(seed))
}

// StatusHandler handles GET /v1/status
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.principal(w, r)
    if !ok { return }
    st := map[string]any{
        "status":         "ok",
        "backends":       sched.Backends(),
        "defaultBackend": s.cfg.Solver.Backend,
    }
    if run, err := s.Store.LatestRun(r.Context(), p.TenantID); err == nil {
        st["latestRun"] = map[string]any{
            "id":                 run.ID,
            "createdAt":          run.CreatedAt,
            "status":             run.Status,
            "backend":            run.Backend,
            "movements":          run.Movements,
            "improvementPercent": run.Result.Metrics.ImprovementPercent,
        }
    }
    writeJSON(w, http.StatusOK, st)
}

// OptimizerConfigHandler handles GET /v1/optimizer/config: the effective
// solve settings for the caller's tenant after stored overrides.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    eff := map[string]any{
        "weights":       sched.DefaultWeights(),
        "backend":       s.cfg.Solver.Backend,
        "timeBudgetSec": s.cfg.Solver.TimeBudgetSec,
        "maxWorkers":    s.cfg.Solver.Workers,
        "backends":      sched.Backends(),
    }
    cfg, _ := s.Store.GetOptimizerConfig(r.Context(), p.TenantID)
    if cfg != nil {
        if cfg.Weights != nil { eff["weights"] = *cfg.Weights }
        if cfg.Backend != "" { eff["backend"] = cfg.Backend }
        if cfg.TimeBudgetSec > 0 { eff["timeBudgetSec"] = cfg.TimeBudgetSec }
    }
    writeJSON(w, 200, map[string]any{"defaults": eff})
}

// AdminOptimizerConfigHandler handles GET/PUT /v1/admin/optimizer/config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, _ := s.Store.GetOptimizerConfig(r.Context(), p.TenantID)
        if cfg == nil { cfg = &model.OptimizerConfig{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct {
            Config *model.OptimizerConfig `json:"config"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := validateOptimizerConfig(body.Config); err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
        if err := s.Store.SaveOptimizerConfig(r.Context(), p.TenantID, *body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ExplainHandler handles POST /v1/explain: annotates an optimization result
// with per-movement explanations and a run summary.
func (s *Server) ExplainHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if _, ok := s.principal(w, r); !ok { return }
    var res model.OptimizeResult
    if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if res.Status == "" { writeProblem(w, 400, "Missing result", "body must be an optimization result", r.URL.Path); return }
    writeJSON(w, 200, map[string]any{
        "movements": explain.Movements(res),
        "summary":   explain.Summarize(res),
    })
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/runs" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    cursor := r.URL.Query().Get("cursor")
    limit := 50
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListRuns(r.Context(), p.TenantID, cursor, limit)
    if err != nil { writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and GET /v1/runs/{id}/explain
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.principal(w, r)
    if !ok { return }
    parts := strings.Split(rest, "/")
    id := parts[0]
    run, err := s.Store.GetRun(r.Context(), p.TenantID, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
        return
    }
    if len(parts) > 1 {
        if parts[1] != "explain" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
        writeJSON(w, 200, map[string]any{
            "runId":     run.ID,
            "movements": explain.Movements(run.Result),
            "summary":   explain.Summarize(run.Result),
        })
        return
    }
    writeJSON(w, http.StatusOK, run)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscriptionRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { req.TenantID = p.TenantID }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.TenantID, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.TenantID, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.TenantID, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.TenantID, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Delivery not found", id, r.URL.Path); return }
        writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using the Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
