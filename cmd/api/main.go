package main

import (
    "bufio"
    "context"
    "errors"
    "net"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"

    "railopt/internal/api"
    "railopt/internal/config"
    "railopt/internal/feed"
    "railopt/internal/logging"
    "railopt/internal/metrics"
)

func main() {
    log := logging.New("api")
    cfg, err := config.Load()
    if err != nil {
        log.Fatal().Err(err).Msg("load config")
    }
    metrics.RegisterDefault()

    srv, err := api.NewServer(cfg)
    if err != nil {
        log.Fatal().Err(err).Msg("init server")
    }

    mux := http.NewServeMux()

    // Optimization
    mux.HandleFunc("/v1/optimize", srv.OptimizeHandler)
    mux.HandleFunc("/v1/demo-data", srv.DemoDataHandler)
    mux.HandleFunc("/v1/status", srv.StatusHandler)
    mux.HandleFunc("/v1/explain", srv.ExplainHandler)
    mux.HandleFunc("/v1/optimizer/config", srv.OptimizerConfigHandler)
    mux.HandleFunc("/v1/admin/optimizer/config", srv.AdminOptimizerConfigHandler)

    // Run history
    mux.HandleFunc("/v1/runs", srv.RunsHandler)
    mux.HandleFunc("/v1/runs/", srv.RunByIDHandler) // includes /explain

    // Live feed
    mux.HandleFunc("/v1/positions", srv.PositionsHandler)
    mux.HandleFunc("/v1/feed/positions/stream", srv.PositionsStreamHandler)
    mux.HandleFunc("/v1/feed/positions/ws", srv.PositionsWSHandler)
    mux.HandleFunc("/v1/feed/runs/stream", srv.RunsStreamHandler)

    // Webhook subscriptions
    mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/debug", srv.DebugJSON)

    // Contract and docs
    mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
    mux.HandleFunc("/docs", srv.DocsHandler)

    // Health and metrics
    mux.HandleFunc("/healthz", srv.HealthHandler)
    mux.HandleFunc("/readyz", srv.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    httpSrv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           api.CORS(cfg.AllowOrigins, logMiddleware(log, mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    worker := srv.NewWebhookWorker()
    worker.Start()
    defer close(worker.Stop)

    if cfg.Feed.Enabled {
        feeder := feed.New(srv.Store, srv.Broker, srv.Positions, cfg.Feed)
        feeder.Start()
        defer close(feeder.Stop)
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = httpSrv.Shutdown(shutdownCtx)
    }()

    log.Info().
        Str("addr", httpSrv.Addr).
        Str("backend", cfg.Solver.Backend).
        Str("auth", cfg.Auth.Mode).
        Msg("API listening")
    if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatal().Err(err).Msg("server error")
    }
    log.Info().Msg("shutdown complete")
}

func logMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        metrics.HTTPRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.code)).Inc()
        metrics.HTTPDuration.WithLabelValues(r.URL.Path).Observe(dur.Seconds())
        log.Info().
            Str("method", r.Method).
            Str("path", r.URL.Path).
            Int("status", rec.code).
            Dur("dur", dur).
            Str("remote", r.RemoteAddr).
            Msg("http")
    })
}

// statusRecorder captures the status code for logs and metrics while keeping
// the streaming surfaces working: Flush passes through for SSE and Hijack
// for the WebSocket upgrade.
type statusRecorder struct {
    http.ResponseWriter
    code int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.code = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, http.ErrNotSupported
    }
    return h.Hijack()
}
