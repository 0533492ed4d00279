package api

import (
    "net/http"
    "strings"
    "sync"

    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "railopt/internal/auth"
    "railopt/internal/config"
    "railopt/internal/logging"
    "railopt/internal/store"
    "railopt/internal/webhooks"
)

// Server carries the shared dependencies of every handler: the run store,
// the webhook publisher, the token verifier, the feed broker and the live
// position cache.
type Server struct {
    Store     store.Store
    Pub       *webhooks.Publisher
    Auth      *auth.Verifier
    Broker    EventBroker
    Positions *PositionCache
    Log       zerolog.Logger

    cfg config.Config

    mu     sync.Mutex
    limits map[string]*rate.Limiter
}

// NewServer wires a Server from configuration. Without DATABASE_URL runs
// live in memory; without REDIS_URL the feed fans out in-process only.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        // Apply migrations on boot (dev helper); production schemas are
        // managed out of band with DB_MIGRATE=false.
        if cfg.Migrate {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }
    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    return &Server{
        Store: s,
        Pub:   webhooks.NewPublisher(s),
        Auth: auth.NewVerifier(auth.Options{
            Mode:        cfg.Auth.Mode,
            HMACSecret:  cfg.Auth.HMACSecret,
            JWKSURL:     cfg.Auth.JWKSURL,
            TenantClaim: cfg.Auth.TenantClaim,
            RoleClaim:   cfg.Auth.RoleClaim,
        }),
        Broker:    broker,
        Positions: NewPositionCache(),
        Log:       logging.New("api"),
        cfg:       cfg,
        limits:    map[string]*rate.Limiter{},
    }, nil
}

// Config exposes the effective configuration the server was built with.
func (s *Server) Config() config.Config { return s.cfg }

// limiter returns the per-tenant rate limiter, creating it on first use.
func (s *Server) limiter(tenant string) *rate.Limiter {
    s.mu.Lock()
    defer s.mu.Unlock()
    l, ok := s.limits[tenant]
    if !ok {
        l = rate.NewLimiter(rate.Limit(s.cfg.Rate.RPS), s.cfg.Rate.Burst)
        s.limits[tenant] = l
    }
    return l
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.cfg.Webhooks)
}

// CORS wraps a handler with the origin policy from ALLOW_ORIGINS: "*" allows
// every origin, otherwise a comma-separated allowlist is matched exactly.
func CORS(allowOrigins string, next http.Handler) http.Handler {
    allowAll := strings.TrimSpace(allowOrigins) == "*" || strings.TrimSpace(allowOrigins) == ""
    allowed := map[string]bool{}
    for _, o := range strings.Split(allowOrigins, ",") {
        if o = strings.TrimSpace(o); o != "" { allowed[o] = true }
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        origin := r.Header.Get("Origin")
        if origin != "" && (allowAll || allowed[origin]) {
            w.Header().Set("Access-Control-Allow-Origin", origin)
            w.Header().Set("Vary", "Origin")
            w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-ID, X-Role")
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
        }
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}
