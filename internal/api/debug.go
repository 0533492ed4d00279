package api

import (
    "net/http"
    "time"

    "railopt/internal/buildinfo"
)

// DebugJSON handles GET /v1/admin/debug: build info plus the effective
// configuration for support bundles. Connection strings are reported as
// presence booleans, never as values.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    writeJSON(w, 200, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "env":                 s.cfg.Env,
            "port":                s.cfg.Port,
            "authMode":            s.cfg.Auth.Mode,
            "allowOrigins":        s.cfg.AllowOrigins,
            "rateRps":             s.cfg.Rate.RPS,
            "rateBurst":           s.cfg.Rate.Burst,
            "webhookMaxAttempts":  s.cfg.Webhooks.MaxAttempts,
            "solverBackend":       s.cfg.Solver.Backend,
            "solverTimeBudgetSec": s.cfg.Solver.TimeBudgetSec,
            "solverWorkers":       s.cfg.Solver.Workers,
            "feedEnabled":         s.cfg.Feed.Enabled,
            "hasDatabaseURL":      s.cfg.DatabaseURL != "",
            "hasRedisURL":         s.cfg.RedisURL != "",
        },
    })
}
