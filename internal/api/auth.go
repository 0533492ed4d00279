// Package api implements the HTTP surface of the rail schedule optimizer:
// REST handlers, the live feed endpoints, and the event broker that fans
// run and position updates out to clients.
package api

import (
    "net/http"

    "railopt/internal/auth"
)

// principal authenticates the request and answers 401 itself on failure.
// Dev mode never fails; hmac and jwks modes reject missing or bad tokens
// instead of falling back to a default tenant.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
    p, err := s.Auth.Verify(r)
    if err != nil {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid credentials", r.URL.Path)
        return auth.Principal{}, false
    }
    return p, true
}
