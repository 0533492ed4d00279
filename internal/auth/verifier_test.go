package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func signHS256(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	head := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(head + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return head + "." + payload + "." + sig
}

func TestDevModeDefaults(t *testing.T) {
	v := NewVerifier(Options{Mode: "dev"})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	p, err := v.Verify(r)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.TenantID != "t_demo" || p.Role != "admin" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if !p.IsAdmin() || !p.CanOperate() {
		t.Fatalf("dev principal should be admin")
	}
}

func TestDevModeHeaders(t *testing.T) {
	v := NewVerifier(Options{Mode: "dev"})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	r.Header.Set("X-Tenant-ID", "t_north")
	r.Header.Set("X-Role", "viewer")
	p, err := v.Verify(r)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.TenantID != "t_north" || p.Role != "viewer" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if p.CanOperate() {
		t.Fatalf("viewer should not operate")
	}
}

func TestHMACRoundTrip(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s3cr3t", TenantClaim: "tenant", RoleClaim: "role"})
	tok := signHS256(t, "s3cr3t", map[string]any{
		"sub":    "u_17",
		"tenant": "t_metro",
		"role":   "controller",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest("POST", "/v1/optimize", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := v.Verify(r)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Subject != "u_17" || p.TenantID != "t_metro" || p.Role != "controller" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if !p.CanOperate() || p.IsAdmin() {
		t.Fatalf("controller role misread: %+v", p)
	}
}

func TestHMACRejectsBadSignature(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "right"})
	tok := signHS256(t, "wrong", map[string]any{"tenant": "t_metro"})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if _, err := v.Verify(r); err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestHMACRejectsMissingToken(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s"})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	if _, err := v.Verify(r); err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s3cr3t"})
	tok := signHS256(t, "s3cr3t", map[string]any{
		"tenant": "t_metro",
		"exp":    time.Now().Add(-time.Minute).Unix(),
	})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if _, err := v.Verify(r); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestRoleArrayClaim(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s3cr3t", RoleClaim: "roles"})
	tok := signHS256(t, "s3cr3t", map[string]any{
		"tenant": "t_metro",
		"roles":  []string{"controller", "viewer"},
	})
	r := httptest.NewRequest("GET", "/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := v.Verify(r)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Role != "controller" {
		t.Fatalf("role = %q, want controller", p.Role)
	}
}
