package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator map[string]*service.Claims

func (f fakeValidator) ValidateToken(tok string) (*service.Claims, error) {
	if tok == "expired" {
		return nil, fmt.Errorf("parse token: %w", jwt.ErrTokenExpired)
	}
	if c, ok := f[tok]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

type fakeChecker struct{ err error }

func (f fakeChecker) ValidateCandidateSession(context.Context, *service.Claims) error { return f.err }

var tokens = fakeValidator{
	"cand":  {TokenType: service.TokenTypeCandidate, AdmissionNumber: "BTC/1"},
	"admin": {TokenType: service.TokenTypeAdmin, AdminID: 1, Role: "admin"},
	"super": {TokenType: service.TokenTypeAdmin, AdminID: 2, Role: "super_admin"},
}

func serve(r *gin.Engine, method, target string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func TestRequireAdminJWT(t *testing.T) {
	r := gin.New()
	r.GET("/admin", RequireAdminJWT(tokens), ok)
	r.GET("/super", RequireAdminJWT(tokens), RequireRole("super_admin"), ok)

	tests := []struct {
		name   string
		target string
		header http.Header
		want   int
		body   string
	}{
		{"missing", "/admin", nil, http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"invalid", "/admin", bearer("nope"), http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "/admin", bearer("expired"), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"candidate token", "/admin", bearer("cand"), http.StatusForbidden, "ADMIN_ACCESS_ONLY"},
		{"admin", "/admin", bearer("admin"), http.StatusOK, "ok"},
		{"query token for SSE", "/admin?token=admin", nil, http.StatusOK, "ok"},
		{"role denied", "/super", bearer("admin"), http.StatusForbidden, "FORBIDDEN"},
		{"role granted", "/super", bearer("super"), http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.target, tt.header)
			if w.Code != tt.want || !strings.Contains(w.Body.String(), tt.body) {
				t.Fatalf("got %d %s, want %d containing %s", w.Code, w.Body.String(), tt.want, tt.body)
			}
		})
	}
}

func TestCandidateRoutes(t *testing.T) {
	r := gin.New()
	r.GET("/exam", RequireCandidateJWT(tokens), CheckCandidateSession(fakeChecker{}), ok)
	r.GET("/left", RequireCandidateJWT(tokens), CheckCandidateSession(fakeChecker{err: service.ErrSessionInvalidated}), ok)
	r.GET("/ws", RequireCandidateWSAuth(tokens), ok)

	if w := serve(r, http.MethodGet, "/exam", bearer("cand")); w.Code != http.StatusOK {
		t.Fatalf("candidate rejected: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/exam", bearer("admin")); w.Code != http.StatusForbidden {
		t.Fatalf("admin token on candidate route: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/exam?token=cand", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("candidate routes must not read the query token: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/left", bearer("cand")); w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "SESSION_INVALIDATED") {
		t.Fatalf("stale session: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/ws?token=cand", nil); w.Code != http.StatusOK {
		t.Fatalf("ws auth: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/ws", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("ws without token: %d", w.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("ip") || !rl.Allow("ip") {
		t.Fatalf("first two requests must pass")
	}
	if rl.Allow("ip") {
		t.Fatalf("third request must be limited")
	}
	if !rl.Allow("other") {
		t.Fatalf("limits are per key")
	}

	now = now.Add(90 * time.Second)
	if !rl.Allow("ip") || !rl.Allow("ip") || rl.Allow("ip") {
		t.Fatalf("bucket must refill to rate after one interval")
	}
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	large := strings.Repeat("submission ", 500)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 256}))
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })

	accept := http.Header{"Accept-Encoding": {"gzip, br;q=1.0"}}

	w := serve(r, http.MethodGet, "/large", accept)
	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("large body not compressed")
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil || string(plain) != large {
		t.Fatalf("round trip failed: %v", err)
	}

	w = serve(r, http.MethodGet, "/small", accept)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "tiny" {
		t.Fatalf("small body must pass through, got %q", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/large", nil)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != large {
		t.Fatalf("client without br must get plain body")
	}
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/private", NoStore(), ok)
	r.GET("/shared", CacheControl(60), ok)
	if w := serve(r, http.MethodGet, "/private", nil); w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
	if w := serve(r, http.MethodGet, "/shared", nil); w.Header().Get("Cache-Control") != "public, max-age=60" {
		t.Fatalf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}
