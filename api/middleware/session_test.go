package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/armorylabs/armory-backend/pkg/auth"
	"github.com/armorylabs/armory-backend/pkg/config"
)

func sessionTestConfig() config.SessionConfig {
	return config.SessionConfig{
		Secret:     "test-secret",
		Issuer:     "armory-test",
		CookieName: "armory_session",
		TTL:        time.Hour,
	}
}

func TestSessionMintsCookieForNewVisitor(t *testing.T) {
	cfg := sessionTestConfig()
	mw := Session(cfg, false, nil)

	var gotSessionID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSessionID = SessionIDFromContext(r.Context())
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if gotSessionID == "" {
		t.Fatal("expected a session id in the request context")
	}

	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != cfg.CookieName {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	claims, err := auth.ParseSessionToken(cfg, cookies[0].Value)
	if err != nil {
		t.Fatalf("cookie token did not parse: %v", err)
	}
	if claims.SessionID != gotSessionID {
		t.Fatalf("cookie session %q != context session %q", claims.SessionID, gotSessionID)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("session cookie must be http-only")
	}
}

func TestSessionReusesValidCookie(t *testing.T) {
	cfg := sessionTestConfig()
	token, sessionID, err := auth.MintSessionToken(cfg, time.Now(), "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	mw := Session(cfg, false, nil)
	var gotSessionID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSessionID = SessionIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: token})
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if gotSessionID != sessionID {
		t.Fatalf("expected session %q, got %q", sessionID, gotSessionID)
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatal("a valid cookie must not be rotated")
	}
}

func TestSessionRotatesTamperedCookie(t *testing.T) {
	cfg := sessionTestConfig()
	mw := Session(cfg, false, nil)
	var gotSessionID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSessionID = SessionIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: "not-a-jwt"})
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if gotSessionID == "" {
		t.Fatal("expected a fresh session id")
	}
	if len(resp.Result().Cookies()) != 1 {
		t.Fatal("tampered cookie should be replaced")
	}
}
