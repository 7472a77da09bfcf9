package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testCfg = JWTConfig{Secret: []byte("test-secret"), TTL: time.Hour}

func doRequest(t *testing.T, header string, query string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(testCfg)(func(c echo.Context) error {
		c.Set("handler_ctx", c.Request().Context())
		return nil
	})
	return h(c)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := doRequest(t, "", "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	err := doRequest(t, "Bearer not-a-token", "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	uid := uuid.New()
	token, err := testCfg.IssueToken(uid, "drsmith", "DOCTOR", false)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen context.Context
	h := JWTMiddleware(testCfg)(func(c echo.Context) error {
		seen = c.Request().Context()
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}

	if got := UserIDFromContext(seen); got != uid {
		t.Errorf("expected user id %s, got %s", uid, got)
	}
	if got := UsernameFromContext(seen); got != "drsmith" {
		t.Errorf("expected username drsmith, got %q", got)
	}
	if got := RoleFromContext(seen); got != "DOCTOR" {
		t.Errorf("expected role DOCTOR, got %q", got)
	}
	if IsAdminFromContext(seen) {
		t.Error("expected non-admin")
	}
}

func TestJWTMiddleware_QueryParamToken(t *testing.T) {
	uid := uuid.New()
	token, err := testCfg.IssueToken(uid, "drsmith", "DOCTOR", false)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen context.Context
	h := JWTMiddleware(testCfg)(func(c echo.Context) error {
		seen = c.Request().Context()
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if got := UserIDFromContext(seen); got != uid {
		t.Errorf("expected user id from query token, got %s", got)
	}
}

func TestRequireRole(t *testing.T) {
	run := func(role string, admin bool, required ...string) error {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := req.Context()
		ctx = context.WithValue(ctx, UserRoleKey, role)
		ctx = context.WithValue(ctx, UserAdminKey, admin)
		req = req.WithContext(ctx)
		c := e.NewContext(req, httptest.NewRecorder())

		h := RequireRole(required...)(func(c echo.Context) error { return nil })
		return h(c)
	}

	if err := run("DOCTOR", false, "DOCTOR", "MANAGER"); err != nil {
		t.Errorf("DOCTOR should pass DOCTOR-or-MANAGER check: %v", err)
	}
	if err := run("VIEWER", true, "DOCTOR"); err != nil {
		t.Errorf("admin should bypass role check: %v", err)
	}
	err := run("VIEWER", false, "DOCTOR")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for VIEWER, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequireAdmin()(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous, got %v", err)
	}
}
