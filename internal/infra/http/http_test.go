package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestWebhookSecretMiddleware(t *testing.T) {
	h := WebhookSecretMiddleware("s3cr3t")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/bot/webhook", nil)
	req.Header.Set(WebhookSecretHeader, "s3cr3t")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestBearerAuthMiddlewareDisabled(t *testing.T) {
	h := BearerAuthMiddleware("")(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cron", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected open endpoint, got %d", rec.Code)
	}
}

func TestBearerAuthMiddleware(t *testing.T) {
	h := BearerAuthMiddleware("cron")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer cron")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected authorized, got %d", rec.Code)
	}
}

func TestWithErrorReporting(t *testing.T) {
	var reported []string
	report := func(_ context.Context, route string, err error) {
		reported = append(reported, route+": "+err.Error())
	}

	failing := WithErrorReporting(zerolog.Nop(), "managevoting", report, func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("graph down")
	})
	rec := httptest.NewRecorder()
	failing(rec, httptest.NewRequest(http.MethodGet, "/api/managevoting", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "graph down") {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
	if len(reported) != 1 || reported[0] != "managevoting: graph down" {
		t.Fatalf("expected one report, got %v", reported)
	}

	clientErr := WithErrorReporting(zerolog.Nop(), "vote", report, func(w http.ResponseWriter, r *http.Request) error {
		return BadRequest(errors.New("url is required"))
	})
	rec = httptest.NewRecorder()
	clientErr(rec, httptest.NewRequest(http.MethodPost, "/api/vote", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(reported) != 1 {
		t.Fatalf("client errors must not be reported, got %v", reported)
	}
}

func TestInstallPanicReporterOnce(t *testing.T) {
	var calls int
	first := InstallPanicReporter(func(context.Context, string, error) { calls++ })
	second := InstallPanicReporter(func(context.Context, string, error) { t.Fatal("second reporter must not be installed") })
	if !first || second {
		t.Fatalf("expected only the first install to succeed, got %v %v", first, second)
	}

	h := RecoverAndReport(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cron", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("expected reporter to be called once, got %d", calls)
	}
}
