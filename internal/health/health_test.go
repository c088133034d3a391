package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New("test")

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Version != "test" {
		t.Errorf("version = %q, want %q", body.Version, "test")
	}
	if body.Uptime == "" {
		t.Error("uptime missing from healthz response")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New("test")
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New("test",
		Checker{Name: "ingest", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "stream_capacity", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["ingest"] != "ok" {
		t.Errorf("ingest check = %q, want %q", body.Checks["ingest"], "ok")
	}
	if body.Checks["stream_capacity"] != "ok" {
		t.Errorf("stream_capacity check = %q, want %q", body.Checks["stream_capacity"], "ok")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New("test",
		Checker{Name: "ingest", Check: func(_ context.Context) error {
			return errors.New("listener closed")
		}},
		Checker{Name: "stream_capacity", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["ingest"] != "fail: listener closed" {
		t.Errorf("ingest check = %q, want %q", body.Checks["ingest"], "fail: listener closed")
	}
	if body.Checks["stream_capacity"] != "ok" {
		t.Errorf("stream_capacity check = %q, want %q", body.Checks["stream_capacity"], "ok")
	}
}

func TestCapacityCheck(t *testing.T) {
	active := 0
	c := CapacityCheck("stream_capacity", func() int { return active }, 2)

	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("below capacity: %v", err)
	}

	active = 2
	err := c.Check(context.Background())
	if err == nil {
		t.Fatal("at capacity: expected error")
	}
	if !strings.Contains(err.Error(), "2/2") {
		t.Errorf("error = %q, want mention of 2/2", err)
	}
}

func TestCapacityCheck_ZeroMaxAlwaysPasses(t *testing.T) {
	c := CapacityCheck("stream_capacity", func() int { return 1000 }, 0)
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("unlimited capacity: %v", err)
	}
}

func TestRegister_RoutesProbes(t *testing.T) {
	mux := http.NewServeMux()
	New("test").Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
