package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// settingsChecker reports ready once the settings file exists, mirroring how
// the worker gates readiness on its persisted configuration.
func settingsChecker(path string) Checker {
	return Checker{Name: "settings", Check: func(_ context.Context) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("settings file: %w", err)
		}
		return nil
	}}
}

// laneChecker stands in for the playback-lane check: ready unless the lane
// reports an error.
func laneChecker(laneErr *error) Checker {
	return Checker{Name: "player", Check: func(_ context.Context) error {
		return *laneErr
	}}
}

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	return rec.Code, body
}

func TestHealthzAlwaysOK(t *testing.T) {
	// Liveness ignores checker state entirely.
	var laneErr error = errors.New("lane wedged")
	h := New(laneChecker(&laneErr))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("healthz body = %+v", body)
	}
}

func TestReadyzWithJukeboxCheckers(t *testing.T) {
	settingsPath := filepath.Join(t.TempDir(), "settings.yaml")
	var laneErr error
	h := New(settingsChecker(settingsPath), laneChecker(&laneErr))

	// No settings file yet: not ready, and the failing check is named.
	code, body := readyz(t, h)
	if code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Fatalf("readyz before settings = (%d, %+v)", code, body)
	}
	if body.Checks["player"] != "ok" {
		t.Errorf("player check = %q, want ok", body.Checks["player"])
	}
	if body.Checks["settings"] == "ok" {
		t.Error("settings check passed without a settings file")
	}

	if err := os.WriteFile(settingsPath, []byte("volume: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, body = readyz(t, h)
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("readyz after settings = (%d, %+v)", code, body)
	}
	if body.Checks["settings"] != "ok" || body.Checks["player"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}

	// The lane going bad flips readiness back without touching the settings
	// check.
	laneErr = errors.New("libvlc init failed")
	code, body = readyz(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with broken lane = %d", code)
	}
	if body.Checks["player"] != "fail: libvlc init failed" {
		t.Errorf("player check = %q", body.Checks["player"])
	}
	if body.Checks["settings"] != "ok" {
		t.Errorf("settings check = %q, want ok", body.Checks["settings"])
	}
}

func TestReadyzNoCheckersIsReady(t *testing.T) {
	code, body := readyz(t, New())
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("readyz = (%d, %+v), want ok", code, body)
	}
}

func TestReadyzCancelledRequestFailsSlowCheck(t *testing.T) {
	h := New(Checker{Name: "player", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
