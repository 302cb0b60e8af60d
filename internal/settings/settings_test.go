package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "worker_settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	v := s.Get()
	if v.AsyncSleepRefreshRate != 0.25 {
		t.Errorf("refresh rate = %v, want 0.25", v.AsyncSleepRefreshRate)
	}
	if v.MaxTelegramFloodControlRetries != 4 {
		t.Errorf("flood retries = %v, want 4", v.MaxTelegramFloodControlRetries)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestUpdateWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Update(func(v *Values) { v.DigitalVolume = 55 }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Reopen and confirm persistence.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Get().DigitalVolume; got != 55 {
		t.Errorf("reloaded volume = %v, want 55", got)
	}
}

func TestUnknownKeysIgnoredButPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	seed := `{"digital_volume": 10, "future_knob": {"nested": true}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Get().DigitalVolume; got != 10 {
		t.Errorf("volume = %v, want 10", got)
	}

	if err := s.Update(func(v *Values) { v.DigitalVolume = 20 }); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["future_knob"]; !ok {
		t.Error("unknown key dropped on rewrite")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(v *Values) { v.ComptrollerIDs = []int64{1, 2} }); err != nil {
		t.Fatal(err)
	}

	v := s.Get()
	v.ComptrollerIDs[0] = 99
	if s.Get().ComptrollerIDs[0] != 1 {
		t.Error("Get leaked a mutable slice")
	}
}
