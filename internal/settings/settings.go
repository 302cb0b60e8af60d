// Package settings provides the persistent runtime settings store: a JSON
// file on disk, one per process, loaded at startup and written through on
// every mutation. Unknown keys found in the file are preserved across
// rewrites so that settings written by newer builds survive a downgrade.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Values is the typed view of the settings file. Field defaults are applied
// by [Defaults]; keys absent from the file keep their defaults.
type Values struct {
	// AsyncSleepRefreshRate is the playback-loop poll interval in seconds.
	AsyncSleepRefreshRate float64 `json:"async_sleep_refresh_rate"`

	// MaxAbsoluteVolume bounds the absolute player volume; the largest
	// settable volume is MaxAbsoluteVolume * 100 absolute units.
	MaxAbsoluteVolume float64 `json:"max_absolute_volume"`

	// HundredPercentVolumeValue is the absolute-units-per-percent ratio:
	// a logical volume of 100% maps to 100 * this value.
	HundredPercentVolumeValue float64 `json:"hundred_percent_volume_value"`

	// Quiet-hours schedule, in fractional hours of local time.
	NormalQuietHoursStartTime  float64 `json:"normal_quiet_hours_start_time"`
	WeekendQuietHoursStartTime float64 `json:"weekend_quiet_hours_start_time"`
	QuietHoursEndTime          float64 `json:"quiet_hours_end_time"`

	// Outbound-API retry tuning, in seconds and attempt counts.
	FloodControlBufferTime         float64 `json:"flood_control_buffer_time"`
	MaxTelegramFloodControlRetries int     `json:"max_telegram_flood_control_retries"`
	TelegramTimeOutBufferTime      float64 `json:"telegram_time_out_buffer_time"`
	MaxTelegramTimeOutRetries      int     `json:"max_telegram_time_out_retries"`

	// RegisteredPrimaryChatID is the one chat the jukebox serves.
	RegisteredPrimaryChatID int64 `json:"registered_primary_chat_id"`

	// OwnerID and ComptrollerIDs gate the supervisor commands.
	OwnerID        int64   `json:"owner_id"`
	ComptrollerIDs []int64 `json:"comptroller_ids"`

	// SFXPath is the directory canned sound effects are looked up in.
	SFXPath string `json:"sfx_path"`

	// DigitalVolume is the last user-set logical volume, restored (clamped)
	// at startup.
	DigitalVolume float64 `json:"digital_volume"`

	// Bot token file paths.
	FurtherBotTokenPath    string `json:"further_bot_token_path"`
	SupervisorBotTokenPath string `json:"supervisor_bot_token_path"`
}

// Defaults returns the built-in settings values.
func Defaults() Values {
	return Values{
		AsyncSleepRefreshRate:          0.25,
		MaxAbsoluteVolume:              1.0,
		HundredPercentVolumeValue:      1.0,
		NormalQuietHoursStartTime:      23,
		WeekendQuietHoursStartTime:     1,
		QuietHoursEndTime:              8,
		FloodControlBufferTime:         1.0,
		MaxTelegramFloodControlRetries: 4,
		TelegramTimeOutBufferTime:      1.0,
		MaxTelegramTimeOutRetries:      4,
		ComptrollerIDs:                 nil,
		SFXPath:                        "sfx",
		DigitalVolume:                  30,
		FurtherBotTokenPath:            "sensitive/further_bot_token.txt",
		SupervisorBotTokenPath:         "sensitive/supervisor_bot_token.txt",
	}
}

// Store is a write-through settings store. All access goes through the
// guarded [Store.Get] and [Store.Update] accessors; no mutable pointer to
// the values ever escapes.
type Store struct {
	mu      sync.Mutex
	path    string
	values  Values
	unknown map[string]json.RawMessage
}

// Open loads the settings file at path, creating it with defaults if it does
// not exist. Unknown keys are retained; recognised keys override defaults.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		values:  Defaults(),
		unknown: map[string]json.RawMessage{},
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}

	known := knownKeys()
	for k, v := range raw {
		if !known[k] {
			s.unknown[k] = v
		}
	}
	return s, nil
}

// Get returns a copy of the current values.
func (s *Store) Get() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values
	v.ComptrollerIDs = append([]int64(nil), s.values.ComptrollerIDs...)
	return v
}

// Update applies fn to the values under the store lock and writes the result
// through to disk.
func (s *Store) Update(fn func(*Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.values)
	return s.writeLocked()
}

// writeLocked persists the current values, merging retained unknown keys.
// Must be called with s.mu held.
func (s *Store) writeLocked() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("settings: remarshal: %w", err)
	}
	for k, v := range s.unknown {
		merged[k] = v
	}
	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// knownKeys returns the set of JSON keys the typed Values struct owns.
func knownKeys() map[string]bool {
	data, _ := json.Marshal(Defaults())
	var m map[string]json.RawMessage
	_ = json.Unmarshal(data, &m)
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}
