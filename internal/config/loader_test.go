package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Paths.ResourceDir != "downloads" {
		t.Errorf("resource dir = %q, want downloads", cfg.Paths.ResourceDir)
	}
	if cfg.Tools.YtDlp != "yt-dlp" {
		t.Errorf("yt-dlp path = %q", cfg.Tools.YtDlp)
	}
}

func TestLoadFromReaderPartialConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
server:
  log_level: debug
  metrics_addr: ":9091"
paths:
  resource_dir: /tmp/further
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.MetricsAddr != ":9091" {
		t.Errorf("metrics addr = %q", cfg.Server.MetricsAddr)
	}
	if cfg.Paths.ResourceDir != "/tmp/further" {
		t.Errorf("resource dir = %q", cfg.Paths.ResourceDir)
	}
	// Unset fields fall back to defaults.
	if cfg.Paths.WorkerSettings != "settings/worker.json" {
		t.Errorf("worker settings = %q", cfg.Paths.WorkerSettings)
	}
	if cfg.Tools.FFmpeg != "ffmpeg" {
		t.Errorf("ffmpeg path = %q", cfg.Tools.FFmpeg)
	}
}

func TestLoadFromReaderRejectsBadLevel(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  log_level: loud\n"))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("err = %v, want log_level validation failure", err)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("serverr:\n  log_level: info\n")); err == nil {
		t.Error("unknown top-level key accepted")
	}
}

func TestLoadFromReaderRejectsSharedSettingsPath(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
paths:
  worker_settings: settings/shared.json
  supervisor_settings: settings/shared.json
`))
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Errorf("err = %v, want shared-path validation failure", err)
	}
}
