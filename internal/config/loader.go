package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A missing file is not an error: the defaults are returned so the
// jukebox can run from a bare checkout.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields from the
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields the YAML left empty. Decoding overwrites whole
// structs, so starting from Default() alone is not enough.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Paths.ResourceDir == "" {
		cfg.Paths.ResourceDir = def.Paths.ResourceDir
	}
	if cfg.Paths.WorkerSettings == "" {
		cfg.Paths.WorkerSettings = def.Paths.WorkerSettings
	}
	if cfg.Paths.SupervisorSettings == "" {
		cfg.Paths.SupervisorSettings = def.Paths.SupervisorSettings
	}
	if cfg.Tools.YtDlp == "" {
		cfg.Tools.YtDlp = def.Tools.YtDlp
	}
	if cfg.Tools.FFmpeg == "" {
		cfg.Tools.FFmpeg = def.Tools.FFmpeg
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Paths.WorkerSettings == cfg.Paths.SupervisorSettings {
		errs = append(errs, fmt.Errorf("paths.worker_settings and paths.supervisor_settings must differ (both %q)", cfg.Paths.WorkerSettings))
	}

	return errors.Join(errs...)
}
