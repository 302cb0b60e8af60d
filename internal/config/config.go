// Package config provides the bootstrap configuration schema and loader for
// the Further jukebox. Bootstrap config covers everything needed before the
// worker process is up: logging, metrics, tool paths, and where the runtime
// settings files live. Runtime-tunable knobs (volume, quiet hours, retry
// budgets) live in the settings store instead.
package config

// LogLevel controls log verbosity for both processes.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root bootstrap configuration, loaded from a YAML file with
// [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Paths  PathsConfig  `yaml:"paths"`
	Tools  ToolsConfig  `yaml:"tools"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the worker's metrics endpoint listens
	// on (e.g., ":9091"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// PathsConfig holds filesystem locations for runtime state.
type PathsConfig struct {
	// ResourceDir is the scratch root for per-element download directories.
	// It is wiped on every worker start.
	ResourceDir string `yaml:"resource_dir"`

	// WorkerSettings is the worker's persistent settings file.
	WorkerSettings string `yaml:"worker_settings"`

	// SupervisorSettings is the supervisor's persistent settings file.
	SupervisorSettings string `yaml:"supervisor_settings"`
}

// ToolsConfig holds paths to the external executables the worker shells out
// to. Bare names are resolved through PATH.
type ToolsConfig struct {
	// YtDlp is the yt-dlp executable used for metadata and downloads.
	YtDlp string `yaml:"yt_dlp"`

	// FFmpeg is the ffmpeg executable used for the audio filter pass.
	FFmpeg string `yaml:"ffmpeg"`
}

// Default returns the built-in bootstrap configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel:    LogInfo,
			MetricsAddr: "",
		},
		Paths: PathsConfig{
			ResourceDir:        "downloads",
			WorkerSettings:     "settings/worker.json",
			SupervisorSettings: "settings/supervisor.json",
		},
		Tools: ToolsConfig{
			YtDlp:  "yt-dlp",
			FFmpeg: "ffmpeg",
		},
	}
}
