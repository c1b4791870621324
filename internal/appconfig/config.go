package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/gamebridge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	Engine        EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Session       SessionConfig  `mapstructure:"session" yaml:"session"`
	Bridge        BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	Listener      ListenerConfig `mapstructure:"listener" yaml:"listener"`
	Metrics       MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineEnv overrides engine.binary.
const EngineEnv = "GAMEBRIDGE_ENGINE"

// EngineConfig controls how the target engine is launched.
type EngineConfig struct {
	Binary                 string   `mapstructure:"binary" yaml:"binary"`
	ExtraArgs              []string `mapstructure:"extra_args" yaml:"extra_args"`
	Env                    []string `mapstructure:"env" yaml:"env"`
	UsePTY                 bool     `mapstructure:"use_pty" yaml:"use_pty"`
	HeadlessTimeoutSeconds int      `mapstructure:"headless_timeout_seconds" yaml:"headless_timeout_seconds"`
}

// HeadlessTimeout returns the headless invocation timeout.
func (c EngineConfig) HeadlessTimeout() time.Duration {
	return time.Duration(c.HeadlessTimeoutSeconds) * time.Second
}

// EnvList returns the KEY=VALUE entries of Env, skipping malformed ones.
// Env is a list rather than a map because viper lower-cases map keys.
func (c EngineConfig) EnvList() []string {
	out := make([]string, 0, len(c.Env))
	for _, entry := range c.Env {
		if key, _, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(key) != "" {
			out = append(out, entry)
		}
	}
	return out
}

// SessionConfig controls the session manager.
type SessionConfig struct {
	OutputMaxLines      int `mapstructure:"output_max_lines" yaml:"output_max_lines"`
	ReadyTimeoutSeconds int `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	StopGraceSeconds    int `mapstructure:"stop_grace_seconds" yaml:"stop_grace_seconds"`
}

// ReadyTimeout returns how long bridge calls wait for the listener.
func (c SessionConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// StopGrace returns the TERM to KILL grace period.
func (c SessionConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// BridgeConfig controls the bridge client.
type BridgeConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the default per-call reply timeout.
func (c BridgeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ListenerConfig names the files involved in registering the listener and
// the limits the injected listener runs with.
type ListenerConfig struct {
	Registration         string `mapstructure:"registration" yaml:"registration"`
	ArtifactFile         string `mapstructure:"artifact_file" yaml:"artifact_file"`
	OutputDir            string `mapstructure:"output_dir" yaml:"output_dir"`
	ProjectFile          string `mapstructure:"project_file" yaml:"project_file"`
	IgnoreMarker         string `mapstructure:"ignore_marker" yaml:"ignore_marker"`
	ScriptTimeoutSeconds int    `mapstructure:"script_timeout_seconds" yaml:"script_timeout_seconds"`
}

// ScriptTimeout returns the script watchdog duration.
func (c ListenerConfig) ScriptTimeout() time.Duration {
	return time.Duration(c.ScriptTimeoutSeconds) * time.Second
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".gamebridge", "state"),
		Engine: EngineConfig{
			Binary:                 "godot",
			ExtraArgs:              []string{},
			Env:                    []string{},
			UsePTY:                 false,
			HeadlessTimeoutSeconds: 60,
		},
		Session: SessionConfig{
			OutputMaxLines:      2000,
			ReadyTimeoutSeconds: 15,
			StopGraceSeconds:    3,
		},
		Bridge: BridgeConfig{
			Host:           schema.DefaultHost,
			Port:           schema.DefaultPort,
			TimeoutSeconds: 10,
		},
		Listener: ListenerConfig{
			Registration:         "GameBridgeListener",
			ArtifactFile:         "gamebridge_listener.yaml",
			OutputDir:            ".gamebridge",
			ProjectFile:          "project.godot",
			IgnoreMarker:         ".gdignore",
			ScriptTimeoutSeconds: 30,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gamebridge", "config.yaml"), nil
}
