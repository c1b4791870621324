package appconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults. GAMEBRIDGE_ENGINE overrides engine.binary.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("engine.binary", cfg.Engine.Binary)
	v.SetDefault("engine.extra_args", cfg.Engine.ExtraArgs)
	v.SetDefault("engine.env", cfg.Engine.Env)
	v.SetDefault("engine.use_pty", cfg.Engine.UsePTY)
	v.SetDefault("engine.headless_timeout_seconds", cfg.Engine.HeadlessTimeoutSeconds)
	v.SetDefault("session.output_max_lines", cfg.Session.OutputMaxLines)
	v.SetDefault("session.ready_timeout_seconds", cfg.Session.ReadyTimeoutSeconds)
	v.SetDefault("session.stop_grace_seconds", cfg.Session.StopGraceSeconds)
	v.SetDefault("bridge.host", cfg.Bridge.Host)
	v.SetDefault("bridge.port", cfg.Bridge.Port)
	v.SetDefault("bridge.timeout_seconds", cfg.Bridge.TimeoutSeconds)
	v.SetDefault("listener.registration", cfg.Listener.Registration)
	v.SetDefault("listener.artifact_file", cfg.Listener.ArtifactFile)
	v.SetDefault("listener.output_dir", cfg.Listener.OutputDir)
	v.SetDefault("listener.project_file", cfg.Listener.ProjectFile)
	v.SetDefault("listener.ignore_marker", cfg.Listener.IgnoreMarker)
	v.SetDefault("listener.script_timeout_seconds", cfg.Listener.ScriptTimeoutSeconds)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	if err := v.BindEnv("engine.binary", EngineEnv); err != nil {
		return Config{}, err
	}

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at session start or
// on the first bridge call.
func Validate(cfg Config) error {
	if err := validateBridge(cfg.Bridge); err != nil {
		return err
	}
	for key, value := range map[string]string{
		"listener.registration":  cfg.Listener.Registration,
		"listener.artifact_file": cfg.Listener.ArtifactFile,
		"listener.output_dir":    cfg.Listener.OutputDir,
		"listener.project_file":  cfg.Listener.ProjectFile,
		"listener.ignore_marker": cfg.Listener.IgnoreMarker,
	} {
		if err := validateProjectRelative(key, value); err != nil {
			return err
		}
	}
	if strings.ContainsAny(cfg.Listener.Registration, "=[]/ \t") {
		return fmt.Errorf("listener.registration must be a plain identifier, got %q", cfg.Listener.Registration)
	}
	if cfg.Session.OutputMaxLines <= 0 {
		return fmt.Errorf("session.output_max_lines must be positive")
	}
	if cfg.Listener.ScriptTimeoutSeconds < 0 || cfg.Engine.HeadlessTimeoutSeconds < 0 || cfg.Session.ReadyTimeoutSeconds < 0 || cfg.Session.StopGraceSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func validateBridge(cfg BridgeConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("bridge.port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("bridge.timeout_seconds must be positive")
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("bridge.host must be a loopback address, got %q", cfg.Host)
	}
	return nil
}

func validateProjectRelative(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	if filepath.IsAbs(value) {
		return fmt.Errorf("%s must be relative to the project root, got %q", key, value)
	}
	clean := filepath.Clean(value)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s must stay inside the project root, got %q", key, value)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Engine.Binary = expandEnv(cfg.Engine.Binary)
	for i, arg := range cfg.Engine.ExtraArgs {
		cfg.Engine.ExtraArgs[i] = expandEnv(arg)
	}
	for i, entry := range cfg.Engine.Env {
		cfg.Engine.Env[i] = expandEnv(entry)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	case "HOME":
		if home, err := os.UserHomeDir(); err == nil {
			return home, true
		}
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
