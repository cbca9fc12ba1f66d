// Package config loads the agent's configuration: a defaults file shipped
// alongside the executable, overlaid by an override file in the
// per-machine data directory. Later wins; a missing file is not an error;
// missing fields fall back to hard-coded defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name both configuration tiers use.
const FileName = "config.json"

// Config is the resolved agent configuration.
type Config struct {
	ConsoleURL string `mapstructure:"ConsoleUrl"`
	AgentID    string `mapstructure:"AgentId"`
	AgentToken string `mapstructure:"AgentToken"`
	LogLevel   string `mapstructure:"LogLevel"`
	LogPath    string `mapstructure:"LogPath"`

	HeartbeatInterval    time.Duration `mapstructure:"HeartbeatInterval"`
	AuthTimeout          time.Duration `mapstructure:"AuthTimeout"`
	HelperConnectTimeout time.Duration `mapstructure:"HelperConnectTimeout"`
	CaptureFallbackFPS   int           `mapstructure:"CaptureFallbackFPS"`
}

// setDefaults installs the hard-coded fallbacks every field resolves to
// when neither configuration tier sets it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ConsoleUrl", "ws://localhost:8080/ws/agent")
	v.SetDefault("AgentId", "")
	v.SetDefault("AgentToken", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogPath", "")
	v.SetDefault("HeartbeatInterval", 30*time.Second)
	v.SetDefault("AuthTimeout", 10*time.Second)
	v.SetDefault("HelperConnectTimeout", 10*time.Second)
	v.SetDefault("CaptureFallbackFPS", 10)
}

// Load resolves configuration from the two standard locations: the
// directory containing the executable, then the per-machine data
// directory. Either file may be absent.
func Load() (Config, error) {
	exe, err := os.Executable()
	if err != nil {
		return Config{}, fmt.Errorf("config: locate executable: %w", err)
	}
	return LoadFrom(filepath.Join(filepath.Dir(exe), FileName), filepath.Join(machineDataDir(), FileName))
}

// LoadFrom resolves configuration from an explicit defaults path and
// override path. Exposed so tests can point both tiers at temp files.
func LoadFrom(defaultsPath, overridePath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(defaultsPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", defaultsPath, err)
	}

	// The override tier only replaces keys it actually sets.
	v.SetConfigFile(overridePath)
	if err := v.MergeInConfig(); err != nil && !isNotFound(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", overridePath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// isNotFound reports whether err means the config file simply isn't there.
func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	var pe *fs.PathError
	return errors.As(err, &nf) || errors.As(err, &pe) || errors.Is(err, fs.ErrNotExist)
}

// machineDataDir returns the per-machine data directory that holds the
// override config tier.
func machineDataDir() string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("ProgramData")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "agentcore")
	case "darwin":
		return "/Library/Application Support/agentcore"
	default:
		return "/etc/agentcore"
	}
}
