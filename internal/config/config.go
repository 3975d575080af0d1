// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Player         string  `toml:"player"`
	Quality        string  `toml:"quality"`
	SubsLanguage   string  `toml:"subs_language"`
	Volume         float64 `toml:"volume"`
	AdaptiveEngine string  `toml:"adaptive_engine"`
	MaxHeight      int     `toml:"max_height"`
	History        bool    `toml:"history"`
	DownloadDir    string  `toml:"download_dir"`
	MetricsAddr    string  `toml:"metrics_addr"`
	Debug          bool    `toml:"debug"`
}

// Adaptive engine modes.
const (
	EngineSoftware = "software"
	EngineNative   = "native"
	EngineOff      = "off"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Player:         "mpv",
		Quality:        "1080p",
		SubsLanguage:   "english",
		Volume:         1,
		AdaptiveEngine: EngineSoftware,
		MaxHeight:      0,
		History:        true,
		DownloadDir:    "~/Videos/learnplay",
		MetricsAddr:    "",
		Debug:          false,
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "learnplay"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "learnplay"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	c.Player = strings.ToLower(c.Player)
	c.AdaptiveEngine = strings.ToLower(c.AdaptiveEngine)

	validPlayers := map[string]bool{"mpv": true}
	if !validPlayers[c.Player] {
		return fmt.Errorf("unsupported player %q (valid: mpv)", c.Player)
	}

	validEngines := map[string]bool{EngineSoftware: true, EngineNative: true, EngineOff: true}
	if !validEngines[c.AdaptiveEngine] {
		return fmt.Errorf("unsupported adaptive engine %q (valid: software, native, off)", c.AdaptiveEngine)
	}

	if c.Quality == "" {
		return fmt.Errorf("quality cannot be empty")
	}
	if !strings.HasSuffix(c.Quality, "p") {
		c.Quality += "p"
	}

	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume %.2f out of range [0, 1]", c.Volume)
	}

	if c.MaxHeight < 0 {
		return fmt.Errorf("max_height cannot be negative")
	}

	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// DataPath returns the path to the sqlite database holding history and latency samples.
func DataPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "learnplay", "learnplay.db"), nil
}
