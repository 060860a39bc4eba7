// Package config holds the runtime's persisted settings: a JSON file whose
// missing fields fall back to defaults, validated on load, written
// atomically so the file is never half-written.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
)

const (
	appName    = "retromux"
	configFile = "config.json"
)

// validate is a package-level singleton; building a validator per call is
// expensive.
var validate = validator.New()

// Config is everything the runtime reads from config.json.
type Config struct {
	// SaveDir receives SRAM files and state snapshots.
	SaveDir string `json:"saveDir" validate:"required"`
	// SystemDir is handed to cores asking for firmware space.
	SystemDir string `json:"systemDir" validate:"required"`
	// Username is reported to cores that ask; empty means unsupported.
	Username string `json:"username,omitempty"`
	// LogLevel selects the zap level for the CLI logger.
	LogLevel string `json:"logLevel" validate:"oneof=debug info warn error"`

	// AudioQueueFrames is the per-instance sample bridge capacity in
	// stereo frames.
	AudioQueueFrames int `json:"audioQueueFrames" validate:"min=64,max=1048576"`
	// FrameLagReset is how many frame intervals an instance may fall
	// behind before its pacing baseline resets instead of catching up.
	FrameLagReset float64 `json:"frameLagReset" validate:"gt=0,lte=60"`
	// ContentSizeLimitMB caps resident content loaded into memory.
	ContentSizeLimitMB int `json:"contentSizeLimitMB" validate:"min=1,max=4096"`

	// CoreOptions overrides core-declared variable defaults by key.
	CoreOptions map[string]string `json:"coreOptions,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	base, err := BaseDir()
	if err != nil {
		base = appName + "-data"
	}
	return &Config{
		SaveDir:            filepath.Join(base, "saves"),
		SystemDir:          filepath.Join(base, "system"),
		LogLevel:           "info",
		AudioQueueFrames:   8192,
		FrameLagReset:      1,
		ContentSizeLimitMB: 64,
	}
}

// BaseDir returns the platform data directory for the runtime:
// ~/Library/Application Support on macOS, %APPDATA% on Windows,
// $XDG_DATA_HOME or ~/.local/share elsewhere.
func BaseDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, appName), nil
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, ".local", "share", appName), nil
	}
}

// DefaultPath returns the standard location of config.json.
func DefaultPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configFile), nil
}

// Load reads the configuration at path, or the default location when path
// is empty. A missing file returns defaults; fields absent from the file
// keep their defaults; a corrupt or invalid file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path atomically, creating the directory
// if needed.
func Save(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	return atomicWriteJSON(path, cfg)
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories the configuration points at.
func EnsureDirectories(cfg *Config) error {
	for _, dir := range []string{cfg.SaveDir, cfg.SystemDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// atomicWriteJSON writes data as indented JSON through a temp file rename,
// so the target is never observed half-written.
func atomicWriteJSON(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	blob, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
