// Package config manages the persistent client configuration file and the
// per-user data directory layout.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "messenger-client"
	// DefaultServerURL is the REST base URL used when no override exists.
	DefaultServerURL = "http://localhost:8080"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// ClientConfig contains persistent client settings.
type ClientConfig struct {
	ClientID       string `json:"client_id"`
	ServerURL      string `json:"server_url"`
	PushURL        string `json:"push_url"`
	PrivateKeyPath string `json:"private_key_path"`
	PublicKeyPath  string `json:"public_key_path"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If MESSENGER_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("MESSENGER_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *ClientConfig {
	keysDir := filepath.Join(dataDir, "keys")
	serverURL := DefaultServerURL
	if override := os.Getenv("MESSENGER_SERVER_URL"); override != "" {
		serverURL = override
	}

	return &ClientConfig{
		ClientID:       uuid.NewString(),
		ServerURL:      serverURL,
		PushURL:        derivePushURL(serverURL),
		PrivateKeyPath: filepath.Join(keysDir, "curve25519_private.pem"),
		PublicKeyPath:  filepath.Join(keysDir, "curve25519_public.pem"),
	}
}

func normalizeDefaults(cfg *ClientConfig, dataDir string) bool {
	updated := false
	keysDir := filepath.Join(dataDir, "keys")

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		updated = true
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
		updated = true
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if cfg.PushURL == "" {
		cfg.PushURL = derivePushURL(cfg.ServerURL)
		updated = true
	}

	if cfg.PrivateKeyPath == "" {
		cfg.PrivateKeyPath = filepath.Join(keysDir, "curve25519_private.pem")
		updated = true
	}

	if cfg.PublicKeyPath == "" {
		cfg.PublicKeyPath = filepath.Join(keysDir, "curve25519_public.pem")
		updated = true
	}

	return updated
}

// derivePushURL maps the REST base URL onto the websocket endpoint.
func derivePushURL(serverURL string) string {
	push := serverURL
	switch {
	case strings.HasPrefix(push, "https://"):
		push = "wss://" + strings.TrimPrefix(push, "https://")
	case strings.HasPrefix(push, "http://"):
		push = "ws://" + strings.TrimPrefix(push, "http://")
	}
	return strings.TrimRight(push, "/") + "/ws"
}
