// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional ~/.autopatch/config.yaml
type FileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	AuthKey     string `yaml:"auth_key"`
	Model       string `yaml:"model"`
	MaxTurns    int    `yaml:"max_turns"`
	LintEnabled bool   `yaml:"lint_enabled"`
	Compression int    `yaml:"compression_level"`
}

// Config holds resolved application configuration
type Config struct {
	HomeDir      string
	AutopatchDir string
	DatabasePath string
	BackupDir    string
	LogDir       string

	ListenAddr  string
	AuthKey     string
	Model       string
	APIKey      string
	MaxTurns    int
	LintEnabled bool
	Compression int
}

const (
	defaultModel       = "gemini-2.5-flash"
	defaultMaxTurns    = 8
	defaultCompression = 3
	// port 0 picks a free port, printed at startup for the caller
	defaultListenAddr = "127.0.0.1:0"
)

// Load creates a Config with resolved paths, file overrides and env overrides
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	autopatchDir := filepath.Join(home, ".autopatch")
	logDir := filepath.Join(autopatchDir, "logs")

	// Ensure directories exist
	for _, dir := range []string{autopatchDir, logDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HomeDir:      home,
		AutopatchDir: autopatchDir,
		DatabasePath: filepath.Join(autopatchDir, "sessions.db"),
		BackupDir:    filepath.Join(autopatchDir, "backups"),
		LogDir:       logDir,
		ListenAddr:   defaultListenAddr,
		Model:        defaultModel,
		MaxTurns:     defaultMaxTurns,
		Compression:  defaultCompression,
	}

	if err := cfg.applyFile(filepath.Join(autopatchDir, "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return cfg, nil
}

// applyFile merges the optional yaml config file; a missing file is fine
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.AuthKey != "" {
		c.AuthKey = fc.AuthKey
	}
	if fc.Model != "" {
		c.Model = fc.Model
	}
	if fc.MaxTurns > 0 {
		c.MaxTurns = fc.MaxTurns
	}
	if fc.Compression > 0 {
		c.Compression = fc.Compression
	}
	c.LintEnabled = fc.LintEnabled

	return nil
}

// applyEnv applies environment overrides on top of file values
func (c *Config) applyEnv() {
	if key := os.Getenv("AUTOPATCH_AUTH_KEY"); key != "" {
		c.AuthKey = key
	}
	if addr := os.Getenv("AUTOPATCH_LISTEN_ADDR"); addr != "" {
		c.ListenAddr = addr
	}
	c.APIKey = os.Getenv("GEMINI_API_KEY")
}

// SessionLogPath returns the path of a project's per-session action log
func SessionLogPath(projectPath, sessionID string) string {
	return filepath.Join(projectPath, "log", sessionID+".jsonl")
}
