// Package config loads the dispatch gateway's settings from the environment,
// with an on-disk override file as a secondary source for the secrets and an
// optional YAML file for the structural settings (bind address, port).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable and override-file names, mirroring the upstream
// gateway's own env-first-then-file convention.
const (
	AuthSecretEnv     = "EDI_AUTH_SECRET"
	AuthSecretFile    = "/etc/edi/secret"
	WebhookSecretEnv  = "EDI_GITHUB_SECRET"
	WebhookSecretFile = "/etc/edi/github-secret"

	DispatchTimeoutEnv    = "EDI_DISPATCH_DEFAULT_TIMEOUT"
	DispatchWorkdirEnv    = "EDI_DISPATCH_WORKDIR"
	DispatchMaxTurnsEnv   = "EDI_DISPATCH_MAX_TURNS"
	DispatchEarlyCheckEnv = "EDI_DISPATCH_EARLY_CHECK_SECONDS"
)

// Fixed operational constants. These are not expected to vary per
// deployment; see SPEC_FULL.md §4.12.
const (
	DefaultListenHost          = "0.0.0.0"
	DefaultListenPort          = 19001
	DefaultDispatchTimeout     = 3600 * time.Second
	DefaultDispatchWorkdir     = "~/nexus"
	DefaultDispatchMaxTurns    = 25
	DefaultDispatchEarlyCheck  = 5 * time.Second
	DefaultAskTimeout          = 120 * time.Second
	DefaultThreadsDirName      = ".edi-link/threads"
	DefaultUpstreamBaseURL     = "http://127.0.0.1:18789"
	DefaultUpstreamCallTimeout = 15 * time.Second
	DefaultAuthTimestampWindow = 300 * time.Second
	DefaultAskPollInterval     = time.Second
	DefaultAskInitialPollDelay = 2 * time.Second

	MaxRequestBodyBytes int64 = 1 << 20
)

// Config is the fully-resolved configuration for a running gateway instance.
type Config struct {
	ListenHost string `yaml:"bind"`
	ListenPort int    `yaml:"port"`

	ThreadsDir string `yaml:"threads_dir"`

	DispatchDefaultTimeout    time.Duration `yaml:"-"`
	DispatchDefaultWorkdir    string        `yaml:"-"`
	DispatchMaxTurns          int           `yaml:"-"`
	DispatchEarlyCheckSeconds time.Duration `yaml:"-"`

	UpstreamBaseURL     string        `yaml:"upstream_base_url"`
	UpstreamCallTimeout time.Duration `yaml:"-"`
	GatewayToken        string        `yaml:"-"`
	HooksToken          string        `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	// AuthSecret and WebhookSecret are resolved once at startup from the
	// environment/file sources below; an empty value disables the
	// corresponding authentication check.
	AuthSecret    string `yaml:"-"`
	WebhookSecret string `yaml:"-"`
}

// fileOverlay holds the subset of settings that may come from an on-disk
// YAML file (bind address, port, threads directory, upstream URL, log
// level). Secrets and dispatch tunables are always environment-derived.
type fileOverlay struct {
	ListenHost      string `yaml:"bind"`
	ListenPort      int    `yaml:"port"`
	ThreadsDir      string `yaml:"threads_dir"`
	UpstreamBaseURL string `yaml:"upstream_base_url"`
	LogLevel        string `yaml:"log_level"`
}

// Default returns a Config populated entirely from fixed defaults and the
// current environment, with no file override.
func Default() (*Config, error) {
	return load("")
}

// Load reads an optional YAML overlay file, layering it on top of the
// environment-derived defaults, and validates the result.
func Load(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	cfg := &Config{
		ListenHost:                DefaultListenHost,
		ListenPort:                DefaultListenPort,
		ThreadsDir:                filepath.Join(home, DefaultThreadsDirName),
		DispatchDefaultTimeout:    durationEnv(DispatchTimeoutEnv, DefaultDispatchTimeout),
		DispatchDefaultWorkdir:    expandHome(stringEnv(DispatchWorkdirEnv, DefaultDispatchWorkdir), home),
		DispatchMaxTurns:          intEnv(DispatchMaxTurnsEnv, DefaultDispatchMaxTurns),
		DispatchEarlyCheckSeconds: durationEnv(DispatchEarlyCheckEnv, DefaultDispatchEarlyCheck),
		UpstreamBaseURL:           DefaultUpstreamBaseURL,
		UpstreamCallTimeout:       DefaultUpstreamCallTimeout,
		LogLevel:                  "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		var overlay fileOverlay
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if overlay.ListenHost != "" {
			cfg.ListenHost = overlay.ListenHost
		}
		if overlay.ListenPort != 0 {
			cfg.ListenPort = overlay.ListenPort
		}
		if overlay.ThreadsDir != "" {
			cfg.ThreadsDir = overlay.ThreadsDir
		}
		if overlay.UpstreamBaseURL != "" {
			cfg.UpstreamBaseURL = overlay.UpstreamBaseURL
		}
		if overlay.LogLevel != "" {
			cfg.LogLevel = overlay.LogLevel
		}
	}

	cfg.AuthSecret = loadSecret(AuthSecretEnv, AuthSecretFile)
	cfg.WebhookSecret = loadSecret(WebhookSecretEnv, WebhookSecretFile)
	cfg.GatewayToken = os.Getenv("EDI_GATEWAY_TOKEN")
	cfg.HooksToken = os.Getenv("EDI_HOOKS_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold for the gateway to start.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.DispatchDefaultTimeout <= 0 {
		return fmt.Errorf("dispatch default timeout must be positive, got %v", c.DispatchDefaultTimeout)
	}
	if c.DispatchMaxTurns < 1 {
		return fmt.Errorf("dispatch max turns must be at least 1, got %d", c.DispatchMaxTurns)
	}
	if c.DispatchDefaultWorkdir == "" {
		return fmt.Errorf("dispatch default workdir must not be empty")
	}
	if c.ThreadsDir == "" {
		return fmt.Errorf("threads directory must not be empty")
	}
	return nil
}

// loadSecret resolves a secret from an environment variable, then a file,
// returning "" (meaning authentication is disabled) if neither is present.
func loadSecret(envVar, filePath string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func stringEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func intEnv(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
