package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr = "localhost:50051"

	envAddr   = "SIDECAR_ADDR"
	envToken  = "SIDECAR_TOKEN"
	envConfig = "SIDECAR_CONFIG"
)

// Permission modes for the permission callback.
const (
	permReadOnly = "read-only"
	permBypass   = "bypass"
	permPrompt   = "prompt"
	permDeny     = "deny"
)

// Config is the sidecarctl configuration, loaded from a YAML file and
// overridden by the environment and then by flags.
type Config struct {
	Addr            string        `yaml:"addr"`
	Token           string        `yaml:"token"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	LogDir          string        `yaml:"log_dir"`
	Permissions     string        `yaml:"permissions"`
	Model           string        `yaml:"model"`
	PermissionMode  string        `yaml:"permission_mode"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
}

func defaultConfig() Config {
	return Config{
		Addr:        defaultAddr,
		LogLevel:    "info",
		LogFormat:   "text",
		Permissions: permReadOnly,
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error
// unless required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

// applyEnv overrides the address and token from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(envAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(envToken); ok && v != "" {
		c.Token = v
	}
}

func (c Config) validate() error {
	switch c.Permissions {
	case permReadOnly, permBypass, permPrompt, permDeny:
	default:
		return fmt.Errorf("unknown permissions mode %q (want %s, %s, %s or %s)",
			c.Permissions, permReadOnly, permBypass, permPrompt, permDeny)
	}
	if c.CallbackTimeout < 0 {
		return fmt.Errorf("callback_timeout must not be negative")
	}
	return nil
}
