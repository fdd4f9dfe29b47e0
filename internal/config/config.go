// Package config loads the service configuration: defaults, then a TOML
// file, then CODETUTOR_* environment variables (env wins). Missing
// collaborator credentials select degraded modes at startup, never
// process failure.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Sandbox  SandboxConfig  `toml:"sandbox"`
	Explain  ExplainConfig  `toml:"explain"`
	Database DatabaseConfig `toml:"database"`
	Observer ObserverConfig `toml:"observer"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type SandboxConfig struct {
	// Backend is http, docker, subprocess, or auto. Auto picks http when
	// URL is set, docker when a daemon answers, subprocess otherwise.
	Backend     string `toml:"backend"`
	URL         string `toml:"url"`
	TimeoutSecs int    `toml:"timeout_seconds"`
	PythonBin   string `toml:"python_bin"`
	NodeBin     string `toml:"node_bin"`
	PythonImage string `toml:"python_image"`
	NodeImage   string `toml:"node_image"`
}

type ExplainConfig struct {
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	TimeoutSecs int    `toml:"timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Sandbox: SandboxConfig{
			Backend:     "auto",
			TimeoutSecs: 30,
			PythonBin:   "python3",
			NodeBin:     "node",
			PythonImage: "python:3.12-alpine",
			NodeImage:   "node:22-alpine",
		},
		Explain:  ExplainConfig{Model: "gemini-2.5-flash", TimeoutSecs: 60},
		Database: DatabaseConfig{Path: "codetutor.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CODETUTOR_CONFIG")
	}
	if path == "" {
		path = "codetutor.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CODETUTOR_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CODETUTOR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CODETUTOR_SANDBOX_BACKEND"); v != "" {
		cfg.Sandbox.Backend = v
	}
	if v := os.Getenv("CODETUTOR_SANDBOX_URL"); v != "" {
		cfg.Sandbox.URL = v
	}
	if v := os.Getenv("CODETUTOR_GEMINI_API_KEY"); v != "" {
		cfg.Explain.APIKey = v
	}
	if v := os.Getenv("CODETUTOR_GEMINI_MODEL"); v != "" {
		cfg.Explain.Model = v
	}
	if v := os.Getenv("CODETUTOR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CODETUTOR_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	if cfg.Sandbox.Backend == "" {
		cfg.Sandbox.Backend = "auto"
	}

	return cfg
}
