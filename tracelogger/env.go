package tracelogger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consumed by FromEnv.
const (
	EnvServiceName = "TRACE_LOGGER_SERVICE_NAME"
	EnvEnvironment = "ENV"
	EnvAPIURL      = "TRACE_LOGGER_API_URL"
	EnvBaseURL     = "INTERNAL_API_BASE_URL"
	EnvRedactKeys  = "TRACE_LOGGER_REDACT_KEYS"
	EnvEnabled     = "TRACE_LOGGER_ENABLED"
)

// FromEnv builds a Config from the process environment. Missing required
// fields are reported by New, not here.
func FromEnv() Config {
	cfg := Config{
		ServiceName: os.Getenv(EnvServiceName),
		Environment: os.Getenv(EnvEnvironment),
		APIURL:      os.Getenv(EnvAPIURL),
	}
	if cfg.Environment == "" {
		cfg.Environment = "local"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv(EnvBaseURL)
	}
	if raw := os.Getenv(EnvRedactKeys); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.RedactKeys = append(cfg.RedactKeys, key)
			}
		}
	}
	if raw := os.Getenv(EnvEnabled); raw != "" {
		enabled := strings.EqualFold(raw, "true")
		cfg.Enabled = &enabled
	}
	return cfg
}

// LoadFile reads a YAML config file. Fields left empty fall back to the
// zero Config semantics; callers typically merge the result with FromEnv.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
