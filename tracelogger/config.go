package tracelogger

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Config defines the trace logger configuration. It is immutable once a
// TraceLogger has been constructed from it; every capture session created
// by that logger shares it read-only.
type Config struct {
	// ServiceName identifies the emitting service. Required.
	ServiceName string `yaml:"service_name"`
	// Environment is the deployment environment, e.g. "prod" or "staging". Required.
	Environment string `yaml:"environment"`
	// APIURL overrides the internal observability API base URL. A trailing
	// slash is trimmed. When empty, the interservice client resolves its own
	// default.
	APIURL string `yaml:"api_url"`
	// RedactKeys lists payload keys (case-insensitive) masked before export.
	RedactKeys []string `yaml:"redact_keys"`
	// Enabled toggles capturing. nil means enabled.
	Enabled *bool `yaml:"enabled"`
	// ConsoleFallback dumps records through the structured logger when an
	// export fails. nil means enabled.
	ConsoleFallback *bool `yaml:"console_fallback"`

	// AuthSecret overrides the INTERNAL_AUTH_SECRET environment variable
	// consumed by the interservice client.
	AuthSecret string `yaml:"-"`

	HTTPClient *http.Client          `yaml:"-"`
	Logger     *slog.Logger          `yaml:"-"`
	Sender     Sender                `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

func (c Config) validate() error {
	if c.ServiceName == "" {
		return errors.New("service name required")
	}
	if c.Environment == "" {
		return errors.New("environment required")
	}
	return nil
}

func (c Config) normalizedAPIURL() string {
	return strings.TrimRight(c.APIURL, "/")
}

func (c Config) consoleFallback() bool {
	return c.ConsoleFallback == nil || *c.ConsoleFallback
}

func (c Config) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}
