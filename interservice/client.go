// Package interservice is the shared authenticated HTTP client used to
// reach internal APIs. It owns authentication, transport and retry policy;
// callers hand it a serializable payload and a path.
package interservice

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"
)

const (
	// EnvAuthSecret names the environment variable holding the shared
	// HMAC secret for internal calls.
	EnvAuthSecret = "INTERNAL_AUTH_SECRET"
	// EnvBaseURL names the environment variable holding the internal API
	// base URL.
	EnvBaseURL = "INTERNAL_API_BASE_URL"

	defaultBaseURL = "http://internal-api:8005"
	defaultTimeout = 10 * time.Second

	logsPath      = "/observability/logs"
	errorLogsPath = "/observability/error-logs"

	defaultMaxAttempts = 3
	baseBackoff        = 250 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// Options configures a Client. Zero values fall back to environment
// variables and built-in defaults.
type Options struct {
	// BaseURL overrides EnvBaseURL. A trailing slash is trimmed.
	BaseURL string
	// Secret overrides EnvAuthSecret.
	Secret string
	// MaxAttempts caps delivery attempts per call, including the first.
	MaxAttempts int
	// Version is sent as the X-Trace-Logger-Version header when set.
	Version string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client POSTs signed JSON payloads to the internal observability API.
// Safe for concurrent use.
type Client struct {
	baseURL     string
	service     string
	secret      []byte
	version     string
	maxAttempts int
	client      *http.Client
	logger      *slog.Logger
}

// NewClient builds a client identified as the given service. The auth
// secret is required: construction fails when neither Options.Secret nor
// INTERNAL_AUTH_SECRET provides one.
func NewClient(service string, opts Options) (*Client, error) {
	if service == "" {
		return nil, errors.New("interservice: service name required")
	}

	secret := opts.Secret
	if secret == "" {
		secret = os.Getenv(EnvAuthSecret)
	}
	if secret == "" {
		return nil, fmt.Errorf("interservice: auth secret required (set %s)", EnvAuthSecret)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv(EnvBaseURL)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Client{
		baseURL:     baseURL,
		service:     service,
		secret:      []byte(secret),
		version:     opts.Version,
		maxAttempts: maxAttempts,
		client:      client,
		logger:      logger,
	}, nil
}

// BaseURL returns the resolved internal API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendLog delivers one observability payload to the log ingestion endpoint.
func (c *Client) SendLog(ctx context.Context, payload any) error {
	return c.post(ctx, logsPath, payload)
}

// SendErrorLog delivers one observability payload to the error-log
// ingestion endpoint.
func (c *Client) SendErrorLog(ctx context.Context, payload any) error {
	return c.post(ctx, errorLogsPath, payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	signature := sign(c.secret, body)

	backoff := baseBackoff
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Service-Name", c.service)
		req.Header.Set("X-Internal-Signature", signature)
		if c.version != "" {
			req.Header.Set("X-Trace-Logger-Version", c.version)
		}

		resp, err := c.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("post %s: status %d", path, resp.StatusCode)
			if !isRetryableStatus(resp.StatusCode) {
				return lastErr
			}
		} else {
			lastErr = fmt.Errorf("post %s: %w", path, err)
			if !isRetryableError(err) {
				return lastErr
			}
		}

		if attempt == c.maxAttempts-1 {
			break
		}

		c.logger.Debug("interservice call retrying",
			"path", path,
			"attempt", attempt+1,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return lastErr
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func jitter(base time.Duration) time.Duration {
	factor := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(base) * factor)
}

func isRetryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status < 600
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A canceled or expired context belongs to the caller; retrying would
	// only delay its unwinding.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ECONNABORTED),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH),
			errors.Is(opErr.Err, syscall.ENETUNREACH):
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
