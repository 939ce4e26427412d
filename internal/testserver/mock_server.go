// Package testserver provides a mock internal observability API for tests.
package testserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Received is one record as seen by the mock API, together with the
// endpoint it arrived on and the request headers.
type Received struct {
	Path    string
	Record  map[string]any
	Headers http.Header
}

type envelope struct {
	Records          []map[string]any `json:"records"`
	IngestionVersion int              `json:"ingestion_version"`
}

// Server is a scriptable stand-in for the internal observability API. It
// rejects requests with a bad signature or service name and can be told to
// fail the next N requests.
type Server struct {
	service string
	secret  []byte

	srv *httptest.Server

	mu       sync.Mutex
	received []Received
	requests int
	failures int
	failCode int
	recordCh chan Received
}

// Start launches the mock API expecting the given service name and HMAC
// secret.
func Start(service, secret string) *Server {
	s := &Server{
		service:  service,
		secret:   []byte(secret),
		failCode: http.StatusInternalServerError,
		recordCh: make(chan Received, 100),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the mock API base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Stop shuts the mock API down.
func (s *Server) Stop() {
	s.srv.Close()
}

// FailNext makes the next n requests answer with the given status before
// normal handling resumes.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failCode = status
}

// Requests returns how many ingestion requests were received, including
// scripted failures.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// ReceivedRecords returns all accepted records so far.
func (s *Server) ReceivedRecords() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// WaitForRecord blocks until the mock API accepts a record or the timeout
// elapses.
func (s *Server) WaitForRecord(timeout time.Duration) (Received, error) {
	select {
	case rec := <-s.recordCh:
		return rec, nil
	case <-time.After(timeout):
		return Received{}, fmt.Errorf("no record received within %s", timeout)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/observability/logs" && r.URL.Path != "/observability/error-logs" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	s.mu.Lock()
	s.requests++
	if s.failures > 0 {
		s.failures--
		code := s.failCode
		s.mu.Unlock()
		w.WriteHeader(code)
		return
	}
	s.mu.Unlock()

	if r.Header.Get("X-Service-Name") != s.service {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !s.validSignature(r.Header.Get("X-Internal-Signature"), body) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.IngestionVersion != 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, record := range env.Records {
		rec := Received{
			Path:    r.URL.Path,
			Record:  record,
			Headers: r.Header.Clone(),
		}
		s.mu.Lock()
		s.received = append(s.received, rec)
		s.mu.Unlock()
		select {
		case s.recordCh <- rec:
		default:
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) validSignature(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
