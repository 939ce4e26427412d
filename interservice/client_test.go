package interservice_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelens/trace-logger-go/internal/testserver"
	"github.com/tracelens/trace-logger-go/interservice"
)

func testPayload() map[string]any {
	return map[string]any{
		"records": []map[string]any{{
			"trace_id":    "trace-1",
			"service":     "payments",
			"environment": "test",
			"direction":   "inbound",
			"route":       "/v1/orders",
			"method":      "GET",
		}},
		"ingestion_version": 1,
	}
}

func newTestClient(t *testing.T, server *testserver.Server, secret string) *interservice.Client {
	t.Helper()
	client, err := interservice.NewClient("payments", interservice.Options{
		BaseURL: server.URL(),
		Secret:  secret,
		Version: "go:test",
	})
	require.NoError(t, err)
	return client
}

func TestClientSignsAndDeliversPayload(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()

	client := newTestClient(t, server, "test-secret")
	require.NoError(t, client.SendLog(context.Background(), testPayload()))

	received, err := server.WaitForRecord(3 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/observability/logs", received.Path)
	assert.Equal(t, "trace-1", received.Record["trace_id"])
	assert.Equal(t, "payments", received.Headers.Get("X-Service-Name"))
	assert.Equal(t, "go:test", received.Headers.Get("X-Trace-Logger-Version"))
	assert.Equal(t, "application/json", received.Headers.Get("Content-Type"))
}

func TestClientSendErrorLogUsesErrorEndpoint(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()

	client := newTestClient(t, server, "test-secret")
	require.NoError(t, client.SendErrorLog(context.Background(), testPayload()))

	received, err := server.WaitForRecord(3 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/observability/error-logs", received.Path)
}

func TestClientRetriesRetryableStatus(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()
	server.FailNext(2, http.StatusServiceUnavailable)

	client := newTestClient(t, server, "test-secret")
	require.NoError(t, client.SendLog(context.Background(), testPayload()))
	assert.Equal(t, 3, server.Requests())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()
	server.FailNext(5, http.StatusInternalServerError)

	client, err := interservice.NewClient("payments", interservice.Options{
		BaseURL:     server.URL(),
		Secret:      "test-secret",
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	err = client.SendLog(context.Background(), testPayload())
	require.ErrorContains(t, err, "status 500")
	assert.Equal(t, 2, server.Requests())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()
	server.FailNext(1, http.StatusBadRequest)

	client := newTestClient(t, server, "test-secret")
	err := client.SendLog(context.Background(), testPayload())
	require.ErrorContains(t, err, "status 400")
	assert.Equal(t, 1, server.Requests())
}

func TestClientRejectedSignature(t *testing.T) {
	server := testserver.Start("payments", "test-secret")
	defer server.Stop()

	client := newTestClient(t, server, "wrong-secret")
	err := client.SendLog(context.Background(), testPayload())
	require.ErrorContains(t, err, "status 401")
	assert.Empty(t, server.ReceivedRecords())
}

func TestNewClientRequiresSecret(t *testing.T) {
	t.Setenv(interservice.EnvAuthSecret, "")

	_, err := interservice.NewClient("payments", interservice.Options{})
	require.ErrorContains(t, err, interservice.EnvAuthSecret)
}

func TestNewClientResolvesBaseURLFromEnv(t *testing.T) {
	t.Setenv(interservice.EnvBaseURL, "http://observability.internal:8005/")

	client, err := interservice.NewClient("payments", interservice.Options{Secret: "test-secret"})
	require.NoError(t, err)
	assert.Equal(t, "http://observability.internal:8005", client.BaseURL())
}

func TestNewClientRequiresServiceName(t *testing.T) {
	_, err := interservice.NewClient("", interservice.Options{Secret: "test-secret"})
	require.ErrorContains(t, err, "service name")
}
