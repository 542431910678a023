// ABOUTME: Unit tests for the retrying API client
// ABOUTME: Uses httptest servers to exercise retries, backoff, and error mapping
package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *apiClient {
	client := newAPIClient(serverURL, "test-token")
	// Keep test runtime flat
	client.baseDelay = time.Millisecond
	client.maxDelay = 5 * time.Millisecond
	return client
}

func TestGetJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/things", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	var out struct {
		Name string `json:"name"`
	}
	query := url.Values{"limit": {"5"}}
	err := client.getJSON(context.Background(), "/things", query, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Name)
}

func TestRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.getJSON(context.Background(), "/things", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetriesOn500UntilCeiling(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.getJSON(context.Background(), "/things", nil, nil)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected APIError, got %T", err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	// Initial attempt plus maxRetries
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"bad filter"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.getJSON(context.Background(), "/things", nil, nil)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad filter", apiErr.Message)

	// 4xx is the caller's fault, retrying won't help
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostJSONSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"total":1}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	var out struct {
		Total int `json:"total"`
	}
	err := client.postJSON(context.Background(), "/search", map[string]string{"q": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
}

func TestRetryDelayBackoff(t *testing.T) {
	client := newAPIClient("http://example.com", "")

	assert.Equal(t, 250*time.Millisecond, client.retryDelay(1, ""))
	assert.Equal(t, 500*time.Millisecond, client.retryDelay(2, ""))
	assert.Equal(t, time.Second, client.retryDelay(3, ""))
	// Capped at maxDelay
	assert.Equal(t, 5*time.Second, client.retryDelay(10, ""))
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	client := newAPIClient("http://example.com", "")

	assert.Equal(t, 2*time.Second, client.retryDelay(1, "2"))
	// Header above the cap is clamped
	assert.Equal(t, 5*time.Second, client.retryDelay(1, "300"))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(10 * time.Second).UTC().Format(time.RFC1123)
	delta := parseRetryAfter(future)
	assert.Greater(t, delta, 5*time.Second)
}

func TestWaitWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitWithContext(ctx, time.Minute)
	assert.Error(t, err)
}
