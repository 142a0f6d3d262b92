package backendclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

func TestOpenAIBuildRequestHeaders(t *testing.T) {
	c := NewOpenAIClient("https://api.openai.com", "org-1", map[string]string{"X-Extra": "v"}, time.Second)
	h := c.BuildRequestHeaders("sk-test", "application/json")
	assert.Equal(t, "Bearer sk-test", h["Authorization"])
	assert.Equal(t, "org-1", h["OpenAI-Organization"])
	assert.Equal(t, "v", h["X-Extra"])
	assert.Equal(t, gatewaytypes.DialectOpenAI, c.BackendType())
}

func TestClaudeBuildRequestHeaders(t *testing.T) {
	c := NewClaudeClient("https://api.anthropic.com", nil, time.Second)
	h := c.BuildRequestHeaders("key", "application/json")
	assert.Equal(t, "key", h["x-api-key"])
	assert.Equal(t, claudeAPIVersion, h["anthropic-version"])
}

func TestModelsProbeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", nil, time.Second)
	err := c.Models(context.Background(), "token")
	require.NoError(t, err)
}

func TestModelsProbeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", nil, time.Second)
	err := c.Models(context.Background(), "token")
	require.Error(t, err)
}

func TestHealthCheckDetectsHTTPBin(t *testing.T) {
	calledModels := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status/200" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calledModels = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", nil, time.Second)
	// Only a base URL containing the sentinel host name is classified as
	// httpbin; the local test server is not, so HealthCheck defers to Models.
	assert.True(t, isHTTPBinProbe("https://httpbin.org"))
	assert.False(t, isHTTPBinProbe(srv.URL))

	err := c.HealthCheck(context.Background(), "token")
	require.NoError(t, err)
	assert.True(t, calledModels)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("openai-primary", NewOpenAIClient("https://api.openai.com", "", nil, time.Second))
	r.Register("claude-primary", NewClaudeClient("https://api.anthropic.com", nil, time.Second))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"claude-primary", "openai-primary"}, r.List())

	c, ok := r.Get("openai-primary")
	require.True(t, ok)
	assert.Equal(t, gatewaytypes.DialectOpenAI, c.BackendType())

	_, err := r.MustGet("missing")
	assert.Error(t, err)
}
