package backendclient

import (
	"context"
	"net/http"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// claudeAPIVersion is the version header Anthropic's API requires on
// every call (grounded on providers/anthropic/provider.go's buildHeaders).
const claudeAPIVersion = "2023-06-01"

// ClaudeClient is the thin adapter for Anthropic's Claude dialect.
type ClaudeClient struct {
	base
}

// NewClaudeClient builds an adapter for a Claude-dialect provider.
func NewClaudeClient(baseURL string, headerOverrides map[string]string, timeout time.Duration) *ClaudeClient {
	return &ClaudeClient{base: base{
		baseURL:         baseURL,
		headerOverrides: headerOverrides,
		httpClient:      &http.Client{Timeout: timeout},
	}}
}

func (c *ClaudeClient) BackendType() gatewaytypes.Dialect { return gatewaytypes.DialectClaude }

func (c *ClaudeClient) BuildRequestHeaders(auth, contentType string) map[string]string {
	h := map[string]string{
		"x-api-key":         auth,
		"anthropic-version": claudeAPIVersion,
		"Content-Type":      contentType,
		"Accept":            "application/json",
	}
	return c.applyOverrides(h)
}

func (c *ClaudeClient) ChatCompletionsRaw(ctx context.Context, headers map[string]string, body []byte) ([]byte, int, error) {
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/messages", headers, body)
}

// Models probes Claude's model-list endpoint. Anthropic's API exposes this
// under the same path used for the health probe in provider.go.
func (c *ClaudeClient) Models(ctx context.Context, token string) error {
	headers := c.BuildRequestHeaders(token, "application/json")
	_, _, err := doRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/v1/models", headers, nil)
	return err
}

func (c *ClaudeClient) HealthCheck(ctx context.Context, token string) error {
	if isHTTPBinProbe(c.baseURL) {
		return httpBinHealthCheck(ctx, c.httpClient, c.baseURL)
	}
	return c.Models(ctx, token)
}

func (c *ClaudeClient) ConvertConfigToJSON(cfg gatewaytypes.Provider) ([]byte, error) {
	return marshalConfig(struct {
		BaseURL       string `json:"base_url"`
		AnthropicVers string `json:"anthropic_version"`
	}{BaseURL: cfg.BaseURL, AnthropicVers: claudeAPIVersion})
}
