package backendclient

import (
	"context"
	"net/http"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// OpenAIClient is the adapter for OpenAI's wire format and any
// OpenAI-wire-compatible endpoint: DeepSeek, GLM, Qwen, and similar
// providers are all thin variations over the same chat/completions +
// /models shape.
type OpenAIClient struct {
	base
	organization string
}

// NewOpenAIClient builds an adapter for an OpenAI-compatible provider.
func NewOpenAIClient(baseURL, organization string, headerOverrides map[string]string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		base: base{
			baseURL:         baseURL,
			headerOverrides: headerOverrides,
			httpClient:      &http.Client{Timeout: timeout},
		},
		organization: organization,
	}
}

func (c *OpenAIClient) BackendType() gatewaytypes.Dialect { return gatewaytypes.DialectOpenAI }

func (c *OpenAIClient) BuildRequestHeaders(auth, contentType string) map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + auth,
		"Content-Type":  contentType,
	}
	if c.organization != "" {
		h["OpenAI-Organization"] = c.organization
	}
	return c.applyOverrides(h)
}

func (c *OpenAIClient) ChatCompletionsRaw(ctx context.Context, headers map[string]string, body []byte) ([]byte, int, error) {
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/chat/completions", headers, body)
}

func (c *OpenAIClient) Models(ctx context.Context, token string) error {
	headers := c.BuildRequestHeaders(token, "application/json")
	_, _, err := doRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/v1/models", headers, nil)
	return err
}

func (c *OpenAIClient) HealthCheck(ctx context.Context, token string) error {
	if isHTTPBinProbe(c.baseURL) {
		return httpBinHealthCheck(ctx, c.httpClient, c.baseURL)
	}
	return c.Models(ctx, token)
}

func (c *OpenAIClient) ConvertConfigToJSON(cfg gatewaytypes.Provider) ([]byte, error) {
	return marshalConfig(struct {
		BaseURL      string `json:"base_url"`
		Organization string `json:"organization,omitempty"`
	}{BaseURL: cfg.BaseURL, Organization: c.organization})
}
