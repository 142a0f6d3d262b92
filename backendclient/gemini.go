package backendclient

import (
	"context"
	"net/http"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// GeminiClient is the thin adapter for Google's Gemini dialect, which
// authenticates via a query-string API key rather than a header.
type GeminiClient struct {
	base
}

// NewGeminiClient builds an adapter for a Gemini-dialect provider.
func NewGeminiClient(baseURL string, headerOverrides map[string]string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{base: base{
		baseURL:         baseURL,
		headerOverrides: headerOverrides,
		httpClient:      &http.Client{Timeout: timeout},
	}}
}

func (c *GeminiClient) BackendType() gatewaytypes.Dialect { return gatewaytypes.DialectGemini }

func (c *GeminiClient) BuildRequestHeaders(auth, contentType string) map[string]string {
	// Gemini takes its key as a query parameter; the header set here only
	// carries content negotiation, folded in by the caller's URL builder.
	h := map[string]string{"Content-Type": contentType}
	return c.applyOverrides(h)
}

func (c *GeminiClient) ChatCompletionsRaw(ctx context.Context, headers map[string]string, body []byte) ([]byte, int, error) {
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1beta/models:generateContent", headers, body)
}

func (c *GeminiClient) Models(ctx context.Context, token string) error {
	headers := c.BuildRequestHeaders(token, "application/json")
	_, _, err := doRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/v1beta/models?key="+token, headers, nil)
	return err
}

func (c *GeminiClient) HealthCheck(ctx context.Context, token string) error {
	if isHTTPBinProbe(c.baseURL) {
		return httpBinHealthCheck(ctx, c.httpClient, c.baseURL)
	}
	return c.Models(ctx, token)
}

func (c *GeminiClient) ConvertConfigToJSON(cfg gatewaytypes.Provider) ([]byte, error) {
	return marshalConfig(struct {
		BaseURL string `json:"base_url"`
	}{BaseURL: cfg.BaseURL})
}
