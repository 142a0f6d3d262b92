// Package backendclient defines the uniform interface the gateway core
// consumes to reach an upstream provider (component C6) and three thin
// dialect adapters over it.
//
// Per spec, only the interface and the header/auth/URL-construction/
// health-probe shape are in scope here — SSE framing, role translation,
// and response-envelope conversion between OpenAI/Claude/Gemini wire
// formats are left to the caller; this package never inspects a chat
// payload, it only forwards bytes.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// Client is the interface the route coordinator and health checker consume
// for every upstream dialect.
type Client interface {
	// BackendType reports which wire dialect this client speaks.
	BackendType() gatewaytypes.Dialect
	// BaseURL returns the provider's configured base URL.
	BaseURL() string
	// BuildRequestHeaders assembles the headers for an upstream call given
	// the bearer/API-key value and content type, folding in any configured
	// header overrides.
	BuildRequestHeaders(auth, contentType string) map[string]string
	// ChatCompletionsRaw forwards an already-dialect-shaped request body
	// verbatim and returns the raw response body, HTTP status, and any
	// transport error. No payload inspection happens here.
	ChatCompletionsRaw(ctx context.Context, headers map[string]string, body []byte) (respBody []byte, statusCode int, err error)
	// Models calls the dialect's list-models endpoint, used both as a
	// per-token health probe and for recovery sweeps.
	Models(ctx context.Context, token string) error
	// HealthCheck performs the provider's health probe: a well-known test
	// host gets a plain GET, everything else defers to Models.
	HealthCheck(ctx context.Context, token string) error
	// ConvertConfigToJSON serializes the provider's dialect-specific wire
	// configuration (out of scope to detail further — no payload body
	// translation lives here).
	ConvertConfigToJSON(cfg gatewaytypes.Provider) ([]byte, error)
}

// base holds the fields every thin adapter needs; adapters embed it.
type base struct {
	baseURL         string
	headerOverrides map[string]string
	httpClient      *http.Client
}

func (b *base) BaseURL() string { return b.baseURL }

func (b *base) applyOverrides(headers map[string]string) map[string]string {
	for k, v := range b.headerOverrides {
		headers[k] = v
	}
	return headers
}

// isHTTPBinProbe reports whether baseURL is the well-known test host that
// gets a plain status-code GET instead of a dialect Models call.
func isHTTPBinProbe(baseURL string) bool {
	return strings.Contains(baseURL, "httpbin.org")
}

func httpBinHealthCheck(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status/200", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpbin probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		return respBody, resp.StatusCode, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return respBody, resp.StatusCode, nil
}

func marshalConfig(v any) ([]byte, error) {
	return json.Marshal(v)
}
