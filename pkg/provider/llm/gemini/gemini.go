// Package gemini implements llm.Backend against the Google Gemini REST API
// directly, without an SDK.
//
// The direct client exists for one reason: outbound proxy support. Home
// deployments frequently sit behind an HTTP or SOCKS5 proxy, and the
// multi-provider backend in pkg/provider/llm/anyllm offers no way to route
// its traffic through one. This client accepts an explicit proxy URL and
// builds its transport accordingly.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// Compile-time assertion that Backend satisfies llm.Backend.
var _ llm.Backend = (*Backend)(nil)

// Backend is a direct Gemini REST client.
type Backend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend) error

// WithEndpoint overrides the API base URL, mainly for tests.
func WithEndpoint(base string) Option {
	return func(b *Backend) error {
		b.endpoint = strings.TrimRight(base, "/")
		return nil
	}
}

// WithProxy routes all requests through the given proxy URL. Supported
// schemes: http, https (CONNECT tunnelling) and socks5.
func WithProxy(proxyURL string) Option {
	return func(b *Backend) error {
		if proxyURL == "" {
			return nil
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("gemini: parse proxy url: %w", err)
		}
		transport, err := proxyTransport(u)
		if err != nil {
			return err
		}
		b.client.Transport = transport
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. It overrides
// any transport installed by WithProxy, so pass it first.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) error {
		b.client = c
		return nil
	}
}

// New creates a Backend for the given model. The API key is sent via the
// x-goog-api-key header on every request.
func New(apiKey, model string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}
	b := &Backend{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// proxyTransport builds an http.Transport that tunnels through the proxy.
func proxyTransport(u *url.URL) (*http.Transport, error) {
	switch u.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5":
		var auth *xproxy.Auth
		if u.User != nil {
			pw, _ := u.User.Password()
			auth = &xproxy.Auth{User: u.User.Username(), Password: pw}
		}
		dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("gemini: socks5 proxy: %w", err)
		}
		dialCtx := func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
		return &http.Transport{DialContext: dialCtx}, nil
	default:
		return nil, fmt.Errorf("gemini: unsupported proxy scheme %q", u.Scheme)
	}
}

// Wire types for the generateContent endpoint.

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Complete implements llm.Backend.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (string, error) {
	body, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", b.endpoint, b.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: gemini %s: %v", llm.ErrRemoteCallFailed, b.model, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: read response: %v", llm.ErrRemoteCallFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: gemini: status %d: %s", llm.ErrRemoteCallFailed, resp.StatusCode, truncate(payload, 200))
	}

	var out generateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("%w: gemini: decode response: %v", llm.ErrInvalidResponse, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini: no candidates", llm.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: gemini: empty reply text", llm.ErrInvalidResponse)
	}
	return text, nil
}

// buildRequest maps conversation turns onto Gemini's wire shape. The system
// turn becomes systemInstruction; assistant turns use Gemini's "model" role.
func (b *Backend) buildRequest(req llm.Request) generateRequest {
	out := generateRequest{}

	for _, t := range req.Turns {
		switch t.Role {
		case llm.RoleSystem:
			out.SystemInstruction = &content{Parts: []part{{Text: t.Content}}}
		case llm.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: t.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: t.Content}}})
		}
	}

	if req.Temperature != 0 || req.MaxTokens > 0 {
		cfg := &generationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature != 0 {
			t := req.Temperature
			cfg.Temperature = &t
		}
		out.GenerationConfig = cfg
	}
	return out
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
