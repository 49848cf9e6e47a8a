// Package httpapi provides a provider adapter that speaks a small
// JSON-over-HTTP protocol:
//
//	POST {base_url}/v1/{capability}
//	{"prompt": "...", "params": {"aspect_ratio": "9:16"}}
//
//	200 {"uri": "...", "mime_type": "...", "content": "...", "metadata": {}}
//	4xx/5xx {"error": {"code": "...", "message": "..."}}
//
// Status codes map onto provider error kinds so the execution layer can pick
// a recovery path.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/provider"
)

const (
	// ID is the adapter name used in fallback chains.
	ID = config.AdapterHTTP

	// defaultTimeout is the HTTP client timeout when none is configured.
	defaultTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10

	// codeContentPolicy marks a 400 response as a policy rejection.
	codeContentPolicy = "content_policy"
)

// Client is the HTTP provider adapter.
type Client struct {
	id         string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the given endpoint.
func New(cfg config.HTTPProviderConfig, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.NewConfigurationError("http provider requires a base url", nil).
			WithKey("providers.http.base_url")
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		id:         ID,
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type generateRequest struct {
	Prompt string            `json:"prompt"`
	Params map[string]string `json:"params,omitempty"`
}

type generateResponse struct {
	URI      string            `json:"uri"`
	MIMEType string            `json:"mime_type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) ID() string { return c.id }

func (c *Client) GenerateText(ctx context.Context, req provider.TextRequest) (*provider.Artifact, error) {
	params := withParam(req.Params, provider.ParamSystem, req.System)
	if req.MaxTokens > 0 {
		params = withParam(params, "max_tokens", fmt.Sprint(req.MaxTokens))
	}
	return c.generate(ctx, provider.Text, req.Prompt, params)
}

func (c *Client) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Artifact, error) {
	params := withParam(req.Params, provider.ParamAspectRatio, req.AspectRatio)
	params = withParam(params, provider.ParamStyle, req.Style)
	return c.generate(ctx, provider.Image, req.Prompt, params)
}

func (c *Client) GenerateVideo(ctx context.Context, req provider.VideoRequest) (*provider.Artifact, error) {
	params := withParam(req.Params, provider.ParamAspectRatio, req.AspectRatio)
	params = withParam(params, provider.ParamReference, req.ReferenceImage)
	if req.DurationSeconds > 0 {
		params = withParam(params, provider.ParamDuration, fmt.Sprint(req.DurationSeconds))
	}
	return c.generate(ctx, provider.Video, req.Prompt, params)
}

func (c *Client) SynthesizeSpeech(ctx context.Context, req provider.SpeechRequest) (*provider.Artifact, error) {
	return c.generate(ctx, provider.Speech, req.Text, withParam(req.Params, provider.ParamVoice, req.Voice))
}

func (c *Client) generate(ctx context.Context, capability provider.Capability, prompt string, params map[string]string) (*provider.Artifact, error) {
	reqBytes, err := json.Marshal(generateRequest{Prompt: prompt, Params: params})
	if err != nil {
		return nil, c.fail(capability, errors.KindTerminal, "marshal request", err)
	}

	url := fmt.Sprintf("%s/v1/%s", c.baseURL, capability)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, c.fail(capability, errors.KindTerminal, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and cancellation are transient; connection failures mean
		// the provider is down and the chain should move on.
		kind := errors.KindUnavailable
		if ctx.Err() != nil || isTimeout(err) {
			kind = errors.KindRetryable
		}
		return nil, c.fail(capability, kind, "send request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind, msg := classifyStatus(resp.StatusCode, body)
		c.logger.Debug("provider rejected call",
			"capability", capability,
			"status", resp.StatusCode,
			"kind", kind.String(),
		)
		return nil, c.fail(capability, kind, msg, nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, c.fail(capability, errors.KindRetryable, "decode response", err)
	}
	if out.URI == "" && out.Content == "" {
		return nil, c.fail(capability, errors.KindRetryable, "empty response from provider", nil)
	}

	return &provider.Artifact{
		Capability: capability,
		ProviderID: c.id,
		URI:        out.URI,
		MIMEType:   out.MIMEType,
		Content:    out.Content,
		Latency:    time.Since(start),
		Metadata:   out.Metadata,
	}, nil
}

func (c *Client) fail(capability provider.Capability, kind errors.ProviderKind, msg string, cause error) error {
	return errors.NewProviderError(kind, msg, cause).WithProvider(c.id).WithCapability(string(capability))
}

// classifyStatus maps an HTTP status (and the error code in the body, if
// any) to a provider error kind.
func classifyStatus(status int, body []byte) (errors.ProviderKind, string) {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	msg := fmt.Sprintf("status %d", status)
	code := ""
	if parsed.Error != nil {
		code = parsed.Error.Code
		if parsed.Error.Message != "" {
			msg = fmt.Sprintf("status %d: %s", status, parsed.Error.Message)
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		msg = fmt.Sprintf("status %d: %s", status, text)
	}

	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status == http.StatusGatewayTimeout:
		return errors.KindRetryable, msg
	case status == http.StatusUnprocessableEntity,
		status == http.StatusBadRequest && code == codeContentPolicy:
		return errors.KindPolicy, msg
	case status >= 500:
		return errors.KindUnavailable, msg
	default:
		return errors.KindTerminal, msg
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// withParam returns params with key set, copying so the caller's map is left
// untouched. Empty values are skipped.
func withParam(params map[string]string, key, value string) map[string]string {
	if value == "" {
		return params
	}
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[key] = value
	return out
}

var _ provider.Adapter = (*Client)(nil)
