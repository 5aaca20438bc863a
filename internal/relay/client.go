// Package relay streams model responses from the chat relay endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"chorus/internal/models"
	"chorus/internal/sse"
)

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

// Client talks to the relay's chat endpoint. One Client serves any number
// of concurrent streams.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	registry *models.Registry
	logger   *slog.Logger
	bufSize  int

	maxPending int
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sends the key as a bearer token
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default streaming HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRegistry sets the catalog used to resolve mode system prompts
func WithRegistry(r *models.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReadBuffer sets the chunk size used when reading the stream
func WithReadBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithMaxPending bounds the partial payload each stream's decoder holds
// back while waiting for the rest of it. Zero keeps the decoder default.
func WithMaxPending(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPending = n
		}
	}
}

// New creates a relay client for the given chat endpoint URL
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   NewHTTPClient(DefaultTransportConfig()),
		registry: models.DefaultRegistry(),
		logger:   slog.Default(),
		bufSize:  4096,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ models.Streamer = (*Client)(nil)

type chatRequest struct {
	ModelID      string           `json:"modelId"`
	Messages     []models.Message `json:"messages"`
	SystemPrompt string           `json:"systemPrompt"`
}

// Stream opens one streaming request for req.ModelID
func (c *Client) Stream(ctx context.Context, req models.Request) <-chan models.Event {
	ch := make(chan models.Event, 16)

	go func() {
		defer close(ch)
		send := func(ev models.Event) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		c.run(ctx, req, send)
	}()

	return ch
}

func (c *Client) run(ctx context.Context, req models.Request, send func(models.Event) bool) {
	logger := c.logger.With("model", req.ModelID)

	body, err := json.Marshal(chatRequest{
		ModelID:      req.ModelID,
		Messages:     req.Messages,
		SystemPrompt: c.registry.SystemPrompt(req.Mode),
	})
	if err != nil {
		send(models.Failed(fmt.Errorf("marshal request: %w", err)))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		send(models.Failed(fmt.Errorf("build request: %w", err)))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.Debug("opening stream", "mode", req.Mode, "messages", len(req.Messages))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("relay request failed", "error", err)
		send(models.Failed(&models.NetworkError{Err: err}))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := requestError(resp)
		logger.Warn("relay returned error status", "status", resp.StatusCode, "error", reqErr.Message)
		send(models.Failed(reqErr))
		return
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		send(models.Failed(models.ErrNoResponseBody))
		return
	}

	err = sse.Pump(resp.Body, c.bufSize, send, sse.WithLogger(logger), sse.WithMaxPending(c.maxPending))
	if err != nil && ctx.Err() == nil {
		logger.Warn("stream read failed", "error", err)
		send(models.Failed(&models.NetworkError{Err: err}))
	}
}

// requestError derives the message from a JSON {"error": "..."} body
func requestError(resp *http.Response) *models.RequestError {
	reqErr := &models.RequestError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 || !gjson.ValidBytes(data) {
		return reqErr
	}
	if msg := gjson.GetBytes(data, "error"); msg.Type == gjson.String {
		reqErr.Message = strings.TrimSpace(msg.Str)
	}
	return reqErr
}
