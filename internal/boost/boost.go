// Package boost rewrites a prompt through the relay's boost endpoint.
package boost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"chorus/internal/models"
)

// MaxPromptChars is the longest prompt accepted for boosting or sending
const MaxPromptChars = 4000

// Common error types
var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = fmt.Errorf("prompt exceeds %d characters", MaxPromptChars)
	ErrEmptyResult   = errors.New("boost returned no text")
)

// ValidatePrompt checks the prompt limits shared by boost and send
func ValidatePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > MaxPromptChars {
		return ErrPromptTooLong
	}
	return nil
}

// Client calls the boost endpoint
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sends the key as a bearer token
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
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

// New creates a boost client for the given endpoint URL
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Boost returns the rewritten prompt
func (c *Client) Boost(ctx context.Context, prompt string) (string, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"prompt": strings.TrimSpace(prompt)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &models.NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &models.RequestError{Status: resp.StatusCode}
		if msg := gjson.GetBytes(data, "error"); msg.Type == gjson.String {
			reqErr.Message = strings.TrimSpace(msg.Str)
		}
		return "", reqErr
	}

	boosted := strings.TrimSpace(gjson.GetBytes(data, "boostedPrompt").String())
	if boosted == "" {
		return "", ErrEmptyResult
	}
	return boosted, nil
}

// BoostOrOriginal boosts the prompt, returning the original text and false
// when boosting fails for any reason
func (c *Client) BoostOrOriginal(ctx context.Context, prompt string) (string, bool) {
	boosted, err := c.Boost(ctx, prompt)
	if err != nil {
		c.logger.Warn("prompt boost failed, using original", "error", err)
		return prompt, false
	}
	c.logger.Debug("prompt boosted", "from", utf8.RuneCountInString(prompt), "to", utf8.RuneCountInString(boosted))
	return boosted, true
}
