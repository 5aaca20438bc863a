// internal/notify/client.go
// Lifecycle event integration for turn tracking
// Emits fire-and-forget events to a configured HTTP endpoint
package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Source identifies this application in every event
	Source = "chorus"

	// Event types
	EventTurnStarted   = "turn_started"
	EventModelFailed   = "model_failed"
	EventTurnCompleted = "turn_completed"
)

// Event represents a lifecycle event payload
type Event struct {
	Type      string            `json:"type"`
	Source    string            `json:"source"`
	Timestamp int64             `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// Client posts events to the endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	enabled bool
	pending sync.WaitGroup
}

// NewClient creates a client for endpoint. An empty endpoint yields a
// disabled client.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 2 * time.Second, // Short timeout for fire-and-forget
		},
		logger:  logger,
		enabled: endpoint != "",
	}
}

// SetEnabled enables or disables event emission
func (c *Client) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled && c.endpoint != ""
}

// Enabled reports whether events are being sent
func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Emit sends an event asynchronously (fire and forget)
func (c *Client) Emit(eventType string, data map[string]string) {
	if !c.Enabled() {
		return
	}

	event := Event{
		Type:      eventType,
		Source:    Source,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.send(event)
	}()
}

// Flush waits for in-flight events, up to timeout
func (c *Client) Flush(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// send performs the actual HTTP POST (runs in goroutine)
func (c *Client) send(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal notify event", "type", event.Type, "error", err)
		return
	}

	resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		// Connection failures are expected when nothing is listening
		c.logger.Debug("notify endpoint unreachable", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("notify event rejected", "type", event.Type, "status", resp.StatusCode)
	}
}

// TurnStarted emits a turn_started event
func (c *Client) TurnStarted(turnID string, modelIDs []string, mode string) {
	c.Emit(EventTurnStarted, map[string]string{
		"turn_id": turnID,
		"models":  strings.Join(modelIDs, ","),
		"mode":    mode,
	})
}

// ModelFailed emits a model_failed event
func (c *Client) ModelFailed(turnID, modelID, message string) {
	c.Emit(EventModelFailed, map[string]string{
		"turn_id": turnID,
		"model":   modelID,
		"error":   truncate(message, 200),
	})
}

// TurnCompleted emits a turn_completed event
func (c *Client) TurnCompleted(turnID string, succeeded, failed int) {
	status := "success"
	switch {
	case succeeded == 0 && failed > 0:
		status = "failure"
	case failed > 0:
		status = "partial"
	}
	c.Emit(EventTurnCompleted, map[string]string{
		"turn_id":   turnID,
		"status":    status,
		"succeeded": strconv.Itoa(succeeded),
		"failed":    strconv.Itoa(failed),
	})
}

// truncate limits a string to maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
