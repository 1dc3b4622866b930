package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fieldlink/internal/config"
	"fieldlink/internal/logging"
)

const maxAnalysisBody = 4 << 20

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements Service against the configured assistant backend.
type Client struct {
	liveURL    string
	analyzeURL string
	apiKey     string
	timeout    time.Duration
	httpClient HTTPDoer
	logger     *slog.Logger
	dial       dialFunc
}

var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDialer overrides the websocket dialer used by OpenLive.
func WithDialer(dial dialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.AI, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		liveURL:    strings.TrimSpace(cfg.LiveURL),
		analyzeURL: strings.TrimRight(strings.TrimSpace(cfg.AnalyzeURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(logging.String(logging.FieldComponent, "ai")),
		dial:       defaultDial,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// AnalyzeAudio sends one buffered utterance for batch analysis.
func (c *Client) AnalyzeAudio(ctx context.Context, input AudioInput) (*Analysis, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("audio input must not be empty")
	}
	payload := map[string]any{
		"audio":    base64.StdEncoding.EncodeToString(input.Data),
		"mimeType": input.MimeType,
	}
	if input.SampleRate > 0 {
		payload["sampleRate"] = input.SampleRate
	}
	if input.Context != "" {
		payload["context"] = input.Context
	}
	return c.analyze(ctx, "/analyze/audio", payload)
}

// AnalyzeFrame sends one video frame for batch analysis.
func (c *Client) AnalyzeFrame(ctx context.Context, input FrameInput) (*Analysis, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("frame input must not be empty")
	}
	payload := map[string]any{
		"frame":    base64.StdEncoding.EncodeToString(input.Data),
		"mimeType": input.MimeType,
	}
	if input.Context != "" {
		payload["context"] = input.Context
	}
	return c.analyze(ctx, "/analyze/frame", payload)
}

func (c *Client) analyze(ctx context.Context, path string, payload map[string]any) (*Analysis, error) {
	if c.analyzeURL == "" {
		return nil, fmt.Errorf("analyze url not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.analyzeURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAnalysisBody))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analysis backend returned HTTP %d", resp.StatusCode)
	}

	var analysis Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	c.logger.Debug("batch analysis complete",
		logging.String("path", path),
		logging.Duration("latency", time.Since(start)))
	return &analysis, nil
}
