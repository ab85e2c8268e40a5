// Package browser provides a client for the headless browser sidecar that prints slips to PDF.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

const (
	// DefaultRenderTimeout bounds page load plus PDF production.
	DefaultRenderTimeout = 60 * time.Second

	maxPDFBytes = 20 << 20
)

var pdfMagic = []byte("%PDF-")

// PDFRequest is the body posted to the sidecar's PDF endpoint.
type PDFRequest struct {
	HTML            string `json:"html"`
	Format          string `json:"format"`
	PrintBackground bool   `json:"printBackground"`
	WaitUntil       string `json:"waitUntil,omitempty"`
	Timeout         int    `json:"timeout,omitempty"` // milliseconds
}

// HealthResponse is the health check response from the sidecar.
type HealthResponse struct {
	Status       string `json:"status"` // ok, degraded, error
	Version      string `json:"version"`
	BrowserReady bool   `json:"browserReady"`
	Uptime       int    `json:"uptime"` // seconds
}

// RenderError reports a failed conversion. StatusCode is zero when the
// sidecar was never reached or the deadline expired.
type RenderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RenderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("browser: render failed with status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("browser: render failed: %s: %v", e.Message, e.Err)
	default:
		return "browser: render failed: " + e.Message
	}
}

func (e *RenderError) Unwrap() error { return e.Err }

// Client is an HTTP client for the browser sidecar service.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	renderTimeout time.Duration
	logger        *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRenderTimeout overrides DefaultRenderTimeout. Non-positive values are ignored.
func WithRenderTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.renderTimeout = d
		}
	}
}

// NewClient creates a new browser sidecar client.
// baseURL should be the sidecar service URL (e.g., "http://localhost:3000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		renderTimeout: DefaultRenderTimeout,
		logger:        logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RenderPDF prints an HTML document to an A4 PDF. The deadline covers the
// whole round trip; a response that is not a PDF is a *RenderError.
func (c *Client) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.renderTimeout)
	defer cancel()

	body, err := json.Marshal(PDFRequest{
		HTML:            html,
		Format:          "A4",
		PrintBackground: true,
		WaitUntil:       "networkidle",
		Timeout:         int(c.renderTimeout / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("browser: marshal pdf request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/pdf", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("browser: create pdf request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/pdf")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := "request failed"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", c.renderTimeout)
		}
		return nil, &RenderError{Message: msg, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, &RenderError{Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RenderError{StatusCode: resp.StatusCode, Message: sidecarMessage(data)}
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, &RenderError{Message: "response is not a PDF document"}
	}

	c.logger.Debug("slip rendered", "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

// sidecarMessage extracts {"error": "..."} from a failure body, falling back to the raw text.
func sidecarMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

// Health checks the health of the browser sidecar.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("browser: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("browser: health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("browser: decode health response: %w", err)
	}

	return &health, nil
}

// IsReady checks if the browser sidecar is ready to accept requests.
func (c *Client) IsReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
