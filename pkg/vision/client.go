// Package vision talks to the OCR/QR sidecar. Scammers increasingly send
// payment QR screenshots instead of typing handles; the sidecar turns an
// image into text and a decoded QR payload the extractor can work on.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hivetrap/hivetrap/pkg/httputil"
)

// Result is what the sidecar read out of one image.
type Result struct {
	Text      string `json:"text"`       // OCR-extracted text
	QRPayload string `json:"qr_payload"` // decoded QR content, empty if none
}

// Client calls the vision sidecar. A nil Client is valid and reports
// itself unavailable, so the engine can hold one unconditionally.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a vision client. An empty baseURL returns nil,
// meaning image handling is disabled.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.Client(httputil.TierMedium),
	}
}

// Available reports whether a sidecar is configured.
func (c *Client) Available() bool {
	return c != nil
}

// Analyze submits a base64-encoded image and returns what the sidecar
// found. Failures are returned to the caller, which treats the image as
// contributing nothing rather than failing the whole turn.
func (c *Client) Analyze(ctx context.Context, imageBase64 string) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("vision sidecar not configured")
	}

	reqBody, err := json.Marshal(map[string]string{"image": imageBase64})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/analyze", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if err := httputil.CheckResponse(resp, "vision sidecar"); err != nil {
		return nil, err
	}

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
