// Package imagegen calls the external image synthesis service that produces
// storybook page illustrations.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one page illustration job.
type Request struct {
	Prompt             string   `json:"prompt"`
	ReferenceImageURLs []string `json:"referenceImageUrls,omitempty"`
	OutputFormat       string   `json:"outputFormat"`
	AspectRatio        string   `json:"aspectRatio"`
}

// Result is the synthesis service's answer for one job.
type Result struct {
	ImageURL string `json:"imageUrl"`
}

// Generator produces page illustrations. The HTTP client below is the
// production implementation; tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// Client talks to the image synthesis endpoint over HTTP.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an image synthesis client with an explicit request
// timeout. Generation calls are slow, so the timeout must come from
// configuration rather than a transport default.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate submits one synthesis job and returns the hosted image location.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("imagegen: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagegen: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("imagegen: service returned %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("imagegen: decoding response: %w", err)
	}
	if result.ImageURL == "" {
		return nil, fmt.Errorf("imagegen: service returned no image URL")
	}
	return &result, nil
}

// Fetch downloads a generated image.
func (c *Client) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: building fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagegen: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: image fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagegen: reading image body: %w", err)
	}
	return data, nil
}
