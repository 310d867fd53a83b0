package ideogram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"LinkPilot/internal/config"
	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// Client implements ports.ImageGenerator against the Ideogram API.
type Client struct {
	endpoint    string
	apiKey      string
	aspectRatio string
	httpClient  *http.Client
}

var _ ports.ImageGenerator = (*Client)(nil)

// NewClient builds a client from configuration. Image generation is slow,
// so the timeout is generous.
func NewClient(cfg config.IdeogramConfig) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		aspectRatio: cfg.AspectRatio,
		httpClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// GenerateImage submits a generation request and returns the resulting
// image URL and job id.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*domain.GeneratedImage, error) {
	if c == nil {
		return nil, fmt.Errorf("ideogram client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" {
		return nil, fmt.Errorf("ideogram client misconfigured")
	}
	if aspectRatio == "" {
		aspectRatio = c.aspectRatio
	}

	body, err := json.Marshal(map[string]any{
		"prompt":       prompt,
		"aspect_ratio": aspectRatio,
		"style":        "photorealistic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ideogram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ideogram error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		ImageURL string `json:"image_url"`
		JobID    string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ideogram response: %w", err)
	}
	if parsed.ImageURL == "" {
		return nil, fmt.Errorf("ideogram returned no image url")
	}

	return &domain.GeneratedImage{URL: parsed.ImageURL, JobID: parsed.JobID}, nil
}
