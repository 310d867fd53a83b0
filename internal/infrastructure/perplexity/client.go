package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"LinkPilot/internal/config"
	"LinkPilot/internal/domain"
)

const defaultRelevance = 0.8

// Client discovers trends via a Perplexity-compatible web-search chat API.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a finder from configuration.
func NewClient(cfg config.PerplexityConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the strategy inside the discovery registry.
func (c *Client) Name() string {
	return "perplexity"
}

// Find asks the search model for emerging trends on the target's query and
// returns the answer as a trend report.
func (c *Client) Find(ctx context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("perplexity client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": fmt.Sprintf(
				"You are an AI assistant specializing in identifying and summarizing key trending topics within the %s sector.", target.Category)},
			{"role": "user", "content": fmt.Sprintf(
				"Based on current web data, what are the top emerging trends related to '%s' in %s? Provide a concise summary with 2-3 relevant keywords.", target.Query, target.Category)},
		},
		"max_tokens":  500,
		"temperature": 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal perplexity payload: %w", err)
	}

	var raw []byte
	err = retry.Do(
		func() error {
			raw, err = c.post(ctx, body)
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode perplexity response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("perplexity returned no choices")
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if summary == "" {
		return nil, fmt.Errorf("perplexity returned an empty summary")
	}

	return &domain.TrendReport{
		Summary:   summary,
		Relevance: defaultRelevance,
		Raw:       json.RawMessage(raw),
	}, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request trends: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("perplexity error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}
