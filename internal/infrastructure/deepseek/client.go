package deepseek

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
	"LinkPilot/internal/ports"
)

// Client implements ports.TextGenerator backed by OpenAI-compatible APIs.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.TextGenerator = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.DeepSeekConfig) *Client {
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// GeneratePost asks the chat model for post copy, steering its style with
// the voice examples.
func (c *Client) GeneratePost(ctx context.Context, prompt string, voiceExamples []string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("deepseek client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("deepseek client misconfigured")
	}

	messages := []map[string]string{
		{"role": "system", "content": safePrompt(c.systemPrompt)},
	}
	if len(voiceExamples) > 0 {
		var sb strings.Builder
		sb.WriteString("Adapt your writing style to match the following examples:\n")
		for _, ex := range voiceExamples {
			fmt.Fprintf(&sb, "- Example: %q\n", ex)
		}
		messages = append(messages, map[string]string{"role": "system", "content": sb.String()})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  400,
		"temperature": 0.75,
	})
	if err != nil {
		return "", fmt.Errorf("marshal deepseek payload: %w", err)
	}

	var text string
	err = retry.Do(
		func() error {
			text, err = c.complete(ctx, body)
			return err
		},
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.MaxDelay(20*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	return text, nil
}

func (c *Client) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("deepseek error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode deepseek response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("deepseek returned empty content")
	}
	return text, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an expert LinkedIn content creator. Professional, insightful, concise."
	}
	return prompt
}
