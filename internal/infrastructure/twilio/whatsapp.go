package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"LinkPilot/internal/config"
	"LinkPilot/internal/ports"
)

const defaultBaseURL = "https://api.twilio.com"

// Messenger sends WhatsApp messages through the Twilio REST API.
type Messenger struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
}

var _ ports.Messenger = (*Messenger)(nil)

// NewMessenger registers account credentials and the sending number.
func NewMessenger(cfg config.TwilioConfig) *Messenger {
	return &Messenger{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the messenger at a different API host. Used in tests.
func (m *Messenger) WithBaseURL(base string) *Messenger {
	m.baseURL = strings.TrimSuffix(base, "/")
	return m
}

// SendMessage posts one message and returns the Twilio message SID.
func (m *Messenger) SendMessage(ctx context.Context, recipient, body, mediaURL string) (string, error) {
	if m.accountSID == "" || m.authToken == "" || m.fromNumber == "" {
		return "", fmt.Errorf("twilio messenger misconfigured")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", m.baseURL, m.accountSID)
	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", m.fromNumber)
	form.Set("Body", body)
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(m.accountSID, m.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("twilio error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode twilio response: %w", err)
	}
	if parsed.SID == "" {
		return "", fmt.Errorf("twilio returned no message sid")
	}

	return parsed.SID, nil
}
