package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"LinkPilot/internal/config"
	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

const (
	defaultOAuthBaseURL = "https://www.linkedin.com/oauth/v2"
	defaultAPIBaseURL   = "https://api.linkedin.com/v2"
)

// Client wraps the LinkedIn OAuth, posting and engagement endpoints.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	apiVersion   string
	oauthBaseURL string
	apiBaseURL   string
	httpClient   *http.Client
}

var (
	_ ports.TokenExchanger = (*Client)(nil)
	_ ports.Publisher      = (*Client)(nil)
)

// NewClient builds a client from OAuth configuration.
func NewClient(cfg config.LinkedInConfig) *Client {
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		apiVersion:   cfg.APIVersion,
		oauthBaseURL: defaultOAuthBaseURL,
		apiBaseURL:   defaultAPIBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURLs points the client at different hosts. Used in tests.
func (c *Client) WithBaseURLs(oauthBase, apiBase string) *Client {
	c.oauthBaseURL = strings.TrimSuffix(oauthBase, "/")
	c.apiBaseURL = strings.TrimSuffix(apiBase, "/")
	return c
}

// AuthorizationURL renders the login redirect target for the given
// anti-forgery state token.
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("state", state)
	params.Set("scope", "openid profile email w_member_social")
	return c.oauthBaseURL + "/authorization?" + params.Encode()
}

// Exchange trades an authorization grant code for a token set.
func (c *Client) Exchange(ctx context.Context, code string) (*domain.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	return c.requestToken(ctx, form)
}

// Refresh trades a refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	return c.requestToken(ctx, form)
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (*domain.TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthBaseURL+"/accessToken", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("linkedin token endpoint %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		AccessToken           string `json:"access_token"`
		ExpiresIn             int    `json:"expires_in"`
		RefreshToken          string `json:"refresh_token"`
		RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("linkedin returned no access token")
	}
	if parsed.ExpiresIn == 0 {
		parsed.ExpiresIn = 3600
	}

	return &domain.TokenGrant{
		AccessToken:      parsed.AccessToken,
		ExpiresIn:        parsed.ExpiresIn,
		RefreshToken:     parsed.RefreshToken,
		RefreshExpiresIn: parsed.RefreshTokenExpiresIn,
	}, nil
}

// FetchAccountURN resolves the authenticated member's URN.
func (c *Client) FetchAccountURN(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/me", nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	c.setAPIHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("linkedin profile %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode profile response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("linkedin profile has no id")
	}

	return parsed.ID, nil
}

// Publish creates a UGC post and returns the new post URN. When linkURL is
// set, it rides along as an article attachment.
func (c *Client) Publish(ctx context.Context, accessToken, authorURN, text, linkURL string) (string, error) {
	share := map[string]any{
		"shareCommentary":    map[string]string{"text": text},
		"shareMediaCategory": "NONE",
	}
	if linkURL != "" {
		share["shareMediaCategory"] = "ARTICLE"
		share["media"] = []map[string]any{{"status": "READY", "originalUrl": linkURL}}
	}

	payload := map[string]any{
		"author":         authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": share,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal post payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	c.setAPIHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("linkedin publish %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	// The post URN arrives in the x-restli-id header, or in the body as id.
	if urn := resp.Header.Get("x-restli-id"); urn != "" {
		return urn, nil
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("linkedin returned no post id")
	}
	return parsed.ID, nil
}

// FetchEngagement reads the social-action summary for one post.
func (c *Client) FetchEngagement(ctx context.Context, accessToken, postID string) (*domain.EngagementSnapshot, error) {
	endpoint := fmt.Sprintf("%s/socialActions/%s/summary", c.apiBaseURL, url.PathEscape(postID))

	var raw []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("new request: %w", err))
			}
			c.setAPIHeaders(req, accessToken)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("engagement request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusBadRequest {
				detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return fmt.Errorf("linkedin engagement %s: %s", resp.Status, strings.TrimSpace(string(detail)))
			}

			raw, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			return nil
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
		Likes struct {
			Count int `json:"count"`
		} `json:"likes"`
		Comments struct {
			Count int `json:"count"`
		} `json:"comments"`
		Shares struct {
			Count int `json:"count"`
		} `json:"shares"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode engagement response: %w", err)
	}

	return &domain.EngagementSnapshot{
		Likes:    parsed.Likes.Count,
		Comments: parsed.Comments.Count,
		Shares:   parsed.Shares.Count,
		Raw:      json.RawMessage(raw),
	}, nil
}

func (c *Client) setAPIHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.apiVersion != "" {
		req.Header.Set("LinkedIn-Version", c.apiVersion)
	}
}
