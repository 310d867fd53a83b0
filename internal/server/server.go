package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"LinkPilot/internal/ports"
	"LinkPilot/internal/usecase"
)

const (
	webhookTimeout = 30 * time.Second
	triggerTimeout = 5 * time.Minute
	stateTTL       = 10 * time.Minute
)

// OAuthFlow is the part of the LinkedIn client the HTTP layer needs.
type OAuthFlow interface {
	ports.TokenExchanger
	AuthorizationURL(state string) string
}

// Server exposes the inbound HTTP surface: the WhatsApp webhook, the
// LinkedIn OAuth flow and a manual generation trigger.
type Server struct {
	interpreter  *usecase.Interpreter
	credentials  *usecase.Credentials
	orchestrator *usecase.Orchestrator
	oauth        OAuthFlow

	operatorID  string
	frontendURL string

	mu     sync.Mutex
	states map[string]time.Time

	log *slog.Logger
}

// New wires the HTTP handlers.
func New(
	interpreter *usecase.Interpreter,
	credentials *usecase.Credentials,
	orchestrator *usecase.Orchestrator,
	oauth OAuthFlow,
	operatorID, frontendURL string,
	log *slog.Logger,
) *Server {
	return &Server{
		interpreter:  interpreter,
		credentials:  credentials,
		orchestrator: orchestrator,
		oauth:        oauth,
		operatorID:   operatorID,
		frontendURL:  frontendURL,
		states:       make(map[string]time.Time),
		log:          log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.handleHealth)
	router.POST("/webhook/twilio/whatsapp", s.handleWhatsAppWebhook)
	router.GET("/auth/linkedin/login", s.handleLinkedInLogin)
	router.GET("/auth/linkedin/callback", s.handleLinkedInCallback)
	router.GET("/auth/linkedin/status", s.handleLinkedInStatus)
	router.POST("/trigger/generate-content", s.handleGenerateTrigger)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWhatsAppWebhook acknowledges Twilio immediately and interprets the
// reply in the background, so slow downstream calls never trip Twilio's
// webhook deadline.
func (s *Server) handleWhatsAppWebhook(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")
	messageSID := c.PostForm("MessageSid")

	if from == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "From and Body are required"})
		return
	}

	s.log.Info("inbound whatsapp message", "sid", messageSID, "from", from)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := s.interpreter.HandleMessage(ctx, from, body); err != nil {
			s.log.Error("approval handling failed", "sid", messageSID, "error", err)
		}
	}()

	c.String(http.StatusOK, "")
}

func (s *Server) handleLinkedInLogin(c *gin.Context) {
	state := uuid.NewString()

	s.mu.Lock()
	s.states[state] = time.Now().Add(stateTTL)
	for token, deadline := range s.states {
		if time.Now().After(deadline) {
			delete(s.states, token)
		}
	}
	s.mu.Unlock()

	c.Redirect(http.StatusTemporaryRedirect, s.oauth.AuthorizationURL(state))
}

func (s *Server) handleLinkedInCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		s.log.Warn("oauth callback returned error", "error", errParam)
		s.redirectFrontend(c, "auth_error", errParam)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || !s.consumeState(state) {
		s.redirectFrontend(c, "auth_error", "invalid_state")
		return
	}

	ctx := c.Request.Context()
	grant, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.log.Error("token exchange failed", "error", err)
		s.redirectFrontend(c, "auth_error", "token_exchange_failed")
		return
	}

	// Publishing needs the URN; a credential without one is useless.
	accountURN, err := s.oauth.FetchAccountURN(ctx, grant.AccessToken)
	if err != nil {
		s.log.Error("account urn fetch failed", "error", err)
		s.redirectFrontend(c, "auth_error", "profile_fetch_failed")
		return
	}

	if err := s.credentials.Store(ctx, s.operatorID, accountURN, grant); err != nil {
		s.log.Error("credential store failed", "error", err)
		s.redirectFrontend(c, "auth_error", "storage_failed")
		return
	}

	s.redirectFrontend(c, "auth_success", "true")
}

func (s *Server) handleLinkedInStatus(c *gin.Context) {
	authorized, cred, err := s.credentials.AuthStatus(c.Request.Context(), s.operatorID)
	if err != nil {
		s.log.Error("auth status lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}

	payload := gin.H{"authorized": authorized}
	if cred != nil {
		payload["account_urn"] = cred.AccountURN
		payload["expires_at"] = cred.ExpiresAt
	}
	c.JSON(http.StatusOK, payload)
}

// handleGenerateTrigger kicks a generation run outside the cron cadence.
// An optional topic form field seeds an ad-hoc trend first.
func (s *Server) handleGenerateTrigger(c *gin.Context) {
	if topic := c.PostForm("topic"); topic != "" {
		if err := s.orchestrator.SeedTrend(c.Request.Context(), topic); err != nil {
			s.log.Error("seed trend failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not seed topic"})
			return
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := s.orchestrator.GenerateContent(ctx); err != nil {
			s.log.Error("manual generation run failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "generation started"})
}

func (s *Server) consumeState(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(deadline)
}

func (s *Server) redirectFrontend(c *gin.Context, key, value string) {
	target := s.frontendURL + "?" + url.Values{key: {value}}.Encode()
	c.Redirect(http.StatusTemporaryRedirect, target)
}
