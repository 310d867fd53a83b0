package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// expiryMargin is how close to expiry an access token may get before it is
// refreshed proactively.
const expiryMargin = 5 * time.Minute

var (
	// ErrNoCredential signals that the operator never completed the OAuth flow.
	ErrNoCredential = errors.New("no linkedin credential stored")
	// ErrReauthorizationRequired signals that both tokens are spent and the
	// operator must log in again.
	ErrReauthorizationRequired = errors.New("linkedin reauthorization required")
)

// Credentials is the single choke point for LinkedIn tokens: every caller
// that needs an access token goes through GetValid, which refreshes
// transparently when the stored token is about to expire.
type Credentials struct {
	repo      ports.CredentialRepository
	exchanger ports.TokenExchanger
	log       *slog.Logger
	now       func() time.Time
}

// NewCredentials wires the credential lifecycle service.
func NewCredentials(repo ports.CredentialRepository, exchanger ports.TokenExchanger, log *slog.Logger) *Credentials {
	return &Credentials{
		repo:      repo,
		exchanger: exchanger,
		log:       log,
		now:       time.Now,
	}
}

// GetValid returns a credential whose access token is good for at least the
// expiry margin, refreshing it first when needed.
func (c *Credentials) GetValid(ctx context.Context, operatorID string) (*domain.Credential, error) {
	cred, err := c.repo.Get(ctx, operatorID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	now := c.now()
	if !cred.ExpiresWithin(now, expiryMargin) {
		return cred, nil
	}

	if !cred.RefreshTokenUsable(now) {
		return nil, ErrReauthorizationRequired
	}

	c.log.Info("refreshing access token", "operator", operatorID)
	grant, err := c.exchanger.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		// A refused refresh means the grant is gone; only a new login helps.
		c.log.Warn("token refresh rejected", "operator", operatorID, "error", err)
		return nil, fmt.Errorf("refresh token: %w", ErrReauthorizationRequired)
	}

	refreshed := c.applyGrant(cred, grant, now)
	if err := c.repo.Upsert(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("store refreshed credential: %w", err)
	}
	return refreshed, nil
}

// Store persists a fresh token grant from the OAuth callback. accountURN may
// be empty; an existing URN is then preserved by the repository.
func (c *Credentials) Store(ctx context.Context, operatorID, accountURN string, grant *domain.TokenGrant) error {
	now := c.now()
	cred := c.applyGrant(&domain.Credential{
		OperatorID: operatorID,
		AccountURN: accountURN,
		CreatedAt:  now,
	}, grant, now)

	if err := c.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	c.log.Info("credential stored", "operator", operatorID)
	return nil
}

// AuthStatus reports whether a usable credential exists, without
// refreshing, and returns the stored credential when there is one.
func (c *Credentials) AuthStatus(ctx context.Context, operatorID string) (bool, *domain.Credential, error) {
	cred, err := c.repo.Get(ctx, operatorID)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("load credential: %w", err)
	}

	now := c.now()
	usable := !cred.ExpiresWithin(now, 0) || cred.RefreshTokenUsable(now)
	return usable, cred, nil
}

func (c *Credentials) applyGrant(base *domain.Credential, grant *domain.TokenGrant, now time.Time) *domain.Credential {
	cred := *base
	cred.AccessToken = grant.AccessToken
	cred.ExpiresAt = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	cred.UpdatedAt = now
	if grant.RefreshToken != "" {
		cred.RefreshToken = grant.RefreshToken
	}
	if grant.RefreshExpiresIn > 0 {
		exp := now.Add(time.Duration(grant.RefreshExpiresIn) * time.Second)
		cred.RefreshExpiresAt = &exp
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	return &cred
}
