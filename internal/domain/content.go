package domain

import (
	"encoding/json"
	"time"
)

// Trend is a discovered topic candidate for content generation.
type Trend struct {
	ID              string
	Topic           string
	Source          string
	RelevanceScore  float64
	Summary         string
	RawData         json.RawMessage
	IdentifiedAt    time.Time
	LastProcessedAt *time.Time
}

// ReadyForGeneration reports whether the trend qualifies for another
// content-generation attempt given the staleness cutoff.
func (t Trend) ReadyForGeneration(cutoff time.Time) bool {
	return t.LastProcessedAt == nil || t.LastProcessedAt.Before(cutoff)
}

// PostStatus enumerates the draft lifecycle states.
type PostStatus string

const (
	StatusDraft           PostStatus = "draft"
	StatusPendingApproval PostStatus = "pending_approval"
	StatusApproved        PostStatus = "approved"
	StatusRejected        PostStatus = "rejected"
	StatusPublished       PostStatus = "published"
	StatusError           PostStatus = "error"
)

// CanTransitionTo encodes the legal lifecycle edges. PUBLISHED, REJECTED
// and ERROR are terminal.
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusPendingApproval
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusPublished || next == StatusError
	case StatusRejected, StatusPublished, StatusError:
		return false
	}
	return false
}

// PostDraft is a generated candidate post moving through approval,
// publication and engagement tracking.
type PostDraft struct {
	ID                    string
	TrendID               string // weak reference; the trend may be pruned independently
	HeadlineSuggestion    string
	GeneratedText         string
	ImagePrompt           string
	GeneratedImageURL     string
	ImageJobID            string
	Status                PostStatus
	VoiceProfile          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ScheduledPublishTime  *time.Time
	ExternalPostID        string
	ErrorMessage          string
	ApprovalMessageID     string
	EngagementStats       json.RawMessage
	EngagementLastChecked *time.Time
}

// Credential is the delegated-access token set used to publish on the
// operator's behalf. At most one record exists per operator.
type Credential struct {
	OperatorID       string
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt *time.Time
	AccountURN       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExpiresWithin reports whether the access token expires before
// now+margin and therefore needs a refresh.
func (c Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return c.ExpiresAt.Before(now.Add(margin))
}

// RefreshTokenUsable reports whether a refresh is even worth attempting.
func (c Credential) RefreshTokenUsable(now time.Time) bool {
	if c.RefreshToken == "" {
		return false
	}
	return c.RefreshExpiresAt == nil || c.RefreshExpiresAt.After(now)
}

// DiscoveryTarget is one configured (query, category) pair handled by a
// named finder strategy.
type DiscoveryTarget struct {
	Finder   string
	Query    string
	Category string
	URL      string
}

// TrendReport is what a discovery finder returns for one target.
type TrendReport struct {
	Summary   string
	Relevance float64
	Raw       json.RawMessage
}

// GeneratedImage is the result of an image-generation call.
type GeneratedImage struct {
	URL   string
	JobID string
}

// TokenGrant is the token payload returned by the OAuth exchange and
// refresh endpoints. Expiry values are lifetimes in seconds.
type TokenGrant struct {
	AccessToken      string
	ExpiresIn        int
	RefreshToken     string
	RefreshExpiresIn int
}

// EngagementSnapshot captures post metrics at a point in time.
type EngagementSnapshot struct {
	Likes    int             `json:"likes"`
	Comments int             `json:"comments"`
	Shares   int             `json:"shares"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
