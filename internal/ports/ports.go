package ports

import (
	"context"
	"errors"
	"time"

	"LinkPilot/internal/domain"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// TrendSource discovers a trend candidate for a single configured target.
type TrendSource interface {
	Find(ctx context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error)
}

// TextGenerator produces post copy from a prompt and voice examples.
type TextGenerator interface {
	GeneratePost(ctx context.Context, prompt string, voiceExamples []string) (string, error)
}

// ImageGenerator produces an illustration for a draft.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*domain.GeneratedImage, error)
}

// Messenger delivers a message to the operator and returns the provider's
// correlation id.
type Messenger interface {
	SendMessage(ctx context.Context, recipient, body, mediaURL string) (string, error)
}

// TokenExchanger wraps the OAuth endpoints of the publishing platform.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*domain.TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error)
	FetchAccountURN(ctx context.Context, accessToken string) (string, error)
}

// Publisher posts content and reads back engagement.
type Publisher interface {
	Publish(ctx context.Context, accessToken, authorURN, text, linkURL string) (string, error)
	FetchEngagement(ctx context.Context, accessToken, postID string) (*domain.EngagementSnapshot, error)
}

// TrendRepository persists discovered trends.
type TrendRepository interface {
	Insert(ctx context.Context, trend *domain.Trend) error
	ExistsBySummary(ctx context.Context, summary, source string) (bool, error)
	// ReadyForGeneration returns trends never processed or processed before
	// cutoff, oldest first, capped at limit.
	ReadyForGeneration(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trend, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

// DraftRepository persists post drafts. Mutations that guard an
// idempotency flag report whether the row was actually updated, so the
// check and the write are a single atomic operation.
type DraftRepository interface {
	Insert(ctx context.Context, draft *domain.PostDraft) error
	FindByID(ctx context.Context, id string) (*domain.PostDraft, error)
	// AwaitingApprovalDispatch returns PENDING_APPROVAL drafts with no
	// approval message id, capped at limit.
	AwaitingApprovalDispatch(ctx context.Context, limit int) ([]domain.PostDraft, error)
	// SetApprovalMessageID records the correlation id only if none is set.
	SetApprovalMessageID(ctx context.Context, draftID, messageID string, at time.Time) (bool, error)
	// Resolve moves a PENDING_APPROVAL draft to APPROVED or REJECTED,
	// optionally setting the scheduled publish time.
	Resolve(ctx context.Context, draftID string, status domain.PostStatus, publishAt *time.Time, at time.Time) (bool, error)
	// DueForPublish returns APPROVED drafts whose scheduled publish time is
	// unset or past and that carry no external post id, capped at limit.
	DueForPublish(ctx context.Context, now time.Time, limit int) ([]domain.PostDraft, error)
	// MarkPublished sets PUBLISHED plus the external post id and clears any
	// prior error, only if no external post id is set yet.
	MarkPublished(ctx context.Context, draftID, externalPostID string, at time.Time) (bool, error)
	MarkPublishError(ctx context.Context, draftID, detail string, at time.Time) error
	// NeedingEngagementCheck returns PUBLISHED drafts updated since
	// publishedSince whose last engagement check is unset or before
	// checkedBefore, capped at limit.
	NeedingEngagementCheck(ctx context.Context, publishedSince, checkedBefore time.Time, limit int) ([]domain.PostDraft, error)
	SaveEngagement(ctx context.Context, draftID string, snapshot *domain.EngagementSnapshot, at time.Time) error
	TouchEngagementChecked(ctx context.Context, draftID string, at time.Time) error
	CountPublishedSince(ctx context.Context, since time.Time) (int, error)
	EngagementTotalsSince(ctx context.Context, since time.Time) (likes, comments int, err error)
}

// CredentialRepository stores one credential per operator identity.
type CredentialRepository interface {
	Get(ctx context.Context, operatorID string) (*domain.Credential, error)
	// Upsert inserts or updates by operator id. created_at is set only on
	// first insert; the account URN is never overwritten with an empty value.
	Upsert(ctx context.Context, cred *domain.Credential) error
}

// Scheduler runs named jobs on cron cadences, never invoking the same job
// concurrently with itself.
type Scheduler interface {
	Add(name, spec string, job func(context.Context)) error
	Start()
	Stop(ctx context.Context) error
}
