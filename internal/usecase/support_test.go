package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeTrendRepo is an in-memory ports.TrendRepository.
type fakeTrendRepo struct {
	mu     sync.Mutex
	trends map[string]*domain.Trend
}

func newFakeTrendRepo() *fakeTrendRepo {
	return &fakeTrendRepo{trends: map[string]*domain.Trend{}}
}

func (f *fakeTrendRepo) Insert(_ context.Context, trend *domain.Trend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *trend
	f.trends[trend.ID] = &cp
	return nil
}

func (f *fakeTrendRepo) ExistsBySummary(_ context.Context, summary, source string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trends {
		if t.Summary == summary && t.Source == source {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTrendRepo) ReadyForGeneration(_ context.Context, cutoff time.Time, limit int) ([]domain.Trend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Trend
	for _, t := range f.trends {
		if t.ReadyForGeneration(cutoff) && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTrendRepo) MarkProcessed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.trends[id]; ok {
		stamp := at
		t.LastProcessedAt = &stamp
	}
	return nil
}

// fakeDraftRepo is an in-memory ports.DraftRepository mirroring the
// conditional-update semantics of the Postgres implementation.
type fakeDraftRepo struct {
	mu     sync.Mutex
	drafts map[string]*domain.PostDraft
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: map[string]*domain.PostDraft{}}
}

func (f *fakeDraftRepo) put(draft *domain.PostDraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *draft
	f.drafts[draft.ID] = &cp
}

func (f *fakeDraftRepo) get(id string) *domain.PostDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (f *fakeDraftRepo) Insert(_ context.Context, draft *domain.PostDraft) error {
	f.put(draft)
	return nil
}

func (f *fakeDraftRepo) FindByID(_ context.Context, id string) (*domain.PostDraft, error) {
	if d := f.get(id); d != nil {
		return d, nil
	}
	return nil, ports.ErrNotFound
}

func (f *fakeDraftRepo) AwaitingApprovalDispatch(_ context.Context, limit int) ([]domain.PostDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PostDraft
	for _, d := range f.drafts {
		if d.Status == domain.StatusPendingApproval && d.ApprovalMessageID == "" && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDraftRepo) SetApprovalMessageID(_ context.Context, draftID, messageID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok || d.ApprovalMessageID != "" {
		return false, nil
	}
	d.ApprovalMessageID = messageID
	d.UpdatedAt = at
	return true, nil
}

func (f *fakeDraftRepo) Resolve(_ context.Context, draftID string, status domain.PostStatus, publishAt *time.Time, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok || d.Status != domain.StatusPendingApproval {
		return false, nil
	}
	d.Status = status
	d.UpdatedAt = at
	if publishAt != nil {
		stamp := *publishAt
		d.ScheduledPublishTime = &stamp
	}
	return true, nil
}

func (f *fakeDraftRepo) DueForPublish(_ context.Context, now time.Time, limit int) ([]domain.PostDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PostDraft
	for _, d := range f.drafts {
		due := d.ScheduledPublishTime == nil || !d.ScheduledPublishTime.After(now)
		if d.Status == domain.StatusApproved && due && d.ExternalPostID == "" && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDraftRepo) MarkPublished(_ context.Context, draftID, externalPostID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok || d.Status != domain.StatusApproved || d.ExternalPostID != "" {
		return false, nil
	}
	d.Status = domain.StatusPublished
	d.ExternalPostID = externalPostID
	d.ErrorMessage = ""
	d.UpdatedAt = at
	return true, nil
}

func (f *fakeDraftRepo) MarkPublishError(_ context.Context, draftID, detail string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok {
		return ports.ErrNotFound
	}
	if d.Status != domain.StatusApproved {
		return nil
	}
	d.Status = domain.StatusError
	d.ErrorMessage = detail
	d.UpdatedAt = at
	return nil
}

func (f *fakeDraftRepo) NeedingEngagementCheck(_ context.Context, publishedSince, checkedBefore time.Time, limit int) ([]domain.PostDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PostDraft
	for _, d := range f.drafts {
		if d.Status != domain.StatusPublished || d.ExternalPostID == "" || d.UpdatedAt.Before(publishedSince) {
			continue
		}
		if d.EngagementLastChecked != nil && !d.EngagementLastChecked.Before(checkedBefore) {
			continue
		}
		if len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDraftRepo) SaveEngagement(_ context.Context, draftID string, snapshot *domain.EngagementSnapshot, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok {
		return ports.ErrNotFound
	}
	d.EngagementStats = []byte(fmt.Sprintf(`{"likes":%d,"comments":%d,"shares":%d}`,
		snapshot.Likes, snapshot.Comments, snapshot.Shares))
	stamp := at
	d.EngagementLastChecked = &stamp
	return nil
}

func (f *fakeDraftRepo) TouchEngagementChecked(_ context.Context, draftID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[draftID]; ok {
		stamp := at
		d.EngagementLastChecked = &stamp
	}
	return nil
}

func (f *fakeDraftRepo) CountPublishedSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int
	for _, d := range f.drafts {
		if d.Status == domain.StatusPublished && !d.UpdatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeDraftRepo) EngagementTotalsSince(_ context.Context, _ time.Time) (int, int, error) {
	return 0, 0, nil
}

// fakeCredentialRepo is an in-memory ports.CredentialRepository.
type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: map[string]*domain.Credential{}}
}

func (f *fakeCredentialRepo) Get(_ context.Context, operatorID string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.creds[operatorID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ports.ErrNotFound
}

func (f *fakeCredentialRepo) Upsert(_ context.Context, cred *domain.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *cred
	if prev, ok := f.creds[cred.OperatorID]; ok {
		cp.CreatedAt = prev.CreatedAt
		if cp.AccountURN == "" {
			cp.AccountURN = prev.AccountURN
		}
	}
	f.creds[cred.OperatorID] = &cp
	return nil
}

// fakeMessenger records every sent message.
type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	recipient string
	body      string
	mediaURL  string
}

func (f *fakeMessenger) SendMessage(_ context.Context, recipient, body, mediaURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{recipient: recipient, body: body, mediaURL: mediaURL})
	return fmt.Sprintf("SM%04d", len(f.sent)), nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeSource serves canned trend reports keyed by query.
type fakeSource struct {
	reports map[string]*domain.TrendReport
	err     error
}

func (f *fakeSource) Find(_ context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reports[target.Query], nil
}

// fakeTextGen returns fixed copy.
type fakeTextGen struct {
	text  string
	err   error
	calls int
}

func (f *fakeTextGen) GeneratePost(_ context.Context, _ string, _ []string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeImageGen returns a fixed image.
type fakeImageGen struct {
	image *domain.GeneratedImage
	err   error
}

func (f *fakeImageGen) GenerateImage(_ context.Context, _, _ string) (*domain.GeneratedImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

// fakePublisher records publish calls and serves engagement snapshots.
type fakePublisher struct {
	mu         sync.Mutex
	postIDs    []string
	publishErr error
	snapshot   *domain.EngagementSnapshot
	fetchErr   error
	published  int
}

func (f *fakePublisher) Publish(_ context.Context, _, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published++
	id := fmt.Sprintf("urn:li:share:%d", f.published)
	f.postIDs = append(f.postIDs, id)
	return id, nil
}

func (f *fakePublisher) FetchEngagement(_ context.Context, _, _ string) (*domain.EngagementSnapshot, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot, nil
}

// fakeExchanger serves canned token grants.
type fakeExchanger struct {
	grant        *domain.TokenGrant
	err          error
	refreshCalls int
}

func (f *fakeExchanger) Exchange(_ context.Context, _ string) (*domain.TokenGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.grant, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, _ string) (*domain.TokenGrant, error) {
	f.refreshCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.grant, nil
}

func (f *fakeExchanger) FetchAccountURN(_ context.Context, _ string) (string, error) {
	return "member123", nil
}
