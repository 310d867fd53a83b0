package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"LinkPilot/internal/config"
	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// Orchestrator drives the content pipeline end to end: discovery, draft
// generation, approval dispatch, publishing, engagement tracking and the
// weekly report. Each method is one scheduler entry point and is safe to
// re-run; partial failures are logged and isolated per item.
type Orchestrator struct {
	trends      ports.TrendRepository
	drafts      ports.DraftRepository
	source      ports.TrendSource
	textGen     ports.TextGenerator
	imageGen    ports.ImageGenerator
	messenger   ports.Messenger
	publisher   ports.Publisher
	credentials *Credentials

	targets        []domain.DiscoveryTarget
	cfg            config.PipelineConfig
	operatorNumber string

	log *slog.Logger
	now func() time.Time
}

// NewOrchestrator wires the pipeline use cases.
func NewOrchestrator(
	trends ports.TrendRepository,
	drafts ports.DraftRepository,
	source ports.TrendSource,
	textGen ports.TextGenerator,
	imageGen ports.ImageGenerator,
	messenger ports.Messenger,
	publisher ports.Publisher,
	credentials *Credentials,
	targets []domain.DiscoveryTarget,
	cfg config.PipelineConfig,
	operatorNumber string,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		trends:         trends,
		drafts:         drafts,
		source:         source,
		textGen:        textGen,
		imageGen:       imageGen,
		messenger:      messenger,
		publisher:      publisher,
		credentials:    credentials,
		targets:        targets,
		cfg:            cfg,
		operatorNumber: operatorNumber,
		log:            log,
		now:            time.Now,
	}
}

// DiscoverTrends queries every configured discovery target and stores
// reports not seen before. A failing target never blocks the others.
func (o *Orchestrator) DiscoverTrends(ctx context.Context) error {
	var stored, skipped int
	for _, target := range o.targets {
		report, err := o.source.Find(ctx, target)
		if err != nil {
			o.log.Error("discovery target failed", "finder", target.Finder, "query", target.Query, "error", err)
			continue
		}
		if report == nil || report.Summary == "" {
			o.log.Warn("discovery target returned nothing", "finder", target.Finder, "query", target.Query)
			continue
		}

		exists, err := o.trends.ExistsBySummary(ctx, report.Summary, target.Finder)
		if err != nil {
			o.log.Error("trend dedup lookup failed", "finder", target.Finder, "error", err)
			continue
		}
		if exists {
			skipped++
			continue
		}

		trend := &domain.Trend{
			ID:             uuid.NewString(),
			Topic:          target.Query,
			Source:         target.Finder,
			RelevanceScore: report.Relevance,
			Summary:        report.Summary,
			RawData:        report.Raw,
			IdentifiedAt:   o.now(),
		}
		if err := o.trends.Insert(ctx, trend); err != nil {
			o.log.Error("trend insert failed", "finder", target.Finder, "error", err)
			continue
		}
		stored++
	}

	o.log.Info("trend discovery done", "stored", stored, "skipped", skipped, "targets", len(o.targets))
	return nil
}

// SeedTrend stores an operator-supplied topic as a trend, making it
// eligible for the next generation run.
func (o *Orchestrator) SeedTrend(ctx context.Context, topic string) error {
	trend := &domain.Trend{
		ID:             uuid.NewString(),
		Topic:          topic,
		Source:         "manual",
		RelevanceScore: 1.0,
		Summary:        topic,
		IdentifiedAt:   o.now(),
	}
	if err := o.trends.Insert(ctx, trend); err != nil {
		return fmt.Errorf("seed trend: %w", err)
	}
	o.log.Info("trend seeded manually", "trend", trend.ID, "topic", topic)
	return nil
}

// GenerateContent turns unprocessed (or stale) trends into drafts awaiting
// approval. Every picked trend is marked processed, whether generation
// succeeded or not, so a broken trend cannot wedge the batch forever.
func (o *Orchestrator) GenerateContent(ctx context.Context) error {
	cutoff := o.now().Add(-o.cfg.TrendStaleness())
	trends, err := o.trends.ReadyForGeneration(ctx, cutoff, o.cfg.GenerationLimit)
	if err != nil {
		return fmt.Errorf("load trends: %w", err)
	}

	var created int
	for _, trend := range trends {
		if o.generateDraft(ctx, &trend) {
			created++
		}
		if err := o.trends.MarkProcessed(ctx, trend.ID, o.now()); err != nil {
			o.log.Error("mark trend processed failed", "trend", trend.ID, "error", err)
		}
	}

	o.log.Info("content generation done", "picked", len(trends), "drafts", created)
	return nil
}

func (o *Orchestrator) generateDraft(ctx context.Context, trend *domain.Trend) bool {
	prompt := trend.Summary
	if prompt == "" {
		prompt = trend.Topic
	}

	text, err := o.textGen.GeneratePost(ctx, prompt, o.cfg.VoiceExamples)
	if err != nil {
		o.log.Error("text generation failed", "trend", trend.ID, "error", err)
		return false
	}

	now := o.now()
	draft := &domain.PostDraft{
		ID:                 uuid.NewString(),
		TrendID:            trend.ID,
		HeadlineSuggestion: trend.Topic,
		GeneratedText:      text,
		ImagePrompt:        imagePromptFor(trend),
		Status:             domain.StatusPendingApproval,
		VoiceProfile:       o.cfg.VoiceProfile,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// The draft survives without an image; image trouble is never fatal.
	if image, err := o.imageGen.GenerateImage(ctx, draft.ImagePrompt, ""); err != nil {
		o.log.Warn("image generation failed", "trend", trend.ID, "error", err)
	} else if image != nil {
		draft.GeneratedImageURL = image.URL
		draft.ImageJobID = image.JobID
	}

	if err := o.drafts.Insert(ctx, draft); err != nil {
		o.log.Error("draft insert failed", "trend", trend.ID, "error", err)
		return false
	}
	return true
}

func imagePromptFor(trend *domain.Trend) string {
	subject := trend.Topic
	if subject == "" {
		subject = trend.Summary
	}
	return fmt.Sprintf("Professional editorial illustration for a LinkedIn post about: %s", subject)
}

// SendPendingApprovals messages the operator one draft at a time and
// records the message id, so a draft is offered at most once.
func (o *Orchestrator) SendPendingApprovals(ctx context.Context) error {
	drafts, err := o.drafts.AwaitingApprovalDispatch(ctx, o.cfg.ApprovalBatchLimit)
	if err != nil {
		return fmt.Errorf("load pending drafts: %w", err)
	}

	var sent int
	for _, draft := range drafts {
		body := renderApprovalMessage(&draft)
		messageID, err := o.messenger.SendMessage(ctx, o.operatorNumber, body, draft.GeneratedImageURL)
		if err != nil {
			o.log.Error("approval message failed", "draft", draft.ID, "error", err)
			continue
		}

		updated, err := o.drafts.SetApprovalMessageID(ctx, draft.ID, messageID, o.now())
		if err != nil {
			o.log.Error("record approval message failed", "draft", draft.ID, "error", err)
			continue
		}
		if !updated {
			o.log.Warn("draft already dispatched elsewhere", "draft", draft.ID)
			continue
		}
		sent++
	}

	o.log.Info("approval dispatch done", "pending", len(drafts), "sent", sent)
	return nil
}

func renderApprovalMessage(draft *domain.PostDraft) string {
	var b strings.Builder
	b.WriteString("New post draft ready for review.\n\n")
	if draft.HeadlineSuggestion != "" {
		b.WriteString(draft.HeadlineSuggestion)
		b.WriteString("\n\n")
	}
	b.WriteString(excerpt(draft.GeneratedText, 600))
	b.WriteString("\n\nReply with 'APPROVE ")
	b.WriteString(draft.ID)
	b.WriteString("' or 'REJECT ")
	b.WriteString(draft.ID)
	b.WriteString("'.")
	return b.String()
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "…"
}

// PublishApproved pushes due approved drafts to LinkedIn. Without a valid
// credential nothing is attempted, so drafts stay APPROVED and a later run
// picks them up after reauthorization.
func (o *Orchestrator) PublishApproved(ctx context.Context) error {
	drafts, err := o.drafts.DueForPublish(ctx, o.now(), o.cfg.PublishBatchLimit)
	if err != nil {
		return fmt.Errorf("load due drafts: %w", err)
	}
	if len(drafts) == 0 {
		return nil
	}

	cred, err := o.credentials.GetValid(ctx, o.cfg.OperatorID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrReauthorizationRequired) {
			o.log.Warn("publishing skipped, operator must authorize", "due", len(drafts), "reason", err)
			o.notifyOperator(ctx, "LinkPilot cannot publish: LinkedIn authorization is missing or expired. Please log in again.")
			return nil
		}
		return fmt.Errorf("credential lookup: %w", err)
	}

	var published int
	for _, draft := range drafts {
		postID, err := o.publisher.Publish(ctx, cred.AccessToken, authorURN(cred), draft.GeneratedText, draft.GeneratedImageURL)
		if err != nil {
			o.log.Error("publish failed", "draft", draft.ID, "error", err)
			if merr := o.drafts.MarkPublishError(ctx, draft.ID, err.Error(), o.now()); merr != nil {
				o.log.Error("record publish error failed", "draft", draft.ID, "error", merr)
			}
			continue
		}

		updated, err := o.drafts.MarkPublished(ctx, draft.ID, postID, o.now())
		if err != nil {
			o.log.Error("mark published failed", "draft", draft.ID, "error", err)
			continue
		}
		if !updated {
			o.log.Warn("draft already published elsewhere", "draft", draft.ID)
			continue
		}
		published++
		o.notifyOperator(ctx, fmt.Sprintf("Published to LinkedIn: %s", excerpt(draft.GeneratedText, 120)))
	}

	o.log.Info("publishing done", "due", len(drafts), "published", published)
	return nil
}

func authorURN(cred *domain.Credential) string {
	if strings.HasPrefix(cred.AccountURN, "urn:") {
		return cred.AccountURN
	}
	return "urn:li:person:" + cred.AccountURN
}

// notifyOperator is fire and forget: a lost notification never fails the run.
func (o *Orchestrator) notifyOperator(ctx context.Context, body string) {
	if _, err := o.messenger.SendMessage(ctx, o.operatorNumber, body, ""); err != nil {
		o.log.Warn("operator notification failed", "error", err)
	}
}

// TrackEngagement refreshes stats for recently published posts. A post that
// fails the fetch still gets its check time stamped, keeping it out of
// tight retry loops.
func (o *Orchestrator) TrackEngagement(ctx context.Context) error {
	now := o.now()
	publishedSince := now.Add(-o.cfg.EngagementWindow())
	checkedBefore := now.Add(-o.cfg.EngagementCadence())

	drafts, err := o.drafts.NeedingEngagementCheck(ctx, publishedSince, checkedBefore, o.cfg.EngagementBatchLimit)
	if err != nil {
		return fmt.Errorf("load published drafts: %w", err)
	}
	if len(drafts) == 0 {
		return nil
	}

	cred, err := o.credentials.GetValid(ctx, o.cfg.OperatorID)
	if err != nil {
		o.log.Warn("engagement tracking skipped", "reason", err)
		return nil
	}

	var refreshed int
	for _, draft := range drafts {
		snapshot, err := o.publisher.FetchEngagement(ctx, cred.AccessToken, draft.ExternalPostID)
		if err != nil {
			o.log.Warn("engagement fetch failed", "draft", draft.ID, "post", draft.ExternalPostID, "error", err)
			if terr := o.drafts.TouchEngagementChecked(ctx, draft.ID, o.now()); terr != nil {
				o.log.Error("touch engagement check failed", "draft", draft.ID, "error", terr)
			}
			continue
		}
		if err := o.drafts.SaveEngagement(ctx, draft.ID, snapshot, o.now()); err != nil {
			o.log.Error("save engagement failed", "draft", draft.ID, "error", err)
			continue
		}
		refreshed++
	}

	o.log.Info("engagement tracking done", "checked", len(drafts), "refreshed", refreshed)
	return nil
}

// GenerateReport sends the operator a weekly digest of publishing volume and
// engagement totals.
func (o *Orchestrator) GenerateReport(ctx context.Context) error {
	since := o.now().Add(-o.cfg.ReportWindow())

	count, err := o.drafts.CountPublishedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count published: %w", err)
	}
	likes, comments, err := o.drafts.EngagementTotalsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("sum engagement: %w", err)
	}

	body := fmt.Sprintf("Weekly LinkPilot report:\n- Posts published: %d\n- Likes: %d\n- Comments: %d",
		count, likes, comments)
	if _, err := o.messenger.SendMessage(ctx, o.operatorNumber, body, ""); err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	o.log.Info("weekly report sent", "published", count, "likes", likes, "comments", comments)
	return nil
}
