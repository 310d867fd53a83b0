package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// DraftRepository persists post drafts in Postgres. Updates that guard an
// idempotency flag fold the presence check into the WHERE clause, so the
// observe-then-write race collapses into one atomic statement.
type DraftRepository struct {
	db *sql.DB
}

var _ ports.DraftRepository = (*DraftRepository)(nil)

// NewDraftRepository wires a sql.DB implementation.
func NewDraftRepository(db *sql.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Insert stores a freshly generated draft.
func (r *DraftRepository) Insert(ctx context.Context, draft *domain.PostDraft) error {
	query, args, err := psql.Insert("post_drafts").
		Columns("id", "trend_id", "headline_suggestion", "generated_text", "image_prompt",
			"generated_image_url", "image_job_id", "status", "voice_profile",
			"created_at", "updated_at", "scheduled_publish_time", "external_post_id",
			"error_message", "approval_message_id", "engagement_stats", "engagement_last_checked").
		Values(draft.ID, nullStr(draft.TrendID), nullStr(draft.HeadlineSuggestion), draft.GeneratedText,
			nullStr(draft.ImagePrompt), nullStr(draft.GeneratedImageURL), nullStr(draft.ImageJobID),
			string(draft.Status), nullStr(draft.VoiceProfile),
			draft.CreatedAt, draft.UpdatedAt, nullTime(draft.ScheduledPublishTime), nullStr(draft.ExternalPostID),
			nullStr(draft.ErrorMessage), nullStr(draft.ApprovalMessageID), []byte(draft.EngagementStats),
			nullTime(draft.EngagementLastChecked)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// FindByID loads one draft or ports.ErrNotFound.
func (r *DraftRepository) FindByID(ctx context.Context, id string) (*domain.PostDraft, error) {
	query, args, err := psql.Select(draftColumns...).
		From("post_drafts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query draft: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows iteration: %w", err)
		}
		return nil, ports.ErrNotFound
	}

	draft, err := scanDraft(rows)
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// AwaitingApprovalDispatch returns PENDING_APPROVAL drafts that have no
// approval message recorded yet, oldest first.
func (r *DraftRepository) AwaitingApprovalDispatch(ctx context.Context, limit int) ([]domain.PostDraft, error) {
	query, args, err := psql.Select(draftColumns...).
		From("post_drafts").
		Where(sq.Eq{"status": string(domain.StatusPendingApproval)}).
		Where(sq.Expr("approval_message_id IS NULL")).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryDrafts(ctx, query, args)
}

// SetApprovalMessageID records the correlation id only when none is set.
func (r *DraftRepository) SetApprovalMessageID(ctx context.Context, draftID, messageID string, at time.Time) (bool, error) {
	query, args, err := psql.Update("post_drafts").
		Set("approval_message_id", messageID).
		Set("updated_at", at).
		Where(sq.Eq{"id": draftID}).
		Where(sq.Expr("approval_message_id IS NULL")).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	return r.execGuarded(ctx, "set approval message id", query, args)
}

// Resolve moves a PENDING_APPROVAL draft into APPROVED or REJECTED.
func (r *DraftRepository) Resolve(ctx context.Context, draftID string, status domain.PostStatus, publishAt *time.Time, at time.Time) (bool, error) {
	if !domain.StatusPendingApproval.CanTransitionTo(status) {
		return false, fmt.Errorf("illegal resolution status %s", status)
	}

	builder := psql.Update("post_drafts").
		Set("status", string(status)).
		Set("updated_at", at).
		Where(sq.Eq{"id": draftID, "status": string(domain.StatusPendingApproval)})
	if publishAt != nil {
		builder = builder.Set("scheduled_publish_time", *publishAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	return r.execGuarded(ctx, "resolve draft", query, args)
}

// DueForPublish returns APPROVED drafts whose publish time is unset or
// past and that have not been published yet.
func (r *DraftRepository) DueForPublish(ctx context.Context, now time.Time, limit int) ([]domain.PostDraft, error) {
	query, args, err := psql.Select(draftColumns...).
		From("post_drafts").
		Where(sq.Eq{"status": string(domain.StatusApproved)}).
		Where(sq.Or{
			sq.Expr("scheduled_publish_time IS NULL"),
			sq.LtOrEq{"scheduled_publish_time": now},
		}).
		Where(sq.Expr("external_post_id IS NULL")).
		OrderBy("scheduled_publish_time ASC NULLS FIRST").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryDrafts(ctx, query, args)
}

// MarkPublished flips an approved draft to PUBLISHED, recording the
// external post id and clearing any stale error.
func (r *DraftRepository) MarkPublished(ctx context.Context, draftID, externalPostID string, at time.Time) (bool, error) {
	query, args, err := psql.Update("post_drafts").
		Set("status", string(domain.StatusPublished)).
		Set("external_post_id", externalPostID).
		Set("error_message", nil).
		Set("updated_at", at).
		Where(sq.Eq{"id": draftID, "status": string(domain.StatusApproved)}).
		Where(sq.Expr("external_post_id IS NULL")).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	return r.execGuarded(ctx, "mark published", query, args)
}

// MarkPublishError records a terminal publish failure. Only still-approved
// drafts are touched, so a concurrent successful publish wins.
func (r *DraftRepository) MarkPublishError(ctx context.Context, draftID, detail string, at time.Time) error {
	query, args, err := psql.Update("post_drafts").
		Set("status", string(domain.StatusError)).
		Set("error_message", detail).
		Set("updated_at", at).
		Where(sq.Eq{"id": draftID, "status": string(domain.StatusApproved)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark publish error: %w", err)
	}
	return nil
}

// NeedingEngagementCheck returns recently published drafts due for an
// engagement refresh.
func (r *DraftRepository) NeedingEngagementCheck(ctx context.Context, publishedSince, checkedBefore time.Time, limit int) ([]domain.PostDraft, error) {
	query, args, err := psql.Select(draftColumns...).
		From("post_drafts").
		Where(sq.Eq{"status": string(domain.StatusPublished)}).
		Where(sq.Expr("external_post_id IS NOT NULL")).
		Where(sq.GtOrEq{"updated_at": publishedSince}).
		Where(sq.Or{
			sq.Expr("engagement_last_checked IS NULL"),
			sq.Lt{"engagement_last_checked": checkedBefore},
		}).
		OrderBy("engagement_last_checked ASC NULLS FIRST").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryDrafts(ctx, query, args)
}

// SaveEngagement stores the snapshot and stamps the check time.
func (r *DraftRepository) SaveEngagement(ctx context.Context, draftID string, snapshot *domain.EngagementSnapshot, at time.Time) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal engagement: %w", err)
	}

	query, args, err := psql.Update("post_drafts").
		Set("engagement_stats", payload).
		Set("engagement_last_checked", at).
		Where(sq.Eq{"id": draftID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save engagement: %w", err)
	}
	return nil
}

// TouchEngagementChecked stamps the check time without a snapshot, keeping
// a problematic post out of tight retry loops.
func (r *DraftRepository) TouchEngagementChecked(ctx context.Context, draftID string, at time.Time) error {
	query, args, err := psql.Update("post_drafts").
		Set("engagement_last_checked", at).
		Where(sq.Eq{"id": draftID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch engagement checked: %w", err)
	}
	return nil
}

// CountPublishedSince counts drafts published within the trailing window.
func (r *DraftRepository) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("post_drafts").
		Where(sq.Eq{"status": string(domain.StatusPublished)}).
		Where(sq.GtOrEq{"updated_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return count, nil
}

// EngagementTotalsSince sums likes and comments over snapshots refreshed
// within the trailing window.
func (r *DraftRepository) EngagementTotalsSince(ctx context.Context, since time.Time) (int, int, error) {
	const query = `SELECT
        COALESCE(SUM((engagement_stats->>'likes')::int), 0),
        COALESCE(SUM((engagement_stats->>'comments')::int), 0)
      FROM post_drafts
      WHERE status = $1 AND engagement_stats IS NOT NULL AND engagement_last_checked >= $2`

	var likes, comments int
	if err := r.db.QueryRowContext(ctx, query, string(domain.StatusPublished), since).Scan(&likes, &comments); err != nil {
		return 0, 0, fmt.Errorf("sum engagement: %w", err)
	}
	return likes, comments, nil
}

func (r *DraftRepository) queryDrafts(ctx context.Context, query string, args []interface{}) ([]domain.PostDraft, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.PostDraft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return drafts, nil
}

func (r *DraftRepository) execGuarded(ctx context.Context, op, query string, args []interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected > 0, nil
}

var draftColumns = []string{
	"id", "trend_id", "headline_suggestion", "generated_text", "image_prompt",
	"generated_image_url", "image_job_id", "status", "voice_profile",
	"created_at", "updated_at", "scheduled_publish_time", "external_post_id",
	"error_message", "approval_message_id", "engagement_stats", "engagement_last_checked",
}

func scanDraft(rows *sql.Rows) (domain.PostDraft, error) {
	var (
		draft      domain.PostDraft
		trendID    sql.NullString
		headline   sql.NullString
		imgPrompt  sql.NullString
		imgURL     sql.NullString
		imgJobID   sql.NullString
		status     string
		voice      sql.NullString
		publishAt  sql.NullTime
		externalID sql.NullString
		errMsg     sql.NullString
		approvalID sql.NullString
		stats      []byte
		checkedAt  sql.NullTime
	)
	if err := rows.Scan(&draft.ID, &trendID, &headline, &draft.GeneratedText, &imgPrompt,
		&imgURL, &imgJobID, &status, &voice,
		&draft.CreatedAt, &draft.UpdatedAt, &publishAt, &externalID,
		&errMsg, &approvalID, &stats, &checkedAt); err != nil {
		return domain.PostDraft{}, fmt.Errorf("scan draft: %w", err)
	}

	draft.TrendID = strOrEmpty(trendID)
	draft.HeadlineSuggestion = strOrEmpty(headline)
	draft.ImagePrompt = strOrEmpty(imgPrompt)
	draft.GeneratedImageURL = strOrEmpty(imgURL)
	draft.ImageJobID = strOrEmpty(imgJobID)
	draft.Status = domain.PostStatus(status)
	draft.VoiceProfile = strOrEmpty(voice)
	draft.ScheduledPublishTime = timeOrNil(publishAt)
	draft.ExternalPostID = strOrEmpty(externalID)
	draft.ErrorMessage = strOrEmpty(errMsg)
	draft.ApprovalMessageID = strOrEmpty(approvalID)
	draft.EngagementStats = stats
	draft.EngagementLastChecked = timeOrNil(checkedAt)
	return draft, nil
}
