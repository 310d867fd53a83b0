package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

func TestSetApprovalMessageIDReportsGuardOutcome(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)
	at := time.Now()

	mock.ExpectExec(`UPDATE post_drafts SET approval_message_id = \$1, updated_at = \$2 WHERE id = \$3 AND approval_message_id IS NULL`).
		WithArgs("SM123", at, "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.SetApprovalMessageID(context.Background(), "d1", "SM123", at)
	if err != nil {
		t.Fatalf("SetApprovalMessageID: %v", err)
	}
	if !updated {
		t.Fatalf("expected guard to pass on first write")
	}

	mock.ExpectExec(`UPDATE post_drafts SET approval_message_id = \$1, updated_at = \$2 WHERE id = \$3 AND approval_message_id IS NULL`).
		WithArgs("SM456", at, "d1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.SetApprovalMessageID(context.Background(), "d1", "SM456", at)
	if err != nil {
		t.Fatalf("SetApprovalMessageID second call: %v", err)
	}
	if updated {
		t.Fatalf("guard must refuse a second correlation id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkPublishedIsGuardedByStatusAndPostID(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)
	at := time.Now()

	mock.ExpectExec(`UPDATE post_drafts SET status = \$1, external_post_id = \$2, error_message = \$3, updated_at = \$4 WHERE id = \$5 AND status = \$6 AND external_post_id IS NULL`).
		WithArgs("published", "urn:li:share:1", nil, at, "d1", "approved").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.MarkPublished(context.Background(), "d1", "urn:li:share:1", at)
	if err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if !updated {
		t.Fatalf("expected the publish write to land")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkPublishErrorLeavesPublishedDraftsAlone(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)
	at := time.Now()

	mock.ExpectExec(`UPDATE post_drafts SET status = \$1, error_message = \$2, updated_at = \$3 WHERE id = \$4 AND status = \$5`).
		WithArgs("error", "api rejected the post", at, "d1", "approved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkPublishError(context.Background(), "d1", "api rejected the post", at); err != nil {
		t.Fatalf("MarkPublishError: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveRejectsIllegalStatus(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)

	if _, err := repo.Resolve(context.Background(), "d1", domain.StatusPublished, nil, time.Now()); err == nil {
		t.Fatalf("resolving straight to published must fail")
	}
}

func TestFindByIDNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM post_drafts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(draftColumns))

	if _, err := repo.FindByID(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ports.ErrNotFound, got %v", err)
	}
}

func TestFindByIDScansNullableColumns(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(draftColumns).AddRow(
		"d1", nil, nil, "Post body", nil,
		nil, nil, "pending_approval", nil,
		now, now, nil, nil,
		nil, nil, nil, nil)
	mock.ExpectQuery(`SELECT .+ FROM post_drafts WHERE id = \$1`).
		WithArgs("d1").
		WillReturnRows(rows)

	draft, err := repo.FindByID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if draft.Status != domain.StatusPendingApproval {
		t.Fatalf("unexpected status: %s", draft.Status)
	}
	if draft.TrendID != "" || draft.ExternalPostID != "" || draft.ScheduledPublishTime != nil {
		t.Fatalf("NULL columns must map to zero values: %+v", draft)
	}
}

func TestEngagementTotalsSince(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewDraftRepository(db)
	since := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM post_drafts .+ engagement_last_checked >= \$2`).
		WithArgs("published", since).
		WillReturnRows(sqlmock.NewRows([]string{"likes", "comments"}).AddRow(42, 7))

	likes, comments, err := repo.EngagementTotalsSince(context.Background(), since)
	if err != nil {
		t.Fatalf("EngagementTotalsSince: %v", err)
	}
	if likes != 42 || comments != 7 {
		t.Fatalf("unexpected totals: %d likes, %d comments", likes, comments)
	}
}
