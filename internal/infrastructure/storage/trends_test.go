package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestExistsBySummary(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewTrendRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM trends WHERE source = \$1 AND summary = \$2`).
		WithArgs("perplexity", "known trend").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsBySummary(context.Background(), "known trend", "perplexity")
	if err != nil {
		t.Fatalf("ExistsBySummary: %v", err)
	}
	if !exists {
		t.Fatalf("expected existing trend to be found")
	}

	mock.ExpectQuery(`SELECT 1 FROM trends WHERE source = \$1 AND summary = \$2`).
		WithArgs("perplexity", "new trend").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsBySummary(context.Background(), "new trend", "perplexity")
	if err != nil {
		t.Fatalf("ExistsBySummary for unknown: %v", err)
	}
	if exists {
		t.Fatalf("unknown trend must not be reported as existing")
	}
}

func TestReadyForGenerationScansRows(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewTrendRepository(db)

	now := time.Now()
	cutoff := now.Add(-6 * time.Hour)
	rows := sqlmock.NewRows(trendColumns).
		AddRow("t1", "AI agents", "perplexity", 0.8, "summary text", []byte(`{"k":"v"}`), now, nil).
		AddRow("t2", "Remote work", "newspage", nil, nil, nil, now, cutoff.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM trends WHERE \(last_processed_at IS NULL OR last_processed_at < \$1\)`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	trends, err := repo.ReadyForGeneration(context.Background(), cutoff, 5)
	if err != nil {
		t.Fatalf("ReadyForGeneration: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("expected 2 trends, got %d", len(trends))
	}
	if trends[0].Summary != "summary text" || trends[0].LastProcessedAt != nil {
		t.Fatalf("unexpected first trend: %+v", trends[0])
	}
	if trends[1].RelevanceScore != 0 || trends[1].LastProcessedAt == nil {
		t.Fatalf("NULL columns must map to zero values: %+v", trends[1])
	}
}
