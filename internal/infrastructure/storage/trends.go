package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// TrendRepository persists trends in Postgres.
type TrendRepository struct {
	db *sql.DB
}

var _ ports.TrendRepository = (*TrendRepository)(nil)

// NewTrendRepository wires a sql.DB implementation.
func NewTrendRepository(db *sql.DB) *TrendRepository {
	return &TrendRepository{db: db}
}

// Insert stores a newly discovered trend.
func (r *TrendRepository) Insert(ctx context.Context, trend *domain.Trend) error {
	query, args, err := psql.Insert("trends").
		Columns("id", "topic", "source", "relevance_score", "summary", "raw_data", "identified_at", "last_processed_at").
		Values(trend.ID, trend.Topic, trend.Source, trend.RelevanceScore,
			nullStr(trend.Summary), []byte(trend.RawData), trend.IdentifiedAt, nullTime(trend.LastProcessedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert trend: %w", err)
	}
	return nil
}

// ExistsBySummary reports whether a trend with the same summary and source
// is already stored. Used for discovery deduplication.
func (r *TrendRepository) ExistsBySummary(ctx context.Context, summary, source string) (bool, error) {
	query, args, err := psql.Select("1").
		From("trends").
		Where(sq.Eq{"summary": summary, "source": source}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query trend by summary: %w", err)
	}
	return true, nil
}

// ReadyForGeneration returns trends never processed or last processed
// before cutoff, oldest first.
func (r *TrendRepository) ReadyForGeneration(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trend, error) {
	query, args, err := psql.Select(trendColumns...).
		From("trends").
		Where(sq.Or{
			sq.Expr("last_processed_at IS NULL"),
			sq.Lt{"last_processed_at": cutoff},
		}).
		OrderBy("last_processed_at ASC NULLS FIRST", "identified_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ready trends: %w", err)
	}
	defer rows.Close()

	var trends []domain.Trend
	for rows.Next() {
		trend, err := scanTrend(rows)
		if err != nil {
			return nil, err
		}
		trends = append(trends, trend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return trends, nil
}

// MarkProcessed stamps the trend's last_processed_at.
func (r *TrendRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("trends").
		Set("last_processed_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark trend processed: %w", err)
	}
	return nil
}

var trendColumns = []string{
	"id", "topic", "source", "relevance_score", "summary", "raw_data", "identified_at", "last_processed_at",
}

func scanTrend(rows *sql.Rows) (domain.Trend, error) {
	var (
		trend     domain.Trend
		relevance sql.NullFloat64
		summary   sql.NullString
		raw       []byte
		processed sql.NullTime
	)
	if err := rows.Scan(&trend.ID, &trend.Topic, &trend.Source, &relevance,
		&summary, &raw, &trend.IdentifiedAt, &processed); err != nil {
		return domain.Trend{}, fmt.Errorf("scan trend: %w", err)
	}
	trend.RelevanceScore = relevance.Float64
	trend.Summary = strOrEmpty(summary)
	trend.RawData = raw
	trend.LastProcessedAt = timeOrNil(processed)
	return trend, nil
}
