package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

// CredentialRepository persists LinkedIn token sets keyed by operator.
type CredentialRepository struct {
	db *sql.DB
}

var _ ports.CredentialRepository = (*CredentialRepository)(nil)

// NewCredentialRepository wires a sql.DB implementation.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get loads the credential for one operator or ports.ErrNotFound.
func (r *CredentialRepository) Get(ctx context.Context, operatorID string) (*domain.Credential, error) {
	query, args, err := psql.Select("operator_id", "access_token", "refresh_token", "expires_at",
		"refresh_expires_at", "account_urn", "created_at", "updated_at").
		From("credentials").
		Where(sq.Eq{"operator_id": operatorID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		cred         domain.Credential
		refreshToken sql.NullString
		refreshExp   sql.NullTime
		accountURN   sql.NullString
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&cred.OperatorID, &cred.AccessToken,
		&refreshToken, &cred.ExpiresAt, &refreshExp, &accountURN, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}

	cred.RefreshToken = strOrEmpty(refreshToken)
	cred.RefreshExpiresAt = timeOrNil(refreshExp)
	cred.AccountURN = strOrEmpty(accountURN)
	return &cred, nil
}

// Upsert inserts or replaces the operator's credential. The account URN is
// kept when the incoming value is empty, and created_at survives updates.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	const query = `INSERT INTO credentials
        (operator_id, access_token, refresh_token, expires_at, refresh_expires_at, account_urn, created_at, updated_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
      ON CONFLICT (operator_id) DO UPDATE SET
        access_token       = EXCLUDED.access_token,
        refresh_token      = EXCLUDED.refresh_token,
        expires_at         = EXCLUDED.expires_at,
        refresh_expires_at = EXCLUDED.refresh_expires_at,
        account_urn        = COALESCE(NULLIF(EXCLUDED.account_urn, ''), credentials.account_urn),
        updated_at         = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		cred.OperatorID, cred.AccessToken, nullStr(cred.RefreshToken), cred.ExpiresAt,
		nullTime(cred.RefreshExpiresAt), cred.AccountURN, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}
