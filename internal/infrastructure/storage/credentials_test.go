package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

func TestCredentialGetNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewCredentialRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM credentials WHERE operator_id = \$1`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "nobody"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ports.ErrNotFound, got %v", err)
	}
}

func TestCredentialGetMapsNullableColumns(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewCredentialRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"operator_id", "access_token", "refresh_token", "expires_at",
		"refresh_expires_at", "account_urn", "created_at", "updated_at"}).
		AddRow("op", "tok", nil, now.Add(time.Hour), nil, nil, now, now)
	mock.ExpectQuery(`SELECT .+ FROM credentials WHERE operator_id = \$1`).
		WithArgs("op").
		WillReturnRows(rows)

	cred, err := repo.Get(context.Background(), "op")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred.RefreshToken != "" || cred.RefreshExpiresAt != nil || cred.AccountURN != "" {
		t.Fatalf("NULL columns must map to zero values: %+v", cred)
	}
}

func TestCredentialUpsert(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewCredentialRepository(db)
	now := time.Now()
	refreshExp := now.Add(24 * time.Hour)

	mock.ExpectExec(`INSERT INTO credentials .+ ON CONFLICT \(operator_id\) DO UPDATE SET`).
		WithArgs("op", "tok", "ref", now.Add(time.Hour), refreshExp, "urn:li:person:abc", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Upsert(context.Background(), &domain.Credential{
		OperatorID:       "op",
		AccessToken:      "tok",
		RefreshToken:     "ref",
		ExpiresAt:        now.Add(time.Hour),
		RefreshExpiresAt: &refreshExp,
		AccountURN:       "urn:li:person:abc",
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
