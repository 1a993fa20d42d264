package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/gannonmg/lockbox/pkg/backend"
)

func setupMock(t *testing.T) (*Backend, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	b := NewWithDB(db)
	cleanup := func() {
		_ = b.Close()
	}
	return b, mock, cleanup
}

func TestPut_DeletesBeforeInsert(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3`)).
		WithArgs("app", "generic-password", "api-token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO secrets (namespace, class, key, value, updated_at)`)).
		WithArgs("app", "generic-password", "api-token", []byte("hvs.abc123")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := b.Put(context.Background(), "app", "api-token", []byte("hvs.abc123"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPut_InsertErrorRollsBack(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets`)).
		WithArgs("app", "generic-password", "api-token").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO secrets`)).
		WithArgs("app", "generic-password", "api-token", []byte("v")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := b.Put(context.Background(), "app", "api-token", []byte("v"))
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGet_Success(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3`)).
		WithArgs("app", "generic-password", "api-token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("hvs.abc123")))

	got, err := b.Get(context.Background(), "app", "api-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hvs.abc123" {
		t.Errorf("expected hvs.abc123, got %q", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM secrets`)).
		WithArgs("app", "generic-password", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := b.Get(context.Background(), "app", "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ConnectionError(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM secrets`)).
		WithArgs("app", "generic-password", "api-token").
		WillReturnError(errors.New("connection refused"))

	_, err := b.Get(context.Background(), "app", "api-token")
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3`)).
		WithArgs("app", "generic-password", "api-token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.Delete(context.Background(), "app", "api-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets`)).
		WithArgs("app", "generic-password", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := b.Delete(context.Background(), "app", "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClear_SweepsRemainingClassesAfterFailure(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets WHERE namespace = $1 AND class = $2`)).
		WithArgs("app", "generic-password").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM secrets WHERE namespace = $1 AND class = $2`)).
		WithArgs("app", "certificate").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := b.Clear(context.Background(), "app", []backend.Class{
		backend.ClassGenericPassword,
		backend.ClassCertificate,
	})
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	// The second class must still have been swept.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestKeys(t *testing.T) {
	b, mock, cleanup := setupMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"key"}).
		AddRow("api-token").
		AddRow("db-password")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key FROM secrets WHERE namespace = $1 AND class = ANY($2) ORDER BY class, key`)).
		WithArgs("app", pq.Array([]string{"generic-password", "certificate"})).
		WillReturnRows(rows)

	keys, err := b.Keys(context.Background(), "app", []backend.Class{
		backend.ClassGenericPassword,
		backend.ClassCertificate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "api-token" || keys[1] != "db-password" {
		t.Errorf("unexpected keys: %v", keys)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
