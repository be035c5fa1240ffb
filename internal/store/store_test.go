package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func TestMapErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:   "23505",
		Detail: "Key (slug)=(orders) already exists.",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(wrapped)
	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", mapped)
	}
}

func TestMapErrorNoRows(t *testing.T) {
	mapped := MapError(fmt.Errorf("query: %w", pgx.ErrNoRows))
	if !errors.Is(mapped, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", mapped)
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	err := errors.New("connection refused")
	if mapped := MapError(err); mapped != err {
		t.Fatalf("expected same error back, got %v", mapped)
	}
	if mapped := MapError(nil); mapped != nil {
		t.Fatalf("expected nil, got %v", mapped)
	}
}

func TestQueryRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name FROM widgets").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("w1", "alpha").
			AddRow("w2", "beta"))

	rows, err := QueryRows(context.Background(), mock, "SELECT id, name FROM widgets")
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["id"] != "w1" || rows[1]["name"] != "beta" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestQueryRowMapNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id FROM widgets").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = QueryRowMap(context.Background(), mock, "SELECT id FROM widgets WHERE id = $1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecRowsAffected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM widgets").
		WithArgs("alpha").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	affected, err := Exec(context.Background(), mock, "DELETE FROM widgets WHERE name = $1", "alpha")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if affected != 3 {
		t.Errorf("expected 3 rows affected, got %d", affected)
	}
}
