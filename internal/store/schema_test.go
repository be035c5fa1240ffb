package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestTenantSchema(t *testing.T) {
	cases := []struct {
		tenant string
		want   string
	}{
		{"acme", "tenant_acme"},
		{"ACME", "tenant_acme"},
		{"north-west", "tenant_north_west"},
		{"shop42", "tenant_shop42"},
	}
	for _, c := range cases {
		if got := TenantSchema(c.tenant); got != c.want {
			t.Errorf("TenantSchema(%q): expected %s, got %s", c.tenant, c.want, got)
		}
	}
}

func TestColumnType(t *testing.T) {
	cases := []struct {
		fieldType string
		want      string
	}{
		{"text", "TEXT"},
		{"select", "TEXT"},
		{"email", "TEXT"},
		{"number", "NUMERIC"},
		{"integer", "INTEGER"},
		{"boolean", "BOOLEAN"},
		{"date", "TIMESTAMPTZ"},
		{"datetime", "TIMESTAMPTZ"},
		{"currency", "NUMERIC(15,2)"},
		{"lookup", "TEXT"}, // unknown types fall back to TEXT
	}
	for _, c := range cases {
		if got := ColumnType(c.fieldType); got != c.want {
			t.Errorf("ColumnType(%q): expected %s, got %s", c.fieldType, c.want, got)
		}
	}
}

func TestSchemaManagerCreateTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`^CREATE TABLE tenant_acme\.orders \(`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	m := NewSchemaManager(mock)
	if err := m.CreateTable(context.Background(), "tenant_acme", "orders"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchemaManagerAddColumn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	sql := "ALTER TABLE tenant_acme.orders ADD COLUMN amount NUMERIC"
	mock.ExpectExec("^" + regexp.QuoteMeta(sql) + "$").
		WillReturnResult(pgxmock.NewResult("ALTER", 0))

	m := NewSchemaManager(mock)
	if err := m.AddColumn(context.Background(), "tenant_acme", "orders", "amount", "number", false); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchemaManagerRenameTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	sql := "ALTER TABLE tenant_acme.orders RENAME TO sales"
	mock.ExpectExec("^" + regexp.QuoteMeta(sql) + "$").
		WillReturnResult(pgxmock.NewResult("ALTER", 0))

	m := NewSchemaManager(mock)
	if err := m.RenameTable(context.Background(), "tenant_acme", "orders", "sales"); err != nil {
		t.Fatalf("RenameTable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchemaManagerEnsureDocumentTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`^CREATE TABLE IF NOT EXISTS tenant_acme\._documents \(`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	m := NewSchemaManager(mock)
	if err := m.EnsureDocumentTable(context.Background(), "tenant_acme"); err != nil {
		t.Fatalf("EnsureDocumentTable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchemaManagerRejectsBadIdentifiers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	m := NewSchemaManager(mock)
	ctx := context.Background()

	// No statement may reach the database with a hostile identifier.
	bad := []error{
		m.CreateSchema(ctx, "tenant_acme; DROP TABLE _users"),
		m.CreateTable(ctx, "tenant_acme", "orders--"),
		m.AddColumn(ctx, "tenant_acme", "orders", "Amount", "number", false),
		m.RenameColumn(ctx, "tenant_acme", "orders", "ok", "not ok"),
		m.DropTable(ctx, "tenant_acme", `orders"`),
	}
	for i, err := range bad {
		if !errors.Is(err, ErrBadIdentifier) {
			t.Errorf("case %d: expected ErrBadIdentifier, got %v", i, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no SQL should have been executed: %v", err)
	}
}
