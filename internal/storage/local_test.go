package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndOpen(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	ctx := context.Background()

	path, err := s.Save(ctx, "acme", "report.csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "acme" {
		t.Errorf("expected file under the tenant directory, got %s", path)
	}

	f, err := s.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("unexpected contents: %q", data)
	}
}

func TestURL(t *testing.T) {
	s := NewLocalStorage("/tmp/files", "http://localhost:8080")
	got := s.URL("acme", "report.csv")
	if got != "http://localhost:8080/files/acme/report.csv" {
		t.Errorf("unexpected URL: %s", got)
	}

	// Empty base URL yields a relative path.
	s = NewLocalStorage("/tmp/files", "")
	if got := s.URL("acme", "report.csv"); got != "/files/acme/report.csv" {
		t.Errorf("unexpected relative URL: %s", got)
	}
}

func TestDelete(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), "")
	ctx := context.Background()

	path, err := s.Save(ctx, "acme", "temp.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file removed")
	}

	// Deleting a missing file is not an error.
	if err := s.Delete(ctx, path); err != nil {
		t.Errorf("expected idempotent delete, got %v", err)
	}
}
