package migrate

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A single connection keeps the in-memory database alive across statements.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func TestRun_AppliesAllMigrations(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := Run(context.Background(), db, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"archive", "upload_log", tableName} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s: got %d, want 1", table, n)
		}
	}

	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + tableName).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied migrations = %d, want 2", applied)
	}
}

func TestRun_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), db, logger); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + tableName).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied migrations = %d, want 2", applied)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in      string
		version string
		name    string
		ok      bool
	}{
		{in: "0001_archive.sql", version: "0001", name: "archive", ok: true},
		{in: "0012_upload_log.sql", version: "0012", name: "upload_log", ok: true},
		{in: "1_short.sql", ok: false},
		{in: "0001_archive.txt", ok: false},
		{in: "README.md", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, n, ok := parseMigrationFilename(tt.in)
			if ok != tt.ok || v != tt.version || n != tt.name {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v); want (%q, %q, %v)",
					tt.in, v, n, ok, tt.version, tt.name, tt.ok)
			}
		})
	}
}
