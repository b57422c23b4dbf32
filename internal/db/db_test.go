package db

import (
	"strings"
	"testing"
)

func TestDSNAddsPragmas(t *testing.T) {
	got := dsn("/tmp/x.sqlite3")
	if !strings.HasPrefix(got, "file:/tmp/x.sqlite3?") {
		t.Fatalf("unexpected dsn prefix: %s", got)
	}
	for _, want := range []string{"_txlock=immediate", "_time_format=sqlite", "busy_timeout%285000%29", "foreign_keys%28ON%29"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn %q missing %q", got, want)
		}
	}
}

func TestDSNKeepsFileURIParams(t *testing.T) {
	got := dsn("file:test.db?mode=rwc")
	if !strings.HasPrefix(got, "file:test.db?mode=rwc&") {
		t.Errorf("unexpected dsn: %s", got)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var fk int
	if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("reading foreign_keys pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1, got %d", fk)
	}
}
