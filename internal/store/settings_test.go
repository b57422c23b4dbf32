package store

import (
	"context"
	"testing"

	"github.com/erazemk/skupaj/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestSetSettingOverwrites(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, ok, _ := GetSetting(ctx, database, "motd"); ok {
		t.Fatal("expected missing setting")
	}

	SetSetting(ctx, database, "motd", "one")
	SetSetting(ctx, database, "motd", "two")

	v, ok, err := GetSetting(ctx, database, "motd")
	if err != nil || !ok || v != "two" {
		t.Errorf("GetSetting = %q, %v, %v; want two, true, nil", v, ok, err)
	}
}
