package store

import (
	"context"
	"testing"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
)

func TestCreateAndGetItem(t *testing.T) {
	database := db.NewTestDB(t)
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)

	item := seedItem(t, database, run.ID, 5)
	if item.UnitsFilled != 0 || item.UnitsTotal != 5 {
		t.Errorf("expected 0/5, got %d/%d", item.UnitsFilled, item.UnitsTotal)
	}
	if item.UnitCost.String() != "2.5" {
		t.Errorf("expected unit cost 2.5, got %s", item.UnitCost)
	}
	if item.Type != model.ItemTypeBulkSplit {
		t.Errorf("expected bulk_split, got %s", item.Type)
	}
}

func TestIncrementFilledGuard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)

	ok, err := IncrementFilled(ctx, database, item.ID, 3)
	if err != nil || !ok {
		t.Fatalf("IncrementFilled(3) = %v, %v", ok, err)
	}

	ok, err = IncrementFilled(ctx, database, item.ID, 3)
	if err != nil {
		t.Fatalf("IncrementFilled: %v", err)
	}
	if ok {
		t.Error("expected increment past capacity to be rejected")
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.UnitsFilled != 3 {
		t.Errorf("expected units_filled 3, got %d", got.UnitsFilled)
	}
}

func TestDecrementFilledGuard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)
	IncrementFilled(ctx, database, item.ID, 2)

	ok, _ := DecrementFilled(ctx, database, item.ID, 3)
	if ok {
		t.Error("expected decrement below zero to be rejected")
	}
	ok, _ = DecrementFilled(ctx, database, item.ID, 2)
	if !ok {
		t.Error("expected decrement to zero to succeed")
	}
}

func TestListItemsByRun(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	other := seedRun(t, database, host.ID, 51.5, -0.05)

	seedItem(t, database, run.ID, 2)
	seedItem(t, database, run.ID, 3)
	seedItem(t, database, other.ID, 4)

	items, err := ListItemsByRun(ctx, database, run.ID)
	if err != nil {
		t.Fatalf("ListItemsByRun: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}
