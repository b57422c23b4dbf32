package store

import (
	"context"
	"testing"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
)

func TestLoadRunDetail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	buyer := seedUser(t, database, "buyer")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	first := seedItem(t, database, run.ID, 5)
	second := seedItem(t, database, run.ID, 3)

	for _, c := range []model.Commitment{
		{ItemID: first.ID, UserID: host.ID, Quantity: 1},
		{ItemID: first.ID, UserID: buyer.ID, Quantity: 2},
		{ItemID: second.ID, UserID: buyer.ID, Quantity: 1},
	} {
		if _, err := InsertCommitment(ctx, database, &c, testNow); err != nil {
			t.Fatalf("InsertCommitment: %v", err)
		}
	}

	items, err := LoadRunDetail(ctx, database, run.ID)
	if err != nil {
		t.Fatalf("LoadRunDetail: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if len(items[0].Commitments) != 2 || len(items[1].Commitments) != 1 {
		t.Errorf("expected 2 and 1 commitments, got %d and %d",
			len(items[0].Commitments), len(items[1].Commitments))
	}
	if items[1].Commitments[0].UserName != "buyer" {
		t.Errorf("expected joined user name, got %q", items[1].Commitments[0].UserName)
	}
}
