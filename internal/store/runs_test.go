package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/shopspring/decimal"
)

func seedUser(t *testing.T, database *sql.DB, handle string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, handle, handle, "hash", testNow)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", handle, err)
	}
	return u
}

func seedRun(t *testing.T, database *sql.DB, hostID int64, lat, lng float64) *model.Run {
	t.Helper()
	ctx := context.Background()
	id, err := CreateRun(ctx, database, &model.Run{
		HostID:              hostID,
		StoreName:           "Costco",
		ExpiresAt:           testNow.Add(2 * time.Hour),
		Lat:                 lat,
		Lng:                 lng,
		PickupInstructions:  "Side door",
		PaymentInstructions: "Cash",
	}, testNow)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	r, err := GetRun(ctx, database, id)
	if err != nil || r == nil {
		t.Fatalf("GetRun: %v", err)
	}
	return r
}

func seedItem(t *testing.T, database *sql.DB, runID int64, total int) *model.Item {
	t.Helper()
	it, err := CreateItem(context.Background(), database, &model.Item{
		RunID:      runID,
		Title:      "Rice 10kg",
		Type:       model.ItemTypeBulkSplit,
		UnitCost:   decimal.RequireFromString("2.50"),
		UnitsTotal: total,
	}, testNow)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return it
}

func TestCreateAndGetRun(t *testing.T) {
	database := db.NewTestDB(t)
	host := seedUser(t, database, "host")

	run := seedRun(t, database, host.ID, 51.5, -0.05)
	if run.Status != model.RunStatusPrepping {
		t.Errorf("expected status prepping, got %s", run.Status)
	}
	if !run.ExpiresAt.Equal(testNow.Add(2 * time.Hour)) {
		t.Errorf("expected expires_at %v, got %v", testNow.Add(2*time.Hour), run.ExpiresAt)
	}
	if run.PickupInstructions != "Side door" {
		t.Errorf("expected pickup instructions, got %q", run.PickupInstructions)
	}
}

func TestUpdateRunStatusCompareAndSwap(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)

	ok, err := UpdateRunStatus(ctx, database, run.ID, model.RunStatusPrepping, model.RunStatusLive, testNow)
	if err != nil || !ok {
		t.Fatalf("UpdateRunStatus = %v, %v; want true, nil", ok, err)
	}

	// A second writer that read the old status loses.
	ok, err = UpdateRunStatus(ctx, database, run.ID, model.RunStatusPrepping, model.RunStatusHeadingBack, testNow)
	if err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	if ok {
		t.Error("expected stale status update to be rejected")
	}

	got, _ := GetRun(ctx, database, run.ID)
	if got.Status != model.RunStatusLive {
		t.Errorf("expected live, got %s", got.Status)
	}
}

func TestListOpenRunsInBox(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")

	near := seedRun(t, database, host.ID, 51.50, -0.05)
	seedRun(t, database, host.ID, 48.85, 2.35) // Paris
	cancelled := seedRun(t, database, host.ID, 51.51, -0.06)
	SoftDeleteRun(ctx, database, cancelled.ID, testNow)
	done := seedRun(t, database, host.ID, 51.49, -0.04)
	UpdateRunStatus(ctx, database, done.ID, model.RunStatusPrepping, model.RunStatusArrived, testNow)

	box := Box{MinLat: 51.0, MaxLat: 52.0, MinLng: -1.0, MaxLng: 1.0}
	runs, err := ListOpenRunsInBox(ctx, database, box, testNow)
	if err != nil {
		t.Fatalf("ListOpenRunsInBox: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != near.ID {
		t.Fatalf("expected only run %d, got %+v", near.ID, runs)
	}

	// Runs past their expiry drop out.
	runs, _ = ListOpenRunsInBox(ctx, database, box, testNow.Add(3*time.Hour))
	if len(runs) != 0 {
		t.Errorf("expected expired runs to be hidden, got %d", len(runs))
	}
}

func TestListRunsForUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	guest := seedUser(t, database, "guest")

	hosted := seedRun(t, database, host.ID, 51.5, -0.05)
	joined := seedRun(t, database, guest.ID, 51.5, -0.05)
	item := seedItem(t, database, joined.ID, 4)
	InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 1}, testNow)
	seedRun(t, database, guest.ID, 51.5, -0.05)

	runs, err := ListRunsForUser(ctx, database, host.ID)
	if err != nil {
		t.Fatalf("ListRunsForUser: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	ids := map[int64]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[hosted.ID] || !ids[joined.ID] {
		t.Errorf("expected runs %d and %d, got %v", hosted.ID, joined.ID, ids)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 4)
	InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 1}, testNow)
	InsertActivity(ctx, database, run.ID, &host.ID, model.HostAutoJoin{Slots: 1}, testNow)
	InsertMessage(ctx, database, run.ID, &host.ID, "hi", false, testNow)

	if err := DeleteRun(ctx, database, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	for _, table := range []string{"items", "commitments", "activities", "messages"} {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("expected %s to be empty after run delete, got %d", table, n)
		}
	}
}
