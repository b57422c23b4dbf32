package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
)

func TestListActivitiesNewestFirst(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)

	InsertActivity(ctx, database, run.ID, &host.ID, model.HostAutoJoin{Slots: 2}, testNow)
	InsertActivity(ctx, database, run.ID, &host.ID,
		model.StatusChange{Old: model.RunStatusPrepping, New: model.RunStatusLive}, testNow.Add(time.Minute))
	InsertActivity(ctx, database, run.ID, nil, model.RunCancelled{}, testNow.Add(2*time.Minute))

	page, err := ListActivities(ctx, database, run.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(page))
	}
	if page[0].Type != model.ActivityRunCancelled || page[0].UserID != nil {
		t.Errorf("expected system run_cancelled first, got %s (user %v)", page[0].Type, page[0].UserID)
	}

	change, ok := page[1].Metadata.(model.StatusChange)
	if !ok {
		t.Fatalf("expected StatusChange metadata, got %T", page[1].Metadata)
	}
	if change.New != model.RunStatusLive {
		t.Errorf("expected new status live, got %s", change.New)
	}
	if page[1].UserName != "host" {
		t.Errorf("expected user name 'host', got %q", page[1].UserName)
	}

	rest, _ := ListActivities(ctx, database, run.ID, 2, 2)
	if len(rest) != 1 || rest[0].Type != model.ActivityHostAutoJoin {
		t.Errorf("expected host_auto_join on second page, got %+v", rest)
	}

	n, _ := CountActivities(ctx, database, run.ID)
	if n != 3 {
		t.Errorf("expected 3 activities, got %d", n)
	}
}

func TestListMessagesAfter(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)

	first, _ := InsertMessage(ctx, database, run.ID, &host.ID, "hello", false, testNow)
	InsertMessage(ctx, database, run.ID, &host.ID, "host is back!", true, testNow)

	msgs, err := ListMessages(ctx, database, run.ID, first.ID, 50)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !msgs[0].IsSystem || msgs[0].UserName != "host" {
		t.Errorf("expected host-attributed system message, got %+v", msgs[0])
	}
}

func TestListActivitiesForUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	buyer := seedUser(t, database, "buyer")
	other := seedUser(t, database, "other")

	joined := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, joined.ID, 4)
	InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: buyer.ID, Quantity: 1}, testNow)
	InsertActivity(ctx, database, joined.ID, &host.ID, model.HostAutoJoin{Slots: 1}, testNow)

	elsewhere := seedRun(t, database, other.ID, 51.5, -0.05)
	InsertActivity(ctx, database, elsewhere.ID, &buyer.ID, model.Comment{MessageID: 1}, testNow.Add(time.Minute))
	InsertActivity(ctx, database, elsewhere.ID, &other.ID, model.HostAutoJoin{Slots: 2}, testNow.Add(2*time.Minute))

	cancelled := seedRun(t, database, host.ID, 51.5, -0.05)
	InsertActivity(ctx, database, cancelled.ID, &host.ID, model.RunCancelled{}, testNow.Add(3*time.Minute))
	SoftDeleteRun(ctx, database, cancelled.ID, testNow.Add(3*time.Minute))

	got, err := ListActivitiesForUser(ctx, database, buyer.ID, 10)
	if err != nil {
		t.Fatalf("ListActivitiesForUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 activities, got %d: %+v", len(got), got)
	}
	if got[0].Type != model.ActivityComment || got[0].RunID != elsewhere.ID {
		t.Errorf("expected own comment first, got %s on run %d", got[0].Type, got[0].RunID)
	}
	if got[1].RunID != joined.ID || got[1].StoreName != "Costco" {
		t.Errorf("expected joined run activity with store name, got %+v", got[1])
	}

	hostFeed, _ := ListActivitiesForUser(ctx, database, host.ID, 10)
	if len(hostFeed) != 1 {
		t.Errorf("expected cancelled run to be hidden from host feed, got %d entries", len(hostFeed))
	}

	limited, _ := ListActivitiesForUser(ctx, database, buyer.ID, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}
