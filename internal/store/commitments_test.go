package store

import (
	"context"
	"testing"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/shopspring/decimal"
)

func TestInsertAndGetCommitment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	buyer := seedUser(t, database, "buyer")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)

	id, err := InsertCommitment(ctx, database, &model.Commitment{
		ItemID:      item.ID,
		UserID:      buyer.ID,
		Quantity:    2,
		TotalAmount: decimal.RequireFromString("5.00"),
	}, testNow)
	if err != nil {
		t.Fatalf("InsertCommitment: %v", err)
	}

	c, err := GetCommitment(ctx, database, id)
	if err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}
	if c.Status != model.CommitmentPending || c.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("expected pending/unpaid, got %s/%s", c.Status, c.PaymentStatus)
	}
	if c.RunID != run.ID || c.UserName != "buyer" {
		t.Errorf("expected joined run %d and user 'buyer', got %d and %q", run.ID, c.RunID, c.UserName)
	}
	if !c.TotalAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected total 5, got %s", c.TotalAmount)
	}
	if !c.CreatedAt.Equal(testNow) {
		t.Errorf("expected created_at %v, got %v", testNow, c.CreatedAt)
	}
}

func TestDeleteCommitmentOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)
	id, _ := InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 1}, testNow)

	ok, err := DeleteCommitment(ctx, database, id)
	if err != nil || !ok {
		t.Fatalf("DeleteCommitment = %v, %v", ok, err)
	}
	ok, _ = DeleteCommitment(ctx, database, id)
	if ok {
		t.Error("expected second delete to report false")
	}
}

func TestUpdateCommitmentPayment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)
	id, _ := InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 1}, testNow)

	UpdateCommitmentPayment(ctx, database, id, model.PaymentPaidMarked, "", testNow)
	c, _ := GetCommitment(ctx, database, id)
	if c.PaymentStatus != model.PaymentPaidMarked || c.Status != model.CommitmentPending {
		t.Errorf("expected paid_marked/pending, got %s/%s", c.PaymentStatus, c.Status)
	}

	UpdateCommitmentPayment(ctx, database, id, model.PaymentConfirmed, model.CommitmentConfirmed, testNow)
	c, _ = GetCommitment(ctx, database, id)
	if c.PaymentStatus != model.PaymentConfirmed || c.Status != model.CommitmentConfirmed {
		t.Errorf("expected confirmed/confirmed, got %s/%s", c.PaymentStatus, c.Status)
	}
}

func TestSumCommitted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	host := seedUser(t, database, "host")
	run := seedRun(t, database, host.ID, 51.5, -0.05)
	item := seedItem(t, database, run.ID, 5)

	sum, _ := SumCommitted(ctx, database, item.ID)
	if sum != 0 {
		t.Errorf("expected 0, got %d", sum)
	}

	InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 2}, testNow)
	InsertCommitment(ctx, database, &model.Commitment{ItemID: item.ID, UserID: host.ID, Quantity: 1}, testNow)

	sum, _ = SumCommitted(ctx, database, item.ID)
	if sum != 3 {
		t.Errorf("expected 3, got %d", sum)
	}
}
