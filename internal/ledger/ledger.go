// Package ledger reserves and releases slot capacity on items. Every
// mutation of items.units_filled goes through here.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/shopspring/decimal"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxRetries  = 3
	DefaultLockTimeout = 5 * time.Second
)

// Options configures a Ledger.
type Options struct {
	// MaxRetries bounds transparent retries of a transaction that hit a
	// busy database.
	MaxRetries int
	// LockTimeout bounds the wait for an item's lock.
	LockTimeout time.Duration
	// Now is the clock used for row timestamps.
	Now func() time.Time
}

// Ledger serializes reservations per item.
type Ledger struct {
	db          *sql.DB
	locks       *itemLocks
	maxRetries  int
	lockTimeout time.Duration
	now         func() time.Time
}

// New creates a Ledger over database.
func New(database *sql.DB, opts Options) *Ledger {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		db:          database,
		locks:       newItemLocks(),
		maxRetries:  opts.MaxRetries,
		lockTimeout: opts.LockTimeout,
		now:         opts.Now,
	}
}

// Reservation describes slots to reserve on an item.
type Reservation struct {
	ItemID   int64
	UserID   int64
	Quantity int
	// Free records the commitment with a zero total, as for the host's own slots.
	Free          bool
	Status        string
	PaymentStatus string
}

// TxHook runs inside the ledger's transaction after the ledger mutation and
// before commit. Returning an error rolls the mutation back.
type TxHook func(ctx context.Context, tx *sql.Tx, c *model.Commitment) error

// Reserve takes quantity slots on an item for a user. The check of remaining
// capacity, the commitment insert, the counter increment and hook all commit
// together or not at all.
func (l *Ledger) Reserve(ctx context.Context, r Reservation, hook TxHook) (*model.Commitment, error) {
	if r.Quantity < 1 {
		return nil, model.Invalid("quantity", "must be at least 1")
	}

	unlock, err := l.lock(ctx, r.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var c *model.Commitment
	err = db.WithTx(ctx, l.db, l.maxRetries, func(tx *sql.Tx) error {
		var err error
		c, err = l.ReserveTx(ctx, tx, r)
		if err != nil {
			return err
		}
		if hook != nil {
			return hook(ctx, tx, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("slots reserved", "item", r.ItemID, "user", r.UserID, "quantity", r.Quantity, "commitment", c.ID)
	return c, nil
}

// ReserveTx performs the reservation inside a caller's transaction without
// taking the item lock. It is only safe for items no other transaction can
// see yet, such as an item created earlier in tx.
func (l *Ledger) ReserveTx(ctx context.Context, tx *sql.Tx, r Reservation) (*model.Commitment, error) {
	if r.Quantity < 1 {
		return nil, model.Invalid("quantity", "must be at least 1")
	}

	item, err := store.GetItem(ctx, tx, r.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", r.ItemID, model.ErrNotFound)
	}

	if remaining := item.Remaining(); r.Quantity > remaining {
		return nil, &model.InsufficientStockError{Available: remaining, Requested: r.Quantity}
	}

	total := decimal.Zero
	if !r.Free {
		total = item.UnitCost.Mul(decimal.NewFromInt(int64(r.Quantity))).Round(2)
	}

	now := l.now().UTC()
	c := &model.Commitment{
		ItemID:        r.ItemID,
		UserID:        r.UserID,
		Quantity:      r.Quantity,
		TotalAmount:   total,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		RunID:         item.RunID,
	}
	if c.Status == "" {
		c.Status = model.CommitmentPending
	}
	if c.PaymentStatus == "" {
		c.PaymentStatus = model.PaymentUnpaid
	}

	c.ID, err = store.InsertCommitment(ctx, tx, c, now)
	if err != nil {
		return nil, err
	}

	ok, err := store.IncrementFilled(ctx, tx, r.ItemID, r.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The row changed between the read and the guarded update.
		return nil, fmt.Errorf("reserving on item %d: %w", r.ItemID, model.ErrConcurrencyConflict)
	}

	c.CreatedAt, c.UpdatedAt = now, now
	return c, nil
}

// Release removes a commitment and returns its slots to the item. hook sees
// the commitment as it was read inside the transaction and may veto the
// release by returning an error. Releasing a commitment that no longer
// exists is ErrNotFound, so a double release never decrements twice.
func (l *Ledger) Release(ctx context.Context, commitmentID int64, hook TxHook) (*model.Commitment, error) {
	current, err := store.GetCommitment(ctx, l.db, commitmentID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("commitment %d: %w", commitmentID, model.ErrNotFound)
	}

	unlock, err := l.lock(ctx, current.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var released *model.Commitment
	err = db.WithTx(ctx, l.db, l.maxRetries, func(tx *sql.Tx) error {
		c, err := store.GetCommitment(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("commitment %d: %w", commitmentID, model.ErrNotFound)
		}

		deleted, err := store.DeleteCommitment(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("commitment %d: %w", c.ID, model.ErrNotFound)
		}

		ok, err := store.DecrementFilled(ctx, tx, c.ItemID, c.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			slog.Error("ledger invariant violated: release would drive units_filled negative",
				"item", c.ItemID, "commitment", c.ID, "quantity", c.Quantity)
			return fmt.Errorf("releasing commitment %d on item %d: %w", c.ID, c.ItemID, model.ErrLedgerCorrupted)
		}

		if hook != nil {
			if err := hook(ctx, tx, c); err != nil {
				return err
			}
		}

		released = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("slots released", "item", released.ItemID, "user", released.UserID, "quantity", released.Quantity)
	return released, nil
}

// Check verifies that an item's counter matches its live commitments.
func (l *Ledger) Check(ctx context.Context, itemID int64) error {
	item, err := store.GetItem(ctx, l.db, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	sum, err := store.SumCommitted(ctx, l.db, itemID)
	if err != nil {
		return err
	}
	if sum != item.UnitsFilled {
		return fmt.Errorf("item %d has units_filled %d but commitments sum to %d: %w",
			itemID, item.UnitsFilled, sum, model.ErrLedgerCorrupted)
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, itemID int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	unlock, err := l.locks.acquire(lockCtx, itemID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("waiting for item %d: %w", itemID, model.ErrConcurrencyConflict)
	}
	return unlock, nil
}
