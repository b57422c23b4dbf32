package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

const commitmentColumns = `c.id, c.item_id, c.user_id, c.quantity, c.total_amount, c.status,
	c.payment_status, c.created_at, c.updated_at, u.name, i.run_id`

const commitmentJoins = `FROM commitments c
	JOIN items i ON i.id = c.item_id
	JOIN users u ON u.id = c.user_id`

func scanCommitment(row interface{ Scan(...any) error }) (*model.Commitment, error) {
	c := &model.Commitment{}
	err := row.Scan(&c.ID, &c.ItemID, &c.UserID, &c.Quantity, &c.TotalAmount, &c.Status,
		&c.PaymentStatus, &c.CreatedAt, &c.UpdatedAt, &c.UserName, &c.RunID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// InsertCommitment records a reservation row. It does not touch units_filled;
// callers go through the ledger so the counter moves in the same transaction.
func InsertCommitment(ctx context.Context, q Querier, c *model.Commitment, now time.Time) (int64, error) {
	status, payment := c.Status, c.PaymentStatus
	if status == "" {
		status = model.CommitmentPending
	}
	if payment == "" {
		payment = model.PaymentUnpaid
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO commitments (item_id, user_id, quantity, total_amount, status, payment_status,
		                          created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ItemID, c.UserID, c.Quantity, c.TotalAmount.String(), status, payment, now.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating commitment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting commitment id: %w", err)
	}
	return id, nil
}

// GetCommitment returns a commitment with its user name and run ID.
func GetCommitment(ctx context.Context, q Querier, id int64) (*model.Commitment, error) {
	c, err := scanCommitment(q.QueryRowContext(ctx,
		`SELECT `+commitmentColumns+` `+commitmentJoins+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting commitment: %w", err)
	}
	return c, nil
}

// ListCommitmentsByRun returns every commitment on a run's items.
func ListCommitmentsByRun(ctx context.Context, q Querier, runID int64) ([]model.Commitment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+commitmentColumns+` `+commitmentJoins+` WHERE i.run_id = ? ORDER BY c.id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	defer rows.Close()

	var out []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning commitment: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteCommitment removes a commitment row. It reports false when the row
// was already gone.
func DeleteCommitment(ctx context.Context, q Querier, id int64) (bool, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting commitment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking commitment deletion: %w", err)
	}
	return n == 1, nil
}

// UpdateCommitmentPayment sets the payment status, and the acceptance status
// when status is non-empty.
func UpdateCommitmentPayment(ctx context.Context, q Querier, id int64, paymentStatus, status string, now time.Time) error {
	var err error
	if status == "" {
		_, err = q.ExecContext(ctx,
			`UPDATE commitments SET payment_status = ?, updated_at = ? WHERE id = ?`,
			paymentStatus, now.UTC(), id,
		)
	} else {
		_, err = q.ExecContext(ctx,
			`UPDATE commitments SET payment_status = ?, status = ?, updated_at = ? WHERE id = ?`,
			paymentStatus, status, now.UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("updating commitment payment: %w", err)
	}
	return nil
}

// SumCommitted returns the total quantity of live commitments on an item.
func SumCommitted(ctx context.Context, q Querier, itemID int64) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM commitments WHERE item_id = ?`, itemID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing commitments: %w", err)
	}
	return sum, nil
}
