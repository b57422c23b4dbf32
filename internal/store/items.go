package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

const itemColumns = `id, run_id, title, type, unit_cost, units_total, units_filled, created_at`

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	it := &model.Item{}
	err := row.Scan(&it.ID, &it.RunID, &it.Title, &it.Type, &it.UnitCost,
		&it.UnitsTotal, &it.UnitsFilled, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// CreateItem inserts an item with no filled units.
func CreateItem(ctx context.Context, q Querier, it *model.Item, now time.Time) (*model.Item, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO items (run_id, title, type, unit_cost, units_total, units_filled, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		it.RunID, it.Title, it.Type, it.UnitCost.String(), it.UnitsTotal, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, q, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	it, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return it, nil
}

// ListItemsByRun returns a run's items in creation order.
func ListItemsByRun(ctx context.Context, q Querier, runID int64) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// IncrementFilled adds quantity to units_filled unless that would exceed
// units_total. It reports false when the guard rejected the update.
func IncrementFilled(ctx context.Context, q Querier, itemID int64, quantity int) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET units_filled = units_filled + ?
		 WHERE id = ? AND units_filled + ? <= units_total`,
		quantity, itemID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("incrementing units filled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking units filled increment: %w", err)
	}
	return n == 1, nil
}

// DecrementFilled subtracts quantity from units_filled unless that would go
// below zero. It reports false when the guard rejected the update.
func DecrementFilled(ctx context.Context, q Querier, itemID int64, quantity int) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET units_filled = units_filled - ?
		 WHERE id = ? AND units_filled >= ?`,
		quantity, itemID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrementing units filled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking units filled decrement: %w", err)
	}
	return n == 1, nil
}
