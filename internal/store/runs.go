package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

const runColumns = `r.id, r.host_id, r.store_name, r.status, r.expires_at, r.lat, r.lng,
	COALESCE(r.pickup_image_path, ''), COALESCE(r.pickup_instructions, ''),
	COALESCE(r.payment_instructions, ''), r.is_taking_requests,
	r.created_at, r.updated_at, r.deleted_at`

func scanRun(row interface{ Scan(...any) error }) (*model.Run, error) {
	r := &model.Run{}
	err := row.Scan(&r.ID, &r.HostID, &r.StoreName, &r.Status, &r.ExpiresAt, &r.Lat, &r.Lng,
		&r.PickupImagePath, &r.PickupInstructions, &r.PaymentInstructions, &r.IsTakingRequests,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanRuns(rows *sql.Rows) ([]model.Run, error) {
	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// CreateRun inserts a run and returns its ID. Status starts at prepping.
func CreateRun(ctx context.Context, q Querier, r *model.Run, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO runs (host_id, store_name, status, expires_at, lat, lng, pickup_image_path,
		                   pickup_instructions, payment_instructions, is_taking_requests,
		                   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.HostID, r.StoreName, model.RunStatusPrepping, r.ExpiresAt.UTC(), r.Lat, r.Lng,
		r.PickupImagePath, r.PickupInstructions, r.PaymentInstructions, r.IsTakingRequests,
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting run id: %w", err)
	}
	return id, nil
}

// GetRun returns a run by ID, including soft-deleted runs.
func GetRun(ctx context.Context, q Querier, id int64) (*model.Run, error) {
	r, err := scanRun(q.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

// UpdateRunStatus moves a run from one status to another. It reports false
// when the run was no longer at from, so concurrent transitions cannot both win.
func UpdateRunStatus(ctx context.Context, q Querier, id int64, from, to model.RunStatus, now time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		to, now.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating run status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking run status update: %w", err)
	}
	return n == 1, nil
}

// SoftDeleteRun marks a run as cancelled.
func SoftDeleteRun(ctx context.Context, q Querier, id int64, now time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE runs SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now.UTC(), now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("deleting run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking run deletion: %w", err)
	}
	return n == 1, nil
}

// DeleteRun removes a run and, through cascades, its items, commitments,
// activities and messages.
func DeleteRun(ctx context.Context, q Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purging run: %w", err)
	}
	return nil
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// ListOpenRunsInBox returns live or prepping runs inside the box that have not
// been cancelled or expired by now.
func ListOpenRunsInBox(ctx context.Context, q Querier, b Box, now time.Time) ([]model.Run, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r
		 WHERE r.deleted_at IS NULL
		   AND r.status IN (?, ?)
		   AND r.expires_at > ?
		   AND r.lat BETWEEN ? AND ?
		   AND r.lng BETWEEN ? AND ?
		 ORDER BY r.id`,
		model.RunStatusPrepping, model.RunStatusLive, now.UTC(),
		b.MinLat, b.MaxLat, b.MinLng, b.MaxLng,
	)
	if err != nil {
		return nil, fmt.Errorf("listing nearby runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListRunsForUser returns active runs the user hosts or holds a commitment on,
// newest first.
func ListRunsForUser(ctx context.Context, q Querier, userID int64) ([]model.Run, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r
		 WHERE r.deleted_at IS NULL
		   AND (r.host_id = ? OR EXISTS (
		        SELECT 1 FROM commitments c JOIN items i ON i.id = c.item_id
		        WHERE i.run_id = r.id AND c.user_id = ?))
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListCompletedRunsByHost returns a host's most recent completed runs.
func ListCompletedRunsByHost(ctx context.Context, q Querier, hostID int64, limit int) ([]model.Run, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r
		 WHERE r.host_id = ? AND r.status = ? AND r.deleted_at IS NULL
		 ORDER BY r.updated_at DESC, r.id DESC
		 LIMIT ?`,
		hostID, model.RunStatusCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing completed runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}
