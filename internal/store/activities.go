package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

// InsertActivity appends an entry to a run's activity log. Callers pass the
// transaction that made the change being logged.
func InsertActivity(ctx context.Context, q Querier, runID int64, userID *int64, meta model.ActivityMetadata, now time.Time) (int64, error) {
	raw, err := model.EncodeMetadata(meta)
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO activities (run_id, user_id, type, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, userID, meta.ActivityType(), raw, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("logging %s activity: %w", meta.ActivityType(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting activity id: %w", err)
	}
	return id, nil
}

// ListActivities returns a page of a run's activities, newest first.
func ListActivities(ctx context.Context, q Querier, runID int64, limit, offset int) ([]model.Activity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT a.id, a.run_id, a.user_id, COALESCE(u.name, ''), a.type, a.metadata, a.created_at
		 FROM activities a
		 LEFT JOIN users u ON u.id = a.user_id
		 WHERE a.run_id = ?
		 ORDER BY a.id DESC
		 LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows, false)
}

// ListActivitiesForUser returns the newest activities across the live runs
// a user hosts or has joined, plus anything the user did themselves.
func ListActivitiesForUser(ctx context.Context, q Querier, userID int64, limit int) ([]model.Activity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT a.id, a.run_id, a.user_id, COALESCE(u.name, ''), a.type, a.metadata, a.created_at, r.store_name
		 FROM activities a
		 JOIN runs r ON r.id = a.run_id
		 LEFT JOIN users u ON u.id = a.user_id
		 WHERE r.deleted_at IS NULL
		   AND (r.host_id = ?
		        OR a.user_id = ?
		        OR EXISTS (SELECT 1 FROM commitments c JOIN items i ON i.id = c.item_id
		                   WHERE i.run_id = a.run_id AND c.user_id = ?))
		 ORDER BY a.id DESC
		 LIMIT ?`,
		userID, userID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows, true)
}

func scanActivities(rows *sql.Rows, withStore bool) ([]model.Activity, error) {
	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		var raw string
		dest := []any{&a.ID, &a.RunID, &a.UserID, &a.UserName, &a.Type, &raw, &a.CreatedAt}
		if withStore {
			dest = append(dest, &a.StoreName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		meta, err := model.DecodeMetadata(a.Type, raw)
		if err != nil {
			return nil, err
		}
		a.Metadata = meta
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountActivities returns the number of activities on a run.
func CountActivities(ctx context.Context, q Querier, runID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return n, nil
}
