package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

// InsertMessage appends a chat message. System messages may still carry the
// user they are attributed to.
func InsertMessage(ctx context.Context, q Querier, runID int64, userID *int64, body string, system bool, now time.Time) (*model.Message, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO messages (run_id, user_id, body, is_system, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, userID, body, system, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	return &model.Message{
		ID:        id,
		RunID:     runID,
		UserID:    userID,
		Body:      body,
		IsSystem:  system,
		CreatedAt: now.UTC(),
	}, nil
}

// ListMessages returns a run's messages after afterID in ascending order.
func ListMessages(ctx context.Context, q Querier, runID, afterID int64, limit int) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT m.id, m.run_id, m.user_id, COALESCE(u.name, ''), m.body, m.is_system, m.created_at
		 FROM messages m
		 LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.run_id = ? AND m.id > ?
		 ORDER BY m.id
		 LIMIT ?`,
		runID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RunID, &m.UserID, &m.UserName, &m.Body, &m.IsSystem, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
