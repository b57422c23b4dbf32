package store

import (
	"context"

	"github.com/erazemk/skupaj/internal/model"
)

// LoadRunDetail returns a run's items with their commitments attached.
func LoadRunDetail(ctx context.Context, q Querier, runID int64) ([]model.Item, error) {
	items, err := ListItemsByRun(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	commitments, err := ListCommitmentsByRun(ctx, q, runID)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	for _, c := range commitments {
		if i, ok := index[c.ItemID]; ok {
			items[i].Commitments = append(items[i].Commitments, c)
		}
	}
	return items, nil
}
