package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item types.
const (
	ItemTypeBulkSplit       = "bulk_split"
	ItemTypePersonalRequest = "personal_request"
)

// ValidItemType reports whether t is a known item type.
func ValidItemType(t string) bool {
	return t == ItemTypeBulkSplit || t == ItemTypePersonalRequest
}

// Item is a purchase line within a run with a fixed slot capacity.
type Item struct {
	ID          int64           `json:"id"`
	RunID       int64           `json:"run_id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UnitsTotal  int             `json:"units_total"`
	UnitsFilled int             `json:"units_filled"`
	CreatedAt   time.Time       `json:"created_at"`

	// Commitments is populated by store.LoadRunDetail.
	Commitments []Commitment `json:"-"`
}

// Remaining returns the number of unreserved slots.
func (i Item) Remaining() int {
	return i.UnitsTotal - i.UnitsFilled
}
