package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commitment statuses: the host's acceptance of a participant.
const (
	CommitmentPending   = "pending"
	CommitmentConfirmed = "confirmed"
	CommitmentRejected  = "rejected"
)

// Payment statuses: the buyer-marks-paid / host-confirms handshake.
const (
	PaymentUnpaid     = "unpaid"
	PaymentPaidMarked = "paid_marked"
	PaymentConfirmed  = "confirmed"
)

// Commitment is a user's reservation of slots on an item.
type Commitment struct {
	ID            int64           `json:"id"`
	ItemID        int64           `json:"item_id"`
	UserID        int64           `json:"user_id"`
	Quantity      int             `json:"quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	UserName string `json:"user_name,omitempty"`
	RunID    int64  `json:"run_id,omitempty"`
}
