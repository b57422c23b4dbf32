package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType tags an activity log entry and selects its metadata shape.
type ActivityType string

// Activity types.
const (
	ActivityUserJoined       ActivityType = "user_joined"
	ActivityHostAutoJoin     ActivityType = "host_auto_join"
	ActivityUserLeft         ActivityType = "user_left"
	ActivityUserKicked       ActivityType = "user_kicked"
	ActivityPaymentMarked    ActivityType = "payment_marked"
	ActivityPaymentConfirmed ActivityType = "payment_confirmed"
	ActivityStatusChange     ActivityType = "status_change"
	ActivityComment          ActivityType = "comment"
	ActivityRunCancelled     ActivityType = "run_cancelled"
)

// ActivityMetadata is implemented by every activity payload variant.
type ActivityMetadata interface {
	ActivityType() ActivityType
}

// UserJoined is logged when a participant reserves slots.
type UserJoined struct {
	Slots int             `json:"slots"`
	Cost  decimal.Decimal `json:"cost"`
}

// HostAutoJoin is logged when the host keeps slots of the anchor item.
type HostAutoJoin struct {
	Slots int `json:"slots"`
}

// Departure is the payload shared by UserLeft and UserKicked.
type Departure struct {
	TargetUserID   int64  `json:"target_user_id"`
	TargetUserName string `json:"target_user_name"`
	Quantity       int    `json:"quantity"`
}

// UserLeft is logged when a participant leaves on their own.
type UserLeft struct{ Departure }

// UserKicked is logged when the host removes a participant.
type UserKicked struct{ Departure }

// PaymentMarked is logged when a buyer marks their commitment paid.
type PaymentMarked struct {
	CommitmentID int64           `json:"commitment_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// PaymentReceived is logged when the host confirms receipt.
type PaymentReceived struct {
	CommitmentID int64           `json:"commitment_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// StatusChange records a run status transition.
type StatusChange struct {
	Old RunStatus `json:"old"`
	New RunStatus `json:"new"`
}

// Comment is logged when a participant posts in the run chat.
type Comment struct {
	MessageID int64 `json:"message_id"`
}

// RunCancelled is logged when the host cancels the run.
type RunCancelled struct {
	Participants int `json:"participants"`
}

func (UserJoined) ActivityType() ActivityType      { return ActivityUserJoined }
func (HostAutoJoin) ActivityType() ActivityType    { return ActivityHostAutoJoin }
func (UserLeft) ActivityType() ActivityType        { return ActivityUserLeft }
func (UserKicked) ActivityType() ActivityType      { return ActivityUserKicked }
func (PaymentMarked) ActivityType() ActivityType   { return ActivityPaymentMarked }
func (PaymentReceived) ActivityType() ActivityType { return ActivityPaymentConfirmed }
func (StatusChange) ActivityType() ActivityType    { return ActivityStatusChange }
func (Comment) ActivityType() ActivityType         { return ActivityComment }
func (RunCancelled) ActivityType() ActivityType    { return ActivityRunCancelled }

// Activity is an immutable entry in a run's audit trail.
type Activity struct {
	ID        int64            `json:"id"`
	RunID     int64            `json:"run_id"`
	UserID    *int64           `json:"user_id,omitempty"`
	UserName  string           `json:"user_name"`
	Type      ActivityType     `json:"type"`
	Metadata  ActivityMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
	// StoreName is only filled in by cross-run listings.
	StoreName string `json:"store_name,omitempty"`
}

// EncodeMetadata serializes a payload for storage.
func EncodeMetadata(m ActivityMetadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding %s metadata: %w", m.ActivityType(), err)
	}
	return string(b), nil
}

// DecodeMetadata parses a stored payload into the variant selected by t.
func DecodeMetadata(t ActivityType, raw string) (ActivityMetadata, error) {
	var m ActivityMetadata
	switch t {
	case ActivityUserJoined:
		m = &UserJoined{}
	case ActivityHostAutoJoin:
		m = &HostAutoJoin{}
	case ActivityUserLeft:
		m = &UserLeft{}
	case ActivityUserKicked:
		m = &UserKicked{}
	case ActivityPaymentMarked:
		m = &PaymentMarked{}
	case ActivityPaymentConfirmed:
		m = &PaymentReceived{}
	case ActivityStatusChange:
		m = &StatusChange{}
	case ActivityComment:
		m = &Comment{}
	case ActivityRunCancelled:
		m = &RunCancelled{}
	default:
		return nil, fmt.Errorf("unknown activity type %q", t)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), m); err != nil {
			return nil, fmt.Errorf("decoding %s metadata: %w", t, err)
		}
	}
	return deref(m), nil
}

func deref(m ActivityMetadata) ActivityMetadata {
	switch v := m.(type) {
	case *UserJoined:
		return *v
	case *HostAutoJoin:
		return *v
	case *UserLeft:
		return *v
	case *UserKicked:
		return *v
	case *PaymentMarked:
		return *v
	case *PaymentReceived:
		return *v
	case *StatusChange:
		return *v
	case *Comment:
		return *v
	case *RunCancelled:
		return *v
	}
	return m
}

// Message renders the entry for the activity feed.
func (a Activity) Message() string {
	name := a.UserName
	if name == "" {
		name = "Someone"
	}

	switch m := a.Metadata.(type) {
	case UserJoined:
		return fmt.Sprintf("%s joined with %d slots", name, m.Slots)
	case HostAutoJoin:
		return fmt.Sprintf("Host created the haul (keeping %d slots)", m.Slots)
	case PaymentMarked:
		return name + " marked payment sent"
	case PaymentReceived:
		return name + " confirmed payment received"
	case UserLeft:
		return targetName(m.TargetUserName) + " left the haul"
	case UserKicked:
		return "Host removed " + targetName(m.TargetUserName)
	case StatusChange:
		return "Run status changed to " + string(m.New)
	case Comment:
		return name + " left a comment"
	case RunCancelled:
		return "Host cancelled the haul"
	}
	return "Activity: " + string(a.Type)
}

func targetName(n string) string {
	if n == "" {
		return "A user"
	}
	return n
}
