package model

import (
	"slices"
	"time"
)

// RunStatus is a haul's position in its lifecycle.
type RunStatus string

// Run statuses in lifecycle order.
const (
	RunStatusPrepping    RunStatus = "prepping"
	RunStatusLive        RunStatus = "live"
	RunStatusHeadingBack RunStatus = "heading_back"
	RunStatusArrived     RunStatus = "arrived"
	RunStatusCompleted   RunStatus = "completed"
)

// runStatusOrder is the only legal direction of travel for a run.
var runStatusOrder = []RunStatus{
	RunStatusPrepping,
	RunStatusLive,
	RunStatusHeadingBack,
	RunStatusArrived,
	RunStatusCompleted,
}

// Index returns the position of s in the lifecycle, or -1 for unknown values.
func (s RunStatus) Index() int {
	return slices.Index(runStatusOrder, s)
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	return s.Index() >= 0
}

// Open reports whether a run in this status still appears in nearby listings.
func (s RunStatus) Open() bool {
	return s == RunStatusPrepping || s == RunStatusLive
}

// Run is a host's shopping trip that others can join.
type Run struct {
	ID                  int64      `json:"id"`
	HostID              int64      `json:"host_id"`
	StoreName           string     `json:"store_name"`
	Status              RunStatus  `json:"status"`
	ExpiresAt           time.Time  `json:"expires_at"`
	Lat                 float64    `json:"-"`
	Lng                 float64    `json:"-"`
	PickupImagePath     string     `json:"-"`
	PickupInstructions  string     `json:"-"`
	PaymentInstructions string     `json:"-"`
	IsTakingRequests    bool       `json:"is_taking_requests"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"-"`
}

// Message is a chat line on a run. System messages have no author.
type Message struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Body      string    `json:"body"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}
