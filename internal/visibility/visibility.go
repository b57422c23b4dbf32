// Package visibility projects a run into the view a particular viewer is
// allowed to see. It does no I/O; callers load the run, its host and its
// items with commitments first.
package visibility

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/shopspring/decimal"
)

// ParticipantsOnly replaces the location for signed-in non-participants.
const ParticipantsOnly = "Visible to participants"

// Aggregate participant statuses.
const (
	ParticipantPaidMarked     = "paid_marked"
	ParticipantPendingPayment = "pending_payment"
	ParticipantConfirmed      = "confirmed"
)

var districtRe = regexp.MustCompile(`^([A-Z]{1,2}\d{1,2})`)

// District returns the outward district of a UK-style postcode, e.g. "E8"
// for "E8 1AA". It returns "" when nothing matches.
func District(postcode string) string {
	m := districtRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(postcode)))
	if m == nil {
		return ""
	}
	return m[1]
}

// Host is the embedded mini-profile of the run's host.
type Host struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Handle    string  `json:"handle"`
	AvatarURL *string `json:"avatar_url"`
}

// BulkSplit summarizes slot uptake on a bulk_split item.
type BulkSplit struct {
	PricePerSlot decimal.Decimal `json:"price_per_slot"`
	TotalSlots   int             `json:"total_slots"`
	TakenSlots   int             `json:"taken_slots"`
	Progress     int             `json:"progress"`
}

type Item struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UnitsTotal  int             `json:"units_total"`
	UnitsFilled int             `json:"units_filled"`
	Remaining   int             `json:"remaining"`
	BulkSplit   *BulkSplit      `json:"bulk_split,omitempty"`
}

// Participant is every commitment of one user on the run folded together.
type Participant struct {
	UserID      int64           `json:"user_id"`
	UserName    string          `json:"user_name"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
}

// RunView is a run as one viewer sees it. Gated fields are always present
// and null when hidden.
type RunView struct {
	ID               int64           `json:"id"`
	StoreName        string          `json:"store_name"`
	Status           model.RunStatus `json:"status"`
	ExpiresAt        time.Time       `json:"expires_at"`
	IsTakingRequests bool            `json:"is_taking_requests"`
	CreatedAt        time.Time       `json:"created_at"`
	Host             Host            `json:"host"`
	Items            []Item          `json:"items"`
	Participants     []Participant   `json:"participants"`

	IsGuest       bool              `json:"is_guest"`
	IsHost        bool              `json:"is_host"`
	MyCommitment  *model.Commitment `json:"my_commitment"`
	CanSeeDetails bool              `json:"can_see_details"`
	CanCancel     *bool             `json:"can_cancel"`

	PickupImageURL      *string `json:"pickup_image_url"`
	PickupInstructions  *string `json:"pickup_instructions"`
	PaymentInstructions *string `json:"payment_instructions"`
	FuzzyLocation       *string `json:"fuzzy_location"`
	Distance            *string `json:"distance"`
}

// Gate builds RunViews. MediaURL turns a stored blob path into a public
// URL; nil leaves paths unchanged.
type Gate struct {
	MediaURL func(path string) string
}

// URL returns the public URL of a stored blob, or nil when path is empty.
func (g Gate) URL(path string) *string {
	if path == "" {
		return nil
	}
	if g.MediaURL != nil {
		path = g.MediaURL(path)
	}
	return &path
}

// Project applies the visibility rules for viewer, which is nil for a
// guest. items must carry their commitments.
func (g Gate) Project(run *model.Run, host *model.User, items []model.Item, viewer *model.User) *RunView {
	v := &RunView{
		ID:               run.ID,
		StoreName:        run.StoreName,
		Status:           run.Status,
		ExpiresAt:        run.ExpiresAt,
		IsTakingRequests: run.IsTakingRequests,
		CreatedAt:        run.CreatedAt,
		Items:            make([]Item, 0, len(items)),
		Participants:     Participants(items),
		IsGuest:          viewer == nil,
	}
	if host != nil {
		v.Host = Host{ID: host.ID, Name: host.Name, Handle: host.Handle, AvatarURL: g.URL(host.AvatarPath)}
	} else {
		v.Host = Host{ID: run.HostID}
	}

	for _, it := range items {
		v.Items = append(v.Items, itemView(it))
	}

	if viewer != nil {
		v.IsHost = viewer.ID == run.HostID
		v.MyCommitment = findCommitment(items, viewer.ID)
	}
	v.CanSeeDetails = viewer != nil && (v.IsHost || v.MyCommitment != nil)

	if v.CanSeeDetails {
		v.PickupImageURL = g.URL(run.PickupImagePath)
		pickup, payment := run.PickupInstructions, run.PaymentInstructions
		v.PickupInstructions = &pickup
		v.PaymentInstructions = &payment
	}

	switch {
	case viewer == nil:
		if host != nil {
			if d := District(host.Postcode); d != "" {
				v.FuzzyLocation = &d
			}
		}
	case !v.CanSeeDetails:
		s := ParticipantsOnly
		v.FuzzyLocation = &s
	}

	if v.IsHost {
		c := CanCancel(run.HostID, items)
		v.CanCancel = &c
	}

	if viewer.HasLocation() {
		d := geo.FormatKm(geo.Distance(
			geo.Point{Lat: *viewer.Lat, Lng: *viewer.Lng},
			geo.Point{Lat: run.Lat, Lng: run.Lng},
		))
		v.Distance = &d
	}

	return v
}

// CanCancel reports whether no participant other than the host holds a
// confirmed commitment.
func CanCancel(hostID int64, items []model.Item) bool {
	for _, it := range items {
		for _, c := range it.Commitments {
			if c.UserID != hostID && c.Status == model.CommitmentConfirmed {
				return false
			}
		}
	}
	return true
}

// Participants folds commitments per user in order of first appearance.
// The combined status is paid_marked if any row is paid_marked, otherwise
// pending_payment if any row is unpaid, otherwise confirmed.
func Participants(items []model.Item) []Participant {
	type acc struct {
		p          Participant
		order      int
		paidMarked bool
		unpaid     bool
	}
	byUser := map[int64]*acc{}
	for _, it := range items {
		for _, c := range it.Commitments {
			a, ok := byUser[c.UserID]
			if !ok {
				a = &acc{p: Participant{UserID: c.UserID, UserName: c.UserName, TotalAmount: decimal.Zero}, order: len(byUser)}
				byUser[c.UserID] = a
			}
			a.p.Quantity += c.Quantity
			a.p.TotalAmount = a.p.TotalAmount.Add(c.TotalAmount)
			switch c.PaymentStatus {
			case model.PaymentPaidMarked:
				a.paidMarked = true
			case model.PaymentUnpaid:
				a.unpaid = true
			}
		}
	}

	accs := make([]*acc, 0, len(byUser))
	for _, a := range byUser {
		switch {
		case a.paidMarked:
			a.p.Status = ParticipantPaidMarked
		case a.unpaid:
			a.p.Status = ParticipantPendingPayment
		default:
			a.p.Status = ParticipantConfirmed
		}
		accs = append(accs, a)
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].order < accs[j].order })

	out := make([]Participant, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.p)
	}
	return out
}

func itemView(it model.Item) Item {
	v := Item{
		ID:          it.ID,
		Title:       it.Title,
		Type:        it.Type,
		UnitCost:    it.UnitCost,
		UnitsTotal:  it.UnitsTotal,
		UnitsFilled: it.UnitsFilled,
		Remaining:   it.Remaining(),
	}
	if it.Type == model.ItemTypeBulkSplit {
		progress := 0
		if it.UnitsTotal > 0 {
			progress = int(decimal.NewFromInt(int64(it.UnitsFilled * 100)).
				Div(decimal.NewFromInt(int64(it.UnitsTotal))).Round(0).IntPart())
		}
		v.BulkSplit = &BulkSplit{
			PricePerSlot: it.UnitCost,
			TotalSlots:   it.UnitsTotal,
			TakenSlots:   it.UnitsFilled,
			Progress:     progress,
		}
	}
	return v
}

func findCommitment(items []model.Item, userID int64) *model.Commitment {
	for _, it := range items {
		for i := range it.Commitments {
			if it.Commitments[i].UserID == userID {
				c := it.Commitments[i]
				return &c
			}
		}
	}
	return nil
}
