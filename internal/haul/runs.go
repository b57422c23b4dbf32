package haul

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/imaging"
	"github.com/erazemk/skupaj/internal/ledger"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/erazemk/skupaj/internal/visibility"
	"github.com/shopspring/decimal"
)

// MaxRadiusMeters caps nearby searches.
const MaxRadiusMeters = 50_000

// Anchor is the optional bulk item created with a run.
type Anchor struct {
	Title     string
	TotalCost decimal.Decimal
	Slots     int
	// HostSlots are kept by the host and reserved at creation.
	HostSlots int
}

// NewRun is the input for CreateRun. Nil instruction pointers and a nil
// PickupImage fall back to the host's saved defaults.
type NewRun struct {
	StoreName           string
	ExpiresInMinutes    int
	PickupImage         io.Reader
	PickupInstructions  *string
	PaymentInstructions *string
	IsTakingRequests    bool
	Anchor              *Anchor
}

func (in NewRun) validate() error {
	name := strings.TrimSpace(in.StoreName)
	if name == "" {
		return model.Invalid("store_name", "is required")
	}
	if utf8.RuneCountInString(name) > 255 {
		return model.Invalid("store_name", "must be at most 255 characters")
	}
	if in.ExpiresInMinutes < 1 {
		return model.Invalid("expires_in", "must be at least 1 minute")
	}
	if a := in.Anchor; a != nil {
		if strings.TrimSpace(a.Title) == "" {
			return model.Invalid("anchor_title", "is required")
		}
		if a.TotalCost.IsNegative() {
			return model.Invalid("anchor_total_cost", "must not be negative")
		}
		if a.Slots < 1 {
			return model.Invalid("anchor_slots", "must be at least 1")
		}
		if a.HostSlots < 0 || a.HostSlots > a.Slots {
			return model.Invalid("anchor_host_slots", fmt.Sprintf("must be between 0 and %d", a.Slots))
		}
	}
	return nil
}

// CreateRun starts a haul at the host's location. The anchor item and the
// host's own slots on it are created in the same transaction as the run.
func (s *Service) CreateRun(ctx context.Context, hostID int64, in NewRun) (*visibility.RunView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	host, err := activeUser(ctx, s.db, hostID)
	if err != nil {
		return nil, err
	}
	if !host.HasLocation() {
		return nil, model.Invalid("location", "set your postcode before creating a haul")
	}

	imagePath := host.DefaultPickupImagePath
	var uploaded string
	if in.PickupImage != nil {
		uploaded, err = s.storeImage(ctx, "pickups", in.PickupImage, imaging.Pickup)
		if err != nil {
			return nil, err
		}
		imagePath = uploaded
	} else if imagePath == "" {
		return nil, model.Invalid("pickup_image", "a pickup photo is required for your first haul")
	}

	pickup := host.DefaultPickupInstructions
	if in.PickupInstructions != nil {
		pickup = strings.TrimSpace(*in.PickupInstructions)
	}
	payment := host.DefaultPaymentInstructions
	if in.PaymentInstructions != nil {
		payment = strings.TrimSpace(*in.PaymentInstructions)
	}

	now := s.now()
	run := &model.Run{
		HostID:              host.ID,
		StoreName:           strings.TrimSpace(in.StoreName),
		Status:              model.RunStatusPrepping,
		ExpiresAt:           now.Add(time.Duration(in.ExpiresInMinutes) * time.Minute),
		Lat:                 *host.Lat,
		Lng:                 *host.Lng,
		PickupImagePath:     imagePath,
		PickupInstructions:  pickup,
		PaymentInstructions: payment,
		IsTakingRequests:    in.IsTakingRequests,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		run.ID, err = store.CreateRun(ctx, tx, run, now)
		if err != nil {
			return err
		}
		run.CreatedAt, run.UpdatedAt = now, now

		if a := in.Anchor; a != nil {
			item, err := store.CreateItem(ctx, tx, &model.Item{
				RunID:      run.ID,
				Title:      strings.TrimSpace(a.Title),
				Type:       model.ItemTypeBulkSplit,
				UnitCost:   a.TotalCost.Div(decimal.NewFromInt(int64(a.Slots))).Round(2),
				UnitsTotal: a.Slots,
			}, now)
			if err != nil {
				return err
			}
			if a.HostSlots > 0 {
				if _, err := s.ledger.ReserveTx(ctx, tx, ledger.Reservation{
					ItemID:        item.ID,
					UserID:        host.ID,
					Quantity:      a.HostSlots,
					Free:          true,
					Status:        model.CommitmentConfirmed,
					PaymentStatus: model.PaymentConfirmed,
				}); err != nil {
					return err
				}
				if _, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(host.ID),
					model.HostAutoJoin{Slots: a.HostSlots}, now); err != nil {
					return err
				}
			}
		}

		return store.UpdateUserRunDefaults(ctx, tx, host.ID, imagePath, pickup, payment)
	})
	if err != nil {
		if uploaded != "" {
			s.deleteBlob(ctx, uploaded)
		}
		return nil, err
	}

	slog.Info("run created", "run", run.ID, "host", host.ID, "store", run.StoreName)
	host.DefaultPickupImagePath = imagePath
	return s.project(ctx, s.db, run, host, host)
}

// NewItem is the input for AddItem.
type NewItem struct {
	Title      string
	Type       string
	UnitCost   decimal.Decimal
	UnitsTotal int
}

// AddItem adds an item to a run. Only the host may add items.
func (s *Service) AddItem(ctx context.Context, actorID, runID int64, in NewItem) (*model.Item, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.Invalid("title", "is required")
	}
	if in.Type == "" {
		in.Type = model.ItemTypeBulkSplit
	}
	if !model.ValidItemType(in.Type) {
		return nil, model.Invalid("type", fmt.Sprintf("unknown item type %q", in.Type))
	}
	if in.UnitCost.IsNegative() {
		return nil, model.Invalid("cost", "must not be negative")
	}
	if in.UnitsTotal < 1 {
		return nil, model.Invalid("units_total", "must be at least 1")
	}

	run, err := activeRun(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}
	if run.HostID != actorID {
		return nil, fmt.Errorf("only the host can add items: %w", model.ErrUnauthorized)
	}
	if run.Status == model.RunStatusCompleted {
		return nil, fmt.Errorf("run %d: %w", runID, model.ErrAlreadyCompleted)
	}

	item, err := store.CreateItem(ctx, s.db, &model.Item{
		RunID:      run.ID,
		Title:      strings.TrimSpace(in.Title),
		Type:       in.Type,
		UnitCost:   in.UnitCost.Round(2),
		UnitsTotal: in.UnitsTotal,
	}, s.now())
	if err != nil {
		return nil, err
	}

	slog.Info("item added", "run", run.ID, "item", item.ID, "units", item.UnitsTotal)
	return item, nil
}

// CancelRun soft-deletes a run. It is refused once any participant other
// than the host has a confirmed commitment.
func (s *Service) CancelRun(ctx context.Context, actorID, runID int64) error {
	var (
		run          *model.Run
		participants []int64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		run, err = activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.HostID != actorID {
			return fmt.Errorf("only the host can cancel the haul: %w", model.ErrUnauthorized)
		}

		items, err := store.LoadRunDetail(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		if !visibility.CanCancel(run.HostID, items) {
			return model.Forbidden("cannot cancel a haul with confirmed participants")
		}

		participants, err = participantIDs(ctx, tx, run)
		if err != nil {
			return err
		}

		now := s.now()
		ok, err := store.SoftDeleteRun(ctx, tx, run.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %d: %w", runID, model.ErrNotFound)
		}
		_, err = store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID),
			model.RunCancelled{Participants: len(participants)}, now)
		return err
	})
	if err != nil {
		return err
	}

	slog.Info("run cancelled", "run", run.ID, "participants", len(participants))
	for _, id := range participants {
		s.notify(id, notify.KindRunCancelled, run.ID, map[string]any{"store_name": run.StoreName})
	}
	return nil
}

// GetRun returns a run projected for viewerID, where 0 is a guest.
func (s *Service) GetRun(ctx context.Context, runID, viewerID int64) (*visibility.RunView, error) {
	run, err := activeRun(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, s.db, run, nil, viewer)
}

// Nearby describes a nearby search. A nil center uses the viewer's location.
type Nearby struct {
	Center       *geo.Point
	RadiusMeters float64
}

// ListNearby returns open runs around a point, nearest first.
func (s *Service) ListNearby(ctx context.Context, viewerID int64, q Nearby) ([]*visibility.RunView, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	center := q.Center
	if center == nil && viewer.HasLocation() {
		center = &geo.Point{Lat: *viewer.Lat, Lng: *viewer.Lng}
	}
	if center == nil {
		return nil, model.Invalid("location", "coordinates are required")
	}

	radius := q.RadiusMeters
	if radius <= 0 {
		radius = s.cfg.DefaultRadius
	}
	radius = min(radius, MaxRadiusMeters)

	matches, err := s.spatial.WithinRadius(ctx, *center, radius)
	if err != nil {
		return nil, fmt.Errorf("finding nearby runs: %w", err)
	}

	views := make([]*visibility.RunView, 0, len(matches))
	for _, m := range matches {
		run, err := store.GetRun(ctx, s.db, m.ID)
		if err != nil {
			return nil, err
		}
		if run == nil || run.DeletedAt != nil {
			continue
		}
		v, err := s.project(ctx, s.db, run, nil, viewer)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// MyHauls returns the runs a user hosts or has joined, newest first.
func (s *Service) MyHauls(ctx context.Context, userID int64) ([]*visibility.RunView, error) {
	viewer, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	runs, err := store.ListRunsForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*visibility.RunView, 0, len(runs))
	for i := range runs {
		v, err := s.project(ctx, s.db, &runs[i], nil, viewer)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// viewer loads the viewing user, or nil for a guest.
func (s *Service) viewer(ctx context.Context, viewerID int64) (*model.User, error) {
	if viewerID == 0 {
		return nil, nil
	}
	return activeUser(ctx, s.db, viewerID)
}

// project loads what the gate needs and applies it. host may be nil.
func (s *Service) project(ctx context.Context, q store.Querier, run *model.Run, host, viewer *model.User) (*visibility.RunView, error) {
	if host == nil {
		var err error
		host, err = store.GetUser(ctx, q, run.HostID)
		if err != nil {
			return nil, err
		}
	}
	items, err := store.LoadRunDetail(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	return s.gate.Project(run, host, items, viewer), nil
}

// storeImage normalizes an uploaded photo and writes it to blob storage.
func (s *Service) storeImage(ctx context.Context, prefix string, r io.Reader, preset imaging.Preset) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("storing %s image: no blob store configured: %w", prefix, model.ErrExternalService)
	}
	img, err := imaging.Process(r, preset)
	if err != nil {
		return "", err
	}
	p, err := s.blobs.Put(ctx, prefix, ".jpg", img.Data)
	if err != nil {
		return "", fmt.Errorf("storing %s image: %w: %w", prefix, model.ErrExternalService, err)
	}
	return p, nil
}

func (s *Service) deleteBlob(ctx context.Context, p string) {
	if s.blobs == nil || p == "" {
		return
	}
	if err := s.blobs.Delete(ctx, p); err != nil {
		slog.Warn("deleting blob failed", "path", p, "error", err)
	}
}
