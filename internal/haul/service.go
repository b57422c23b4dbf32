// Package haul implements the application operations on hauls: joining and
// leaving, the payment handshake, status changes, run creation and
// cancellation, listings, chat and accounts. Every mutation is written in
// one transaction together with its activity entry.
package haul

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/auth"
	"github.com/erazemk/skupaj/internal/blob"
	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/ledger"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/erazemk/skupaj/internal/visibility"
)

// Clock returns the current time.
type Clock func() time.Time

// Defaults used when Config leaves a field zero.
const (
	DefaultLeaveWindow  = 30 * time.Minute
	DefaultRadiusMeters = 5000
	DefaultMaxRetries   = 3
)

// Config holds the tunable rules of the service.
type Config struct {
	// LeaveWindow is how long after joining a participant may leave alone.
	LeaveWindow time.Duration
	// DefaultRadius is the nearby search radius in meters.
	DefaultRadius float64
	// MaxRetries bounds retries of busy transactions outside the ledger.
	MaxRetries int
}

// Deps are the collaborators the service talks to.
type Deps struct {
	DB       *sql.DB
	Ledger   *ledger.Ledger
	Tokens   auth.Issuer
	Notifier notify.Notifier
	Geocoder geo.Geocoder
	Blobs    blob.Store
	Spatial  geo.SpatialQuery
	Gate     visibility.Gate
}

// Service is the haul application service.
type Service struct {
	db       *sql.DB
	ledger   *ledger.Ledger
	tokens   auth.Issuer
	notifier notify.Notifier
	geocoder geo.Geocoder
	blobs    blob.Store
	spatial  geo.SpatialQuery
	gate     visibility.Gate
	clock    Clock
	cfg      Config
}

// NewService constructs a Service. Missing optional collaborators fall back
// to no-op implementations.
func NewService(deps Deps, clock Clock, cfg Config) *Service {
	if clock == nil {
		clock = time.Now
	}
	if cfg.LeaveWindow <= 0 {
		cfg.LeaveWindow = DefaultLeaveWindow
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = DefaultRadiusMeters
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(deps.DB, ledger.Options{MaxRetries: cfg.MaxRetries, Now: clock})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if deps.Geocoder == nil {
		deps.Geocoder = geo.Disabled{}
	}
	if deps.Spatial == nil {
		deps.Spatial = geo.OpenRuns{DB: deps.DB, Now: clock}
	}
	if deps.Tokens.Now == nil {
		deps.Tokens.Now = clock
	}

	return &Service{
		db:       deps.DB,
		ledger:   deps.Ledger,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		geocoder: deps.Geocoder,
		blobs:    deps.Blobs,
		spatial:  deps.Spatial,
		gate:     deps.Gate,
		clock:    clock,
		cfg:      cfg,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.WithTx(ctx, s.db, s.cfg.MaxRetries, fn)
}

func (s *Service) notify(userID int64, kind string, runID int64, payload map[string]any) {
	s.notifier.Notify(notify.Event{
		UserID:  userID,
		Kind:    kind,
		RunID:   runID,
		Payload: payload,
		At:      s.now(),
	})
}

// activeRun returns a run that has not been cancelled.
func activeRun(ctx context.Context, q store.Querier, runID int64) (*model.Run, error) {
	run, err := store.GetRun(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	if run == nil || run.DeletedAt != nil {
		return nil, fmt.Errorf("run %d: %w", runID, model.ErrNotFound)
	}
	return run, nil
}

func activeUser(ctx context.Context, q store.Querier, userID int64) (*model.User, error) {
	u, err := store.GetUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.DeletedAt != nil {
		return nil, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	return u, nil
}

// commitmentContext loads a commitment with the run it belongs to.
func commitmentContext(ctx context.Context, q store.Querier, commitmentID int64) (*model.Commitment, *model.Run, error) {
	c, err := store.GetCommitment(ctx, q, commitmentID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, fmt.Errorf("commitment %d: %w", commitmentID, model.ErrNotFound)
	}
	run, err := activeRun(ctx, q, c.RunID)
	if err != nil {
		return nil, nil, err
	}
	return c, run, nil
}

// isParticipant reports whether userID hosts the run or holds a commitment on it.
func isParticipant(run *model.Run, items []model.Item, userID int64) bool {
	if run.HostID == userID {
		return true
	}
	for _, it := range items {
		for _, c := range it.Commitments {
			if c.UserID == userID {
				return true
			}
		}
	}
	return false
}

func int64Ptr(v int64) *int64 { return &v }
