package haul

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/skupaj/internal/auth"
	"github.com/erazemk/skupaj/internal/blob"
	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/erazemk/skupaj/internal/visibility"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var hackney = geo.Point{Lat: 51.5465, Lng: -0.0553}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e.Kind)
		}
	}
	return out
}

// stubGeocoder knows a fixed set of postcodes. "DOWN" simulates an outage.
type stubGeocoder map[string]geo.Point

func (g stubGeocoder) Resolve(_ context.Context, postcode string) (geo.Point, error) {
	if postcode == "DOWN" {
		return geo.Point{}, geo.ErrUnavailable
	}
	p, ok := g[postcode]
	if !ok {
		return geo.Point{}, geo.ErrPostcodeNotFound
	}
	return p, nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *sql.DB
	svc   *Service
	notes *recorder
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		db:    db.NewTestDB(t),
		notes: &recorder{},
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		DB:       f.db,
		Tokens:   auth.Issuer{Secret: "test-secret"},
		Notifier: f.notes,
		Geocoder: stubGeocoder{"E8 1AA": hackney},
		Blobs:    blobs,
		Gate:     visibility.Gate{MediaURL: func(p string) string { return "/media/" + p }},
	}, func() time.Time { return f.now }, Config{})
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// user creates an account. Located users live in E8 and have saved run
// defaults so they can host without uploading a photo.
func (f *fixture) user(name string, located bool) *model.User {
	f.t.Helper()
	handle := strings.ToLower(name)
	u, err := store.CreateUser(f.ctx, f.db, name, handle, "unused", f.now)
	require.NoError(f.t, err)
	if located {
		lat, lng := hackney.Lat, hackney.Lng
		require.NoError(f.t, store.UpdateUserLocation(f.ctx, f.db, u.ID, handle, "E8 1AA", "1 Mare St", &lat, &lng))
		require.NoError(f.t, store.UpdateUserRunDefaults(f.ctx, f.db, u.ID, "pickups/seed.jpg", "Blue door", "Cash on pickup"))
	}
	u, err = store.GetUser(f.ctx, f.db, u.ID)
	require.NoError(f.t, err)
	return u
}

// haul creates a run with a bulk anchor item of slots at 2.00 per slot.
func (f *fixture) haul(host *model.User, slots, hostSlots int) (*visibility.RunView, int64) {
	f.t.Helper()
	v, err := f.svc.CreateRun(f.ctx, host.ID, NewRun{
		StoreName:        "Costco Croydon",
		ExpiresInMinutes: 120,
		Anchor: &Anchor{
			Title:     "Rice 20kg",
			TotalCost: decimal.NewFromInt(int64(2 * slots)),
			Slots:     slots,
			HostSlots: hostSlots,
		},
	})
	require.NoError(f.t, err)
	require.Len(f.t, v.Items, 1)
	return v, v.Items[0].ID
}

func (f *fixture) item(id int64) *model.Item {
	f.t.Helper()
	it, err := store.GetItem(f.ctx, f.db, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, it)
	return it
}

func (f *fixture) activityTypes(runID int64) []model.ActivityType {
	f.t.Helper()
	acts, err := store.ListActivities(f.ctx, f.db, runID, 100, 0)
	require.NoError(f.t, err)
	out := make([]model.ActivityType, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.Type)
	}
	return out
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
