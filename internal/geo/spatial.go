package geo

import (
	"context"
	"sort"
	"time"

	"github.com/erazemk/skupaj/internal/store"
)

// Match is an entity found by a radius query.
type Match struct {
	ID     int64
	Meters float64
}

// SpatialQuery finds entities near a point, nearest first.
type SpatialQuery interface {
	WithinRadius(ctx context.Context, center Point, radiusMeters float64) ([]Match, error)
}

// OpenRuns finds open runs by prefiltering on a bounding box in SQL and
// then applying the exact great-circle distance.
type OpenRuns struct {
	DB  store.Querier
	Now func() time.Time
}

// WithinRadius implements SpatialQuery.
func (o OpenRuns) WithinRadius(ctx context.Context, center Point, radiusMeters float64) ([]Match, error) {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	minLat, maxLat, minLng, maxLng := Bounds(center, radiusMeters)
	runs, err := store.ListOpenRunsInBox(ctx, o.DB, store.Box{
		MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng,
	}, now())
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, r := range runs {
		d := Distance(center, Point{Lat: r.Lat, Lng: r.Lng})
		if d <= radiusMeters {
			out = append(out, Match{ID: r.ID, Meters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meters < out[j].Meters })
	return out, nil
}
