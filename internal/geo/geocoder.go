package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

// Geocoder failures. ErrPostcodeNotFound means the input is wrong;
// ErrUnavailable means the provider could not answer.
var (
	ErrPostcodeNotFound = fmt.Errorf("postcode %w", model.ErrNotFound)
	ErrUnavailable      = fmt.Errorf("geocoder %w", model.ErrExternalService)
)

// Geocoder resolves a postcode to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, postcode string) (Point, error)
}

// Disabled is a Geocoder that is always unavailable.
type Disabled struct{}

// Resolve implements Geocoder.
func (Disabled) Resolve(context.Context, string) (Point, error) {
	return Point{}, ErrUnavailable
}

// PostcodesIO talks to a postcodes.io compatible API.
type PostcodesIO struct {
	baseURL string
	client  *http.Client
}

// NewPostcodesIO creates a client for baseURL with a per-request timeout.
func NewPostcodesIO(baseURL string, timeout time.Duration) *PostcodesIO {
	return &PostcodesIO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result *struct {
		Postcode  string   `json:"postcode"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

// Resolve implements Geocoder.
func (g *PostcodesIO) Resolve(ctx context.Context, postcode string) (Point, error) {
	pc := strings.TrimSpace(postcode)
	if pc == "" {
		return Point{}, ErrPostcodeNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/postcodes/"+url.PathEscape(pc), nil)
	if err != nil {
		return Point{}, fmt.Errorf("building geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Point{}, errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Point{}, ErrPostcodeNotFound
	case resp.StatusCode != http.StatusOK:
		return Point{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body postcodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Point{}, errors.Join(ErrUnavailable, fmt.Errorf("decoding geocode response: %w", err))
	}
	// Some valid postcodes (e.g. PO boxes) have no coordinates.
	if body.Result == nil || body.Result.Latitude == nil || body.Result.Longitude == nil {
		return Point{}, ErrPostcodeNotFound
	}

	return Point{Lat: *body.Result.Latitude, Lng: *body.Result.Longitude}, nil
}
