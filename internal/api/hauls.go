package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/haul"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/visibility"
)

// HaulsHandler handles runs, their items, activity and chat.
type HaulsHandler struct {
	Svc *haul.Service
}

type anchorRequest struct {
	Title     string          `json:"title"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Slots     int             `json:"slots"`
	HostSlots int             `json:"host_slots"`
}

type createHaulRequest struct {
	StoreName           string         `json:"store_name"`
	ExpiresIn           int            `json:"expires_in"`
	PickupInstructions  *string        `json:"pickup_instructions"`
	PaymentInstructions *string        `json:"payment_instructions"`
	IsTakingRequests    bool           `json:"is_taking_requests"`
	Anchor              *anchorRequest `json:"anchor"`
}

type addItemRequest struct {
	Title      string          `json:"title"`
	Type       string          `json:"type"`
	Cost       decimal.Decimal `json:"cost"`
	UnitsTotal int             `json:"units_total"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type messageRequest struct {
	Body string `json:"body"`
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.Invalid(name, "must be an integer")
	}
	return n, nil
}

// queryFloat reads an optional float query parameter.
func queryFloat(r *http.Request, name string) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, model.Invalid(name, "must be a number")
	}
	return &f, nil
}

// List handles GET /api/hauls?lat=&lng=&radius=.
func (h *HaulsHandler) List(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var q haul.Nearby
	switch {
	case lat != nil && lng != nil:
		q.Center = &geo.Point{Lat: *lat, Lng: *lng}
	case lat != nil || lng != nil:
		writeError(w, r, model.Invalid("location", "lat and lng must be given together"))
		return
	}
	if radius != nil {
		q.RadiusMeters = *radius
	}

	runs, err := h.Svc.ListNearby(r.Context(), viewerID(r.Context()), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*visibility.RunView{}
	}
	jsonResponse(w, http.StatusOK, runs)
}

// Mine handles GET /api/hauls/mine.
func (h *HaulsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Svc.MyHauls(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*visibility.RunView{}
	}
	jsonResponse(w, http.StatusOK, runs)
}

// Create handles POST /api/hauls. The body is JSON, or a multipart form
// when a pickup photo is attached.
func (h *HaulsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in haul.NewRun
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			jsonError(w, http.StatusBadRequest, "file too large or invalid form")
			return
		}
		parsed, err := newRunFromForm(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in = parsed
		if file, _, err := r.FormFile("pickup_image"); err == nil {
			defer file.Close()
			in.PickupImage = file
		}
	} else {
		var req createHaulRequest
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		in = haul.NewRun{
			StoreName:           req.StoreName,
			ExpiresInMinutes:    req.ExpiresIn,
			PickupInstructions:  req.PickupInstructions,
			PaymentInstructions: req.PaymentInstructions,
			IsTakingRequests:    req.IsTakingRequests,
		}
		if a := req.Anchor; a != nil {
			in.Anchor = &haul.Anchor{Title: a.Title, TotalCost: a.TotalCost, Slots: a.Slots, HostSlots: a.HostSlots}
		}
	}

	view, err := h.Svc.CreateRun(r.Context(), GetClaims(r.Context()).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, view)
}

// newRunFromForm reads a create request from multipart form values. The
// anchor is present when anchor_title is.
func newRunFromForm(r *http.Request) (haul.NewRun, error) {
	formInt := func(name string) (int, error) {
		v := r.FormValue(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, model.Invalid(name, "must be an integer")
		}
		return n, nil
	}
	formString := func(name string) *string {
		if _, ok := r.MultipartForm.Value[name]; !ok {
			return nil
		}
		v := r.FormValue(name)
		return &v
	}

	in := haul.NewRun{
		StoreName:           r.FormValue("store_name"),
		PickupInstructions:  formString("pickup_instructions"),
		PaymentInstructions: formString("payment_instructions"),
	}
	var err error
	if in.ExpiresInMinutes, err = formInt("expires_in"); err != nil {
		return in, err
	}
	if v := r.FormValue("is_taking_requests"); v != "" {
		if in.IsTakingRequests, err = strconv.ParseBool(v); err != nil {
			return in, model.Invalid("is_taking_requests", "must be a boolean")
		}
	}

	if title := r.FormValue("anchor_title"); title != "" {
		a := &haul.Anchor{Title: title}
		if a.TotalCost, err = decimal.NewFromString(r.FormValue("anchor_total_cost")); err != nil {
			return in, model.Invalid("anchor_total_cost", "must be a decimal amount")
		}
		if a.Slots, err = formInt("anchor_slots"); err != nil {
			return in, err
		}
		if a.HostSlots, err = formInt("anchor_host_slots"); err != nil {
			return in, err
		}
		in.Anchor = a
	}
	return in, nil
}

// Get handles GET /api/hauls/{id}.
func (h *HaulsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.Svc.GetRun(r.Context(), id, viewerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// UpdateStatus handles PUT /api/hauls/{id}/status.
func (h *HaulsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.Svc.UpdateStatus(r.Context(), GetClaims(r.Context()).UserID, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, run)
}

// Cancel handles DELETE /api/hauls/{id}.
func (h *HaulsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Svc.CancelRun(r.Context(), GetClaims(r.Context()).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "haul cancelled"})
}

// AddItem handles POST /api/hauls/{id}/items.
func (h *HaulsHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Svc.AddItem(r.Context(), GetClaims(r.Context()).UserID, id, haul.NewItem{
		Title:      req.Title,
		Type:       req.Type,
		UnitCost:   req.Cost,
		UnitsTotal: req.UnitsTotal,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Activity handles GET /api/hauls/{id}/activity?page=&per_page=.
func (h *HaulsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page", haul.DefaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	feed, err := h.Svc.ActivityFeed(r.Context(), id, page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, feed)
}

// Messages handles GET /api/hauls/{id}/messages?after=&limit=.
func (h *HaulsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", haul.DefaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msgs, err := h.Svc.ListMessages(r.Context(), GetClaims(r.Context()).UserID, id, int64(after), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	jsonResponse(w, http.StatusOK, msgs)
}

// PostMessage handles POST /api/hauls/{id}/messages.
func (h *HaulsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.Svc.PostMessage(r.Context(), GetClaims(r.Context()).UserID, id, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, msg)
}
