package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/skupaj/internal/haul"
	"github.com/erazemk/skupaj/internal/imaging"
	"github.com/erazemk/skupaj/internal/model"
)

// maxUploadBytes bounds multipart bodies; the image itself is capped by
// imaging.MaxInputBytes.
const maxUploadBytes = imaging.MaxInputBytes + 1<<20

// UsersHandler handles the current user's account and public profiles.
type UsersHandler struct {
	Svc *haul.Service
}

type updateProfileRequest struct {
	Name                       *string `json:"name"`
	DefaultPickupInstructions  *string `json:"default_pickup_instructions"`
	DefaultPaymentInstructions *string `json:"default_payment_instructions"`
}

type onboardingRequest struct {
	Handle       string `json:"handle"`
	Postcode     string `json:"postcode"`
	AddressLine1 string `json:"address_line_1"`
}

// pathID parses a numeric path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// Me handles GET /api/me.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Svc.Me(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// Update handles PUT /api/me.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Svc.UpdateProfile(r.Context(), GetClaims(r.Context()).UserID, haul.ProfileUpdate{
		Name:                       req.Name,
		DefaultPickupInstructions:  req.DefaultPickupInstructions,
		DefaultPaymentInstructions: req.DefaultPaymentInstructions,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// UploadAvatar handles PUT /api/me/avatar.
func (h *UsersHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.Svc.UploadAvatar)
}

// UploadPickupImage handles PUT /api/me/pickup-image.
func (h *UsersHandler) UploadPickupImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.Svc.UploadDefaultPickupImage)
}

func (h *UsersHandler) upload(w http.ResponseWriter, r *http.Request, save func(context.Context, int64, io.Reader) (*model.User, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	u, err := save(r.Context(), GetClaims(r.Context()).UserID, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// Activity handles GET /api/me/activities.
func (h *UsersHandler) Activity(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Svc.MyActivity(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, feed)
}

// Onboard handles POST /api/me/onboarding.
func (h *UsersHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Svc.Onboard(r.Context(), GetClaims(r.Context()).UserID, haul.Onboarding{
		Handle:       req.Handle,
		Postcode:     req.Postcode,
		AddressLine1: req.AddressLine1,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// Delete handles DELETE /api/me.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if err := h.Svc.DeleteAccount(r.Context(), claims.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Svc.Logout(r.Context(), claims); err != nil {
		slog.Warn("revoking token of deleted account failed", "user", claims.UserID, "error", err)
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// Profile handles GET /api/users/{id}.
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Svc.PublicProfile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}
