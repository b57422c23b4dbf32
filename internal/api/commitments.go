package api

import (
	"net/http"

	"github.com/erazemk/skupaj/internal/haul"
)

// CommitmentsHandler handles joining, leaving and the payment handshake.
type CommitmentsHandler struct {
	Svc *haul.Service
}

type joinRequest struct {
	Quantity int `json:"quantity"`
}

// Join handles POST /api/items/{id}/commitments.
func (h *CommitmentsHandler) Join(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Svc.Join(r.Context(), GetClaims(r.Context()).UserID, itemID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, c)
}

// Leave handles DELETE /api/commitments/{id}. The host uses the same
// endpoint to kick a participant.
func (h *CommitmentsHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.Svc.Leave(r.Context(), GetClaims(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// MarkPaid handles POST /api/commitments/{id}/mark-paid.
func (h *CommitmentsHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.Svc.MarkPaid(r.Context(), GetClaims(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// ConfirmPayment handles POST /api/commitments/{id}/confirm-payment.
func (h *CommitmentsHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.Svc.ConfirmPayment(r.Context(), GetClaims(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}
