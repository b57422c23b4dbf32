package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/skupaj/internal/haul"
)

// AuthHandler handles registration, login and password endpoints.
type AuthHandler struct {
	Svc *haul.Service
}

type registerRequest struct {
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.Svc.Register(r.Context(), req.Name, req.Handle, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, session)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.Svc.Login(r.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, haul.ErrInvalidCredentials) {
			slog.Warn("login rejected", "remote", r.RemoteAddr)
		}
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, session)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if err := h.Svc.Logout(r.Context(), claims); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user logged out", "user", claims.UserID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	if err := h.Svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user changed own password", "user", claims.UserID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// CheckHandle handles GET /api/auth/handles/{handle}.
func (h *AuthHandler) CheckHandle(w http.ResponseWriter, r *http.Request) {
	available, err := h.Svc.HandleAvailable(r.Context(), r.PathValue("handle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"available": available})
}
