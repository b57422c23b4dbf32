package api

import (
	"net/http"
	"strings"

	"github.com/erazemk/skupaj/internal/auth"
	"github.com/erazemk/skupaj/internal/haul"
)

// RouterConfig holds what the router needs besides the service.
type RouterConfig struct {
	Tokens auth.Issuer
	// MediaDir is served read-only under MediaPrefix when both are set.
	MediaDir    string
	MediaPrefix string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(svc *haul.Service, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Svc: svc}
	usersHandler := &UsersHandler{Svc: svc}
	haulsHandler := &HaulsHandler{Svc: svc}
	commitmentsHandler := &CommitmentsHandler{Svc: svc}

	authn := Authenticator{Tokens: cfg.Tokens, Revoked: svc}
	required := func(h http.HandlerFunc) http.Handler { return authn.Require(h) }
	optional := func(h http.HandlerFunc) http.Handler { return authn.Optional(h) }

	// Public: accounts.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/handles/{handle}", authHandler.CheckHandle)

	// Authenticated account routes.
	mux.Handle("POST /api/auth/logout", required(authHandler.Logout))
	mux.Handle("PUT /api/auth/password", required(authHandler.ChangePassword))
	mux.Handle("GET /api/me", required(usersHandler.Me))
	mux.Handle("PUT /api/me", required(usersHandler.Update))
	mux.Handle("DELETE /api/me", required(usersHandler.Delete))
	mux.Handle("PUT /api/me/avatar", required(usersHandler.UploadAvatar))
	mux.Handle("PUT /api/me/pickup-image", required(usersHandler.UploadPickupImage))
	mux.Handle("GET /api/me/activities", required(usersHandler.Activity))
	mux.Handle("POST /api/me/onboarding", required(usersHandler.Onboard))
	mux.Handle("GET /api/users/{id}", optional(usersHandler.Profile))

	// Hauls: guests may browse, everything else needs a token.
	mux.Handle("GET /api/hauls", optional(haulsHandler.List))
	mux.Handle("GET /api/hauls/mine", required(haulsHandler.Mine))
	mux.Handle("POST /api/hauls", required(haulsHandler.Create))
	mux.Handle("GET /api/hauls/{id}", optional(haulsHandler.Get))
	mux.Handle("DELETE /api/hauls/{id}", required(haulsHandler.Cancel))
	mux.Handle("PUT /api/hauls/{id}/status", required(haulsHandler.UpdateStatus))
	mux.Handle("POST /api/hauls/{id}/items", required(haulsHandler.AddItem))
	mux.Handle("GET /api/hauls/{id}/activity", required(haulsHandler.Activity))
	mux.Handle("GET /api/hauls/{id}/messages", required(haulsHandler.Messages))
	mux.Handle("POST /api/hauls/{id}/messages", required(haulsHandler.PostMessage))

	// Commitments.
	mux.Handle("POST /api/items/{id}/commitments", required(commitmentsHandler.Join))
	mux.Handle("DELETE /api/commitments/{id}", required(commitmentsHandler.Leave))
	mux.Handle("POST /api/commitments/{id}/mark-paid", required(commitmentsHandler.MarkPaid))
	mux.Handle("POST /api/commitments/{id}/confirm-payment", required(commitmentsHandler.ConfirmPayment))

	if cfg.MediaDir != "" && cfg.MediaPrefix != "" {
		mux.Handle("GET "+cfg.MediaPrefix, mediaHandler(cfg.MediaDir, cfg.MediaPrefix))
	}

	return mux
}

// mediaHandler serves stored photos without directory listings.
func mediaHandler(dir, prefix string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}
