package haul

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erazemk/skupaj/internal/auth"
	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/imaging"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/erazemk/skupaj/internal/visibility"
)

// ErrInvalidCredentials is returned for a wrong handle or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RecentHaulsLimit is how many completed hauls a public profile lists.
const RecentHaulsLimit = 3

// Session is the result of registering or logging in.
type Session struct {
	Token           string      `json:"token"`
	User            *model.User `json:"user"`
	NeedsOnboarding bool        `json:"needs_onboarding"`
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return model.Invalid("name", "is required")
	}
	if n > 255 {
		return model.Invalid("name", "must be at most 255 characters")
	}
	return nil
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := s.tokens.Generate(u.ID, u.Handle)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: s.present(u), NeedsOnboarding: !u.HasLocation()}, nil
}

// Register creates an account and logs it in.
func (s *Service) Register(ctx context.Context, name, handle, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	handle = model.NormalizeHandle(handle)
	if err := model.ValidateHandle(handle); err != nil {
		return nil, err
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}

	taken, err := store.HandleTaken(ctx, s.db, handle, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, model.Invalid("handle", "is already taken")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := store.CreateUser(ctx, s.db, name, handle, hash, s.now())
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", "user", u.ID, "handle", u.Handle)
	return s.session(u)
}

// HandleAvailable reports whether a handle can be claimed.
func (s *Service) HandleAvailable(ctx context.Context, handle string) (bool, error) {
	handle = model.NormalizeHandle(handle)
	if err := model.ValidateHandle(handle); err != nil {
		return false, err
	}
	taken, err := store.HandleTaken(ctx, s.db, handle, 0)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, handle, password string) (*Session, error) {
	handle = model.NormalizeHandle(handle)
	if handle == "" || password == "" {
		return nil, model.Invalid("", "handle and password required")
	}

	u, err := store.GetUserByHandle(ctx, s.db, handle)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login failed", "handle", handle)
		return nil, ErrInvalidCredentials
	}

	slog.Info("user logged in", "user", u.ID)
	return s.session(u)
}

// Logout revokes the token the claims came from until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidCredentials
	}
	expires := s.now().Add(auth.DefaultTokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return store.RevokeToken(ctx, s.db, claims.ID, expires, s.now())
}

// TokenRevoked reports whether a token ID has been logged out.
func (s *Service) TokenRevoked(ctx context.Context, jti string) (bool, error) {
	return store.IsTokenRevoked(ctx, s.db, jti)
}

// ChangePassword replaces the user's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := model.ValidatePassword(next); err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := store.UpdateUserPassword(ctx, s.db, userID, hash); err != nil {
		return err
	}
	slog.Info("user changed password", "user", userID)
	return nil
}

// present fills in the photo URLs of an account shown to its owner.
func (s *Service) present(u *model.User) *model.User {
	u.AvatarURL = s.gate.URL(u.AvatarPath)
	u.DefaultPickupImageURL = s.gate.URL(u.DefaultPickupImagePath)
	return u
}

// Me returns the user's own account.
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.present(u), nil
}

// ProfileUpdate holds the editable profile fields; nil leaves a field as is.
type ProfileUpdate struct {
	Name                       *string
	DefaultPickupInstructions  *string
	DefaultPaymentInstructions *string
}

// UpdateProfile edits the user's name and saved run defaults.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) (*model.User, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	name, pickup, payment := u.Name, u.DefaultPickupInstructions, u.DefaultPaymentInstructions
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
	}
	if in.DefaultPickupInstructions != nil {
		pickup = strings.TrimSpace(*in.DefaultPickupInstructions)
	}
	if in.DefaultPaymentInstructions != nil {
		payment = strings.TrimSpace(*in.DefaultPaymentInstructions)
	}
	for field, v := range map[string]string{
		"default_pickup_instructions":  pickup,
		"default_payment_instructions": payment,
	} {
		if utf8.RuneCountInString(v) > 500 {
			return nil, model.Invalid(field, "must be at most 500 characters")
		}
	}

	if err := store.UpdateUserProfile(ctx, s.db, userID, name, pickup, payment); err != nil {
		return nil, err
	}
	u.Name, u.DefaultPickupInstructions, u.DefaultPaymentInstructions = name, pickup, payment
	return s.present(u), nil
}

// UploadAvatar replaces the user's avatar. The previous file is removed
// once the new one is saved.
func (s *Service) UploadAvatar(ctx context.Context, userID int64, r io.Reader) (*model.User, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.storeImage(ctx, "avatars", r, imaging.Avatar)
	if err != nil {
		return nil, err
	}
	if err := store.UpdateUserAvatar(ctx, s.db, userID, p); err != nil {
		s.deleteBlob(ctx, p)
		return nil, err
	}

	old := u.AvatarPath
	u.AvatarPath = p
	s.deleteBlob(ctx, old)
	return s.present(u), nil
}

// UploadDefaultPickupImage saves the photo new hauls use when none is
// attached. Earlier defaults stay on disk since past runs still show them.
func (s *Service) UploadDefaultPickupImage(ctx context.Context, userID int64, r io.Reader) (*model.User, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.storeImage(ctx, "pickups", r, imaging.Pickup)
	if err != nil {
		return nil, err
	}
	if err := store.UpdateUserRunDefaults(ctx, s.db, userID, p, u.DefaultPickupInstructions, u.DefaultPaymentInstructions); err != nil {
		s.deleteBlob(ctx, p)
		return nil, err
	}
	u.DefaultPickupImagePath = p
	return s.present(u), nil
}

// Onboarding is the handle and location a user picks after registering.
type Onboarding struct {
	Handle       string
	Postcode     string
	AddressLine1 string
}

// Onboard sets the user's handle and geocoded location. A postcode the
// geocoder does not know is rejected; an unreachable geocoder leaves the
// user without coordinates.
func (s *Service) Onboard(ctx context.Context, userID int64, in Onboarding) (*model.User, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	handle := model.NormalizeHandle(in.Handle)
	if err := model.ValidateHandle(handle); err != nil {
		return nil, err
	}
	taken, err := store.HandleTaken(ctx, s.db, handle, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, model.Invalid("handle", "is already taken")
	}

	postcode := strings.ToUpper(strings.TrimSpace(in.Postcode))
	if postcode == "" {
		return nil, model.Invalid("postcode", "is required")
	}
	if len(postcode) > 10 {
		return nil, model.Invalid("postcode", "must be at most 10 characters")
	}

	var lat, lng *float64
	pt, err := s.geocoder.Resolve(ctx, postcode)
	switch {
	case err == nil:
		lat, lng = &pt.Lat, &pt.Lng
	case errors.Is(err, geo.ErrPostcodeNotFound):
		return nil, model.Invalid("postcode", "we can't find that postcode")
	default:
		slog.Warn("geocoding unavailable, saving postcode without coordinates", "user", userID, "error", err)
	}

	address := strings.TrimSpace(in.AddressLine1)
	if err := store.UpdateUserLocation(ctx, s.db, userID, handle, postcode, address, lat, lng); err != nil {
		return nil, err
	}

	u.Handle, u.Postcode, u.AddressLine1, u.Lat, u.Lng = handle, postcode, address, lat, lng
	slog.Info("user onboarded", "user", userID, "located", u.HasLocation())
	return s.present(u), nil
}

// DeleteAccount soft-deletes the user. Their handle becomes free again.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	if _, err := activeUser(ctx, s.db, userID); err != nil {
		return err
	}
	return store.DeleteUser(ctx, s.db, userID, s.now())
}

// RecentHaul is a completed run on a public profile.
type RecentHaul struct {
	ID          int64     `json:"id"`
	StoreName   string    `json:"store_name"`
	CompletedAt time.Time `json:"completed_at"`
}

// PublicProfile is what anyone may see about a user.
type PublicProfile struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Handle        string       `json:"handle"`
	AvatarURL     *string      `json:"avatar_url"`
	FuzzyLocation *string      `json:"fuzzy_location"`
	MemberSince   string       `json:"member_since"`
	RecentHauls   []RecentHaul `json:"recent_hauls"`
}

// PublicProfile returns a user's public profile.
func (s *Service) PublicProfile(ctx context.Context, userID int64) (*PublicProfile, error) {
	u, err := activeUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	runs, err := store.ListCompletedRunsByHost(ctx, s.db, userID, RecentHaulsLimit)
	if err != nil {
		return nil, fmt.Errorf("loading recent hauls: %w", err)
	}

	p := &PublicProfile{
		ID:          u.ID,
		Name:        u.Name,
		Handle:      u.Handle,
		AvatarURL:   s.gate.URL(u.AvatarPath),
		MemberSince: u.CreatedAt.Format(time.DateOnly),
		RecentHauls: make([]RecentHaul, 0, len(runs)),
	}
	if d := visibility.District(u.Postcode); d != "" {
		p.FuzzyLocation = &d
	}
	for _, r := range runs {
		p.RecentHauls = append(p.RecentHauls, RecentHaul{ID: r.ID, StoreName: r.StoreName, CompletedAt: r.UpdatedAt})
	}
	return p, nil
}
