package haul

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	s, err := f.svc.Register(f.ctx, "Hana Novak", "@Hana_N", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "hana_n", s.User.Handle)
	assert.True(t, s.NeedsOnboarding)
	assert.NotEmpty(t, s.Token)

	claims, err := f.svc.tokens.Validate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, claims.UserID)

	_, err = f.svc.Register(f.ctx, "Other", "HANA_N", "correct horse")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.Register(f.ctx, "Other", "other", "short")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.Register(f.ctx, "", "other", "correct horse")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Login(f.ctx, "hana_n", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(f.ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	s, err = f.svc.Login(f.ctx, "@Hana_N", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Hana Novak", s.User.Name)

	ok, err := f.svc.HandleAvailable(f.ctx, "hana_n")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.svc.HandleAvailable(f.ctx, "free.handle")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.Register(f.ctx, "Hana", "hana", "correct horse")
	require.NoError(t, err)
	claims, err := f.svc.tokens.Validate(s.Token)
	require.NoError(t, err)

	revoked, err := f.svc.TokenRevoked(f.ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, f.svc.Logout(f.ctx, claims))
	revoked, err = f.svc.TokenRevoked(f.ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.Register(f.ctx, "Hana", "hana", "correct horse")
	require.NoError(t, err)

	err = f.svc.ChangePassword(f.ctx, s.User.ID, "wrong", "battery staple")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	err = f.svc.ChangePassword(f.ctx, s.User.ID, "correct horse", "short")
	assert.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, f.svc.ChangePassword(f.ctx, s.User.ID, "correct horse", "battery staple"))
	_, err = f.svc.Login(f.ctx, "hana", "battery staple")
	require.NoError(t, err)
}

func TestOnboard(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.Register(f.ctx, "Hana", "hana", "correct horse")
	require.NoError(t, err)
	f.user("Taken", false)

	_, err = f.svc.Onboard(f.ctx, s.User.ID, Onboarding{Handle: "taken", Postcode: "E8 1AA"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Onboard(f.ctx, s.User.ID, Onboarding{Handle: "hana", Postcode: "ZZ9 9ZZ"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "postcode", verr.Field)

	u, err := f.svc.Onboard(f.ctx, s.User.ID, Onboarding{Handle: "hana", Postcode: "DOWN"})
	require.NoError(t, err)
	assert.False(t, u.HasLocation())

	u, err = f.svc.Onboard(f.ctx, s.User.ID, Onboarding{Handle: "hana.n", Postcode: " e8 1aa ", AddressLine1: "1 Mare St"})
	require.NoError(t, err)
	assert.True(t, u.HasLocation())
	assert.Equal(t, "E8 1AA", u.Postcode)

	stored, err := store.GetUser(f.ctx, f.db, s.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana.n", stored.Handle)
	require.NotNil(t, stored.Lat)
	assert.InDelta(t, hackney.Lat, *stored.Lat, 1e-9)
}

func TestProfileAndAvatar(t *testing.T) {
	f := newFixture(t)
	u := f.user("Hana", true)

	updated, err := f.svc.UpdateProfile(f.ctx, u.ID, ProfileUpdate{
		Name:                       strp("Hana N."),
		DefaultPaymentInstructions: strp("Revolut @hana"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hana N.", updated.Name)
	assert.Equal(t, "Blue door", updated.DefaultPickupInstructions)
	assert.Equal(t, "Revolut @hana", updated.DefaultPaymentInstructions)

	_, err = f.svc.UpdateProfile(f.ctx, u.ID, ProfileUpdate{Name: strp("  ")})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.UploadAvatar(f.ctx, u.ID, bytes.NewReader([]byte("not an image")))
	assert.ErrorIs(t, err, model.ErrValidation)

	first, err := f.svc.UploadAvatar(f.ctx, u.ID, bytes.NewReader(pngImage(t, 80, 60)))
	require.NoError(t, err)
	root := f.svc.blobs.(interface{ Root() string }).Root()
	_, err = os.Stat(filepath.Join(root, first.AvatarPath))
	require.NoError(t, err)

	second, err := f.svc.UploadAvatar(f.ctx, u.ID, bytes.NewReader(pngImage(t, 30, 30)))
	require.NoError(t, err)
	assert.NotEqual(t, first.AvatarPath, second.AvatarPath)
	_, err = os.Stat(filepath.Join(root, first.AvatarPath))
	assert.True(t, os.IsNotExist(err), "old avatar removed")
}

func TestPublicProfile(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	v, _ := f.haul(host, 4, 0)
	f.haul(host, 4, 0)
	_, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusCompleted))
	require.NoError(t, err)

	p, err := f.svc.PublicProfile(f.ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana", p.Handle)
	require.NotNil(t, p.FuzzyLocation)
	assert.Equal(t, "E8", *p.FuzzyLocation)
	assert.Nil(t, p.AvatarURL)
	assert.Equal(t, "2026-03-01", p.MemberSince)
	require.Len(t, p.RecentHauls, 1)
	assert.Equal(t, v.ID, p.RecentHauls[0].ID)

	require.NoError(t, f.svc.DeleteAccount(f.ctx, host.ID))
	_, err = f.svc.PublicProfile(f.ctx, host.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUploadDefaultPickupImage(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", false)
	lat, lng := hackney.Lat, hackney.Lng
	require.NoError(t, store.UpdateUserLocation(f.ctx, f.db, host.ID, "hana", "E8 1AA", "", &lat, &lng))
	require.NoError(t, store.UpdateUserRunDefaults(f.ctx, f.db, host.ID, "", "Blue door", "Cash"))

	_, err := f.svc.UploadDefaultPickupImage(f.ctx, host.ID, bytes.NewReader([]byte("not an image")))
	assert.ErrorIs(t, err, model.ErrValidation)

	u, err := f.svc.UploadDefaultPickupImage(f.ctx, host.ID, bytes.NewReader(pngImage(t, 64, 48)))
	require.NoError(t, err)
	require.NotNil(t, u.DefaultPickupImageURL)
	assert.Contains(t, *u.DefaultPickupImageURL, "/media/pickups/")
	assert.Equal(t, "Blue door", u.DefaultPickupInstructions)
	assert.Equal(t, "Cash", u.DefaultPaymentInstructions)

	v, err := f.svc.CreateRun(f.ctx, host.ID, NewRun{StoreName: "Lidl", ExpiresInMinutes: 30})
	require.NoError(t, err)
	require.NotNil(t, v.PickupImageURL)
	assert.Equal(t, *u.DefaultPickupImageURL, *v.PickupImageURL)

	me, err := f.svc.Me(f.ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, u.DefaultPickupImageURL, me.DefaultPickupImageURL)
}
