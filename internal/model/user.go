package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// User is an account that can host runs and join others.
type User struct {
	ID                         int64      `json:"id"`
	Name                       string     `json:"name"`
	Handle                     string     `json:"handle"`
	PasswordHash               string     `json:"-"`
	Postcode                   string     `json:"postcode,omitempty"`
	AddressLine1               string     `json:"address_line_1,omitempty"`
	Lat                        *float64   `json:"lat,omitempty"`
	Lng                        *float64   `json:"lng,omitempty"`
	AvatarPath                 string     `json:"-"`
	DefaultPickupImagePath     string     `json:"-"`
	DefaultPickupInstructions  string     `json:"default_pickup_instructions,omitempty"`
	DefaultPaymentInstructions string     `json:"default_payment_instructions,omitempty"`
	CreatedAt                  time.Time  `json:"created_at"`
	DeletedAt                  *time.Time `json:"deleted_at,omitempty"`

	// Public URLs of the stored photos, set when the account is returned to
	// its owner.
	AvatarURL             *string `json:"avatar_url,omitempty"`
	DefaultPickupImageURL *string `json:"default_pickup_image_url,omitempty"`
}

// HasLocation reports whether the user has geocoded coordinates.
func (u *User) HasLocation() bool {
	return u != nil && u.Lat != nil && u.Lng != nil
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// NormalizeHandle folds a handle to its canonical stored form.
func NormalizeHandle(handle string) string {
	h := norm.NFKC.String(strings.TrimSpace(handle))
	return strings.ToLower(strings.TrimPrefix(h, "@"))
}

// ValidateHandle checks a normalized handle.
func ValidateHandle(handle string) error {
	n := utf8.RuneCountInString(handle)
	if n < 3 || n > 30 {
		return &ValidationError{Field: "handle", Message: "must be 3 to 30 characters"}
	}
	for _, r := range handle {
		if !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return &ValidationError{Field: "handle", Message: "may only contain letters, digits, '.' and '_'"}
		}
	}
	return nil
}
