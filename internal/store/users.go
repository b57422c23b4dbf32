package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/skupaj/internal/model"
)

const userColumns = `id, name, handle, password_hash, COALESCE(postcode, ''), COALESCE(address_line_1, ''),
	lat, lng, COALESCE(avatar_path, ''), COALESCE(default_pickup_image_path, ''),
	COALESCE(default_pickup_instructions, ''), COALESCE(default_payment_instructions, ''),
	created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Handle, &u.PasswordHash, &u.Postcode, &u.AddressLine1,
		&u.Lat, &u.Lng, &u.AvatarPath, &u.DefaultPickupImagePath,
		&u.DefaultPickupInstructions, &u.DefaultPaymentInstructions,
		&u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user. The handle must already be normalized.
func CreateUser(ctx context.Context, q Querier, name, handle, passwordHash string, now time.Time) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (name, handle, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, handle, passwordHash, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByHandle returns an active user by normalized handle.
func GetUserByHandle(ctx context.Context, q Querier, handle string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE handle = ? AND deleted_at IS NULL`, handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by handle: %w", err)
	}
	return u, nil
}

// HandleTaken reports whether an active user other than exceptID holds the handle.
func HandleTaken(ctx context.Context, q Querier, handle string, exceptID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE handle = ? AND id != ? AND deleted_at IS NULL`,
		handle, exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking handle: %w", err)
	}
	return n > 0, nil
}

// UpdateUserProfile updates the editable profile fields.
func UpdateUserProfile(ctx context.Context, q Querier, id int64, name, pickupInstructions, paymentInstructions string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET name = ?, default_pickup_instructions = ?, default_payment_instructions = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		name, pickupInstructions, paymentInstructions, id,
	)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}

// UpdateUserLocation stores the onboarding handle, postcode and coordinates.
// lat and lng may be nil when geocoding was unavailable.
func UpdateUserLocation(ctx context.Context, q Querier, id int64, handle, postcode, address string, lat, lng *float64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET handle = ?, postcode = ?, address_line_1 = ?, lat = ?, lng = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		handle, postcode, address, lat, lng, id,
	)
	if err != nil {
		return fmt.Errorf("updating user location: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, q Querier, id int64, passwordHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// UpdateUserAvatar sets the avatar blob path.
func UpdateUserAvatar(ctx context.Context, q Querier, id int64, path string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET avatar_path = ? WHERE id = ? AND deleted_at IS NULL`,
		path, id,
	)
	if err != nil {
		return fmt.Errorf("updating user avatar: %w", err)
	}
	return nil
}

// UpdateUserRunDefaults remembers the pickup and payment details of the
// host's latest run.
func UpdateUserRunDefaults(ctx context.Context, q Querier, id int64, pickupImage, pickupInstructions, paymentInstructions string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET default_pickup_image_path = ?, default_pickup_instructions = ?,
		        default_payment_instructions = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		pickupImage, pickupInstructions, paymentInstructions, id,
	)
	if err != nil {
		return fmt.Errorf("updating run defaults: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, q Querier, id int64, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
