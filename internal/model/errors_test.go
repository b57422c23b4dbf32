package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	expires := time.Now()
	tests := []struct {
		err  error
		want error
	}{
		{Invalid("title", "required"), ErrValidation},
		{&ForbiddenError{Reason: "window closed", WindowExpiresAt: &expires}, ErrForbidden},
		{&InsufficientStockError{Available: 2, Requested: 3}, ErrInsufficientStock},
		{&InvalidTransitionError{Current: RunStatusLive, Attempted: RunStatusPrepping}, ErrInvalidTransition},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("doing thing: %w", tt.err)
		if !errors.Is(wrapped, tt.want) {
			t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.want)
		}
		if errors.Is(wrapped, ErrNotFound) {
			t.Errorf("%v unexpectedly matches ErrNotFound", wrapped)
		}
	}
}

func TestInsufficientStockErrorAs(t *testing.T) {
	err := fmt.Errorf("reserving: %w", &InsufficientStockError{Available: 2, Requested: 3})

	var stock *InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatal("expected errors.As to find InsufficientStockError")
	}
	if stock.Available != 2 || stock.Requested != 3 {
		t.Errorf("got available=%d requested=%d, want 2/3", stock.Available, stock.Requested)
	}
}
