package haul

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/skupaj/internal/ledger"
	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
)

// Join reserves quantity slots on an item for the acting user.
func (s *Service) Join(ctx context.Context, actorID, itemID int64, quantity int) (*model.Commitment, error) {
	if quantity < 1 {
		return nil, model.Invalid("quantity", "must be at least 1")
	}

	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	run, err := activeRun(ctx, s.db, item.RunID)
	if err != nil {
		return nil, err
	}
	if !run.Status.Open() || !run.ExpiresAt.After(s.now()) {
		return nil, model.Forbidden("this haul is no longer accepting commitments")
	}
	actor, err := activeUser(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	c, err := s.ledger.Reserve(ctx, ledger.Reservation{
		ItemID:   itemID,
		UserID:   actorID,
		Quantity: quantity,
	}, func(ctx context.Context, tx *sql.Tx, c *model.Commitment) error {
		_, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID),
			model.UserJoined{Slots: c.Quantity, Cost: c.TotalAmount}, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	c.UserName = actor.Name

	slog.Info("user joined", "run", run.ID, "item", itemID, "user", actorID, "quantity", quantity)
	if actorID != run.HostID {
		s.notify(run.HostID, notify.KindUserJoined, run.ID, map[string]any{
			"user_name": actor.Name,
			"item":      item.Title,
			"slots":     c.Quantity,
		})
	}
	return c, nil
}

// Leave removes a commitment. The owner leaving is subject to the payment
// and time window rules; the host kicking a participant is not.
func (s *Service) Leave(ctx context.Context, actorID, commitmentID int64) (*model.Commitment, error) {
	c, run, err := commitmentContext(ctx, s.db, commitmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeLeave(c, run, actorID); err != nil {
		return nil, err
	}

	kicked := actorID != c.UserID
	released, err := s.ledger.Release(ctx, commitmentID, func(ctx context.Context, tx *sql.Tx, current *model.Commitment) error {
		// The commitment may have been marked paid since it was first read.
		if err := s.authorizeLeave(current, run, actorID); err != nil {
			return err
		}
		dep := model.Departure{
			TargetUserID:   current.UserID,
			TargetUserName: current.UserName,
			Quantity:       current.Quantity,
		}
		var meta model.ActivityMetadata = model.UserLeft{Departure: dep}
		if kicked {
			meta = model.UserKicked{Departure: dep}
		}
		_, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID), meta, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	if kicked {
		slog.Info("user kicked", "run", run.ID, "user", released.UserID, "quantity", released.Quantity)
		s.notify(released.UserID, notify.KindUserKicked, run.ID, map[string]any{
			"store_name": run.StoreName,
			"slots":      released.Quantity,
		})
	} else {
		slog.Info("user left", "run", run.ID, "user", released.UserID, "quantity", released.Quantity)
	}
	return released, nil
}

// authorizeLeave applies the leave rules in order: relation to the
// commitment, the host's own commitment, then the self-leave gates.
func (s *Service) authorizeLeave(c *model.Commitment, run *model.Run, actorID int64) error {
	isOwner := c.UserID == actorID
	isHost := run.HostID == actorID

	if !isOwner && !isHost {
		return fmt.Errorf("only the participant or the host can remove a commitment: %w", model.ErrUnauthorized)
	}
	if isHost && c.UserID == run.HostID {
		return model.Forbidden("the host cannot leave their own haul; cancel the haul instead")
	}
	if isOwner && !isHost {
		if c.PaymentStatus != model.PaymentUnpaid {
			return model.Forbidden("cannot leave after marking payment; contact the host")
		}
		expires := c.CreatedAt.Add(s.cfg.LeaveWindow)
		if s.now().After(expires) {
			return &model.ForbiddenError{
				Reason:          fmt.Sprintf("cannot leave more than %s after joining; contact the host", formatWindow(s.cfg.LeaveWindow)),
				WindowExpiresAt: &expires,
			}
		}
	}
	return nil
}

func formatWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
