package haul

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
)

// MarkPaid records that the buyer has sent payment for their commitment.
// Marking an already marked commitment is a no-op.
func (s *Service) MarkPaid(ctx context.Context, actorID, commitmentID int64) (*model.Commitment, error) {
	var (
		c       *model.Commitment
		run     *model.Run
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, run, err = commitmentContext(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if c.UserID != actorID {
			return fmt.Errorf("only the buyer can mark a commitment paid: %w", model.ErrUnauthorized)
		}

		switch c.PaymentStatus {
		case model.PaymentPaidMarked:
			return nil
		case model.PaymentConfirmed:
			return model.Forbidden("payment has already been confirmed by the host")
		}

		now := s.now()
		if err := store.UpdateCommitmentPayment(ctx, tx, c.ID, model.PaymentPaidMarked, "", now); err != nil {
			return err
		}
		if _, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID),
			model.PaymentMarked{CommitmentID: c.ID, Amount: c.TotalAmount}, now); err != nil {
			return err
		}
		c.PaymentStatus, c.UpdatedAt = model.PaymentPaidMarked, now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		slog.Info("payment marked", "run", run.ID, "commitment", c.ID, "user", actorID)
		s.notify(run.HostID, notify.KindPaymentSent, run.ID, map[string]any{
			"commitment_id": c.ID,
			"user_name":     c.UserName,
			"amount":        c.TotalAmount.StringFixed(2),
		})
	}
	return c, nil
}

// ConfirmPayment records that the host received payment. The host may
// confirm from any payment state. Confirming payment also confirms the
// commitment.
func (s *Service) ConfirmPayment(ctx context.Context, actorID, commitmentID int64) (*model.Commitment, error) {
	var (
		c   *model.Commitment
		run *model.Run
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, run, err = commitmentContext(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if run.HostID != actorID {
			return fmt.Errorf("only the host can confirm payment: %w", model.ErrUnauthorized)
		}

		now := s.now()
		if err := store.UpdateCommitmentPayment(ctx, tx, c.ID, model.PaymentConfirmed, model.CommitmentConfirmed, now); err != nil {
			return err
		}
		if _, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID),
			model.PaymentReceived{CommitmentID: c.ID, Amount: c.TotalAmount}, now); err != nil {
			return err
		}
		c.PaymentStatus, c.Status, c.UpdatedAt = model.PaymentConfirmed, model.CommitmentConfirmed, now
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment confirmed", "run", run.ID, "commitment", c.ID)
	if c.UserID != actorID {
		s.notify(c.UserID, notify.KindPaymentConfirmed, run.ID, map[string]any{
			"commitment_id": c.ID,
			"store_name":    run.StoreName,
			"amount":        c.TotalAmount.StringFixed(2),
		})
	}
	return c, nil
}
