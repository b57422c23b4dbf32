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

// statusMessage returns the chat line announced for a transition, or "".
func statusMessage(hostName string, to model.RunStatus) string {
	switch to {
	case model.RunStatusHeadingBack:
		return hostName + " is heading back!"
	case model.RunStatusArrived:
		return hostName + " is back! Ready for pickup."
	}
	return ""
}

// UpdateStatus moves a run forward in its lifecycle. Only the host may do
// so, and a run never moves back or past completed. Requesting the current
// status again is an invalid transition too.
func (s *Service) UpdateStatus(ctx context.Context, actorID, runID int64, target string) (*model.Run, error) {
	var (
		run *model.Run
		old model.RunStatus
		msg *model.Message
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		run, err = activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.HostID != actorID {
			return fmt.Errorf("only the host can update the haul status: %w", model.ErrUnauthorized)
		}
		if run.Status == model.RunStatusCompleted {
			return fmt.Errorf("run %d: %w", runID, model.ErrAlreadyCompleted)
		}

		to := model.RunStatus(target)
		if !to.Valid() {
			return model.Invalid("status", fmt.Sprintf("unknown status %q", target))
		}
		if to.Index() <= run.Status.Index() {
			return &model.InvalidTransitionError{Current: run.Status, Attempted: to}
		}

		now := s.now()
		ok, err := store.UpdateRunStatus(ctx, tx, run.ID, run.Status, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("updating status of run %d: %w", runID, model.ErrConcurrencyConflict)
		}
		if _, err := store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID),
			model.StatusChange{Old: run.Status, New: to}, now); err != nil {
			return err
		}

		if body := statusMessage(s.hostName(ctx, tx, run.HostID), to); body != "" {
			msg, err = store.InsertMessage(ctx, tx, run.ID, int64Ptr(actorID), body, true, now)
			if err != nil {
				return err
			}
		}

		old = run.Status
		run.Status, run.UpdatedAt = to, now
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("run status changed", "run", run.ID, "from", old, "to", run.Status)
	// Participants only hear about the transitions that get a chat line.
	if msg != nil {
		s.notifyParticipants(ctx, run, notify.KindRunStatusChanged, map[string]any{
			"old":        string(old),
			"new":        string(run.Status),
			"store_name": run.StoreName,
			"message":    msg.Body,
		})
	}
	return run, nil
}

func (s *Service) hostName(ctx context.Context, q store.Querier, hostID int64) string {
	u, err := store.GetUser(ctx, q, hostID)
	if err != nil || u == nil {
		return "The host"
	}
	return u.Name
}

// notifyParticipants sends an event to every participant other than the host.
func (s *Service) notifyParticipants(ctx context.Context, run *model.Run, kind string, payload map[string]any) {
	ids, err := participantIDs(ctx, s.db, run)
	if err != nil {
		slog.Warn("listing participants for notification failed", "run", run.ID, "error", err)
		return
	}
	for _, id := range ids {
		s.notify(id, kind, run.ID, payload)
	}
}

func participantIDs(ctx context.Context, q store.Querier, run *model.Run) ([]int64, error) {
	commitments, err := store.ListCommitmentsByRun(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{run.HostID: true}
	var ids []int64
	for _, c := range commitments {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}
	return ids, nil
}
