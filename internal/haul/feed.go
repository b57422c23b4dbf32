package haul

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/store"
)

// Paging limits for feeds and chat.
const (
	DefaultPageSize  = 20
	MaxPageSize      = 100
	MaxMessageLength = 2000
)

// FeedEntry is an activity with its rendered message.
type FeedEntry struct {
	model.Activity
	Message string `json:"message"`
}

// FeedPage is one page of a run's activity feed.
type FeedPage struct {
	Entries []FeedEntry `json:"data"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Total   int         `json:"total"`
}

// ActivityFeed returns a page of a run's activity, newest first. Pages
// start at 1.
func (s *Service) ActivityFeed(ctx context.Context, runID int64, page, perPage int) (*FeedPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	perPage = min(perPage, MaxPageSize)

	if _, err := activeRun(ctx, s.db, runID); err != nil {
		return nil, err
	}

	activities, err := store.ListActivities(ctx, s.db, runID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	total, err := store.CountActivities(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}

	out := &FeedPage{Entries: make([]FeedEntry, 0, len(activities)), Page: page, PerPage: perPage, Total: total}
	for _, a := range activities {
		out.Entries = append(out.Entries, FeedEntry{Activity: a, Message: a.Message()})
	}
	return out, nil
}

// MyActivityLimit is how many entries the personal activity feed shows.
const MyActivityLimit = 10

// MyActivity returns the newest activity around a user: their hauls, the
// hauls they joined and their own actions elsewhere.
func (s *Service) MyActivity(ctx context.Context, userID int64) ([]FeedEntry, error) {
	if _, err := activeUser(ctx, s.db, userID); err != nil {
		return nil, err
	}
	activities, err := store.ListActivitiesForUser(ctx, s.db, userID, MyActivityLimit)
	if err != nil {
		return nil, err
	}
	out := make([]FeedEntry, 0, len(activities))
	for _, a := range activities {
		out = append(out, FeedEntry{Activity: a, Message: a.Message()})
	}
	return out, nil
}

// PostMessage adds a chat message from a participant.
func (s *Service) PostMessage(ctx context.Context, actorID, runID int64, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, model.Invalid("message", "is required")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, model.Invalid("message", fmt.Sprintf("must be at most %d characters", MaxMessageLength))
	}

	var msg *model.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		run, err := s.requireParticipant(ctx, tx, runID, actorID)
		if err != nil {
			return err
		}
		now := s.now()
		msg, err = store.InsertMessage(ctx, tx, run.ID, int64Ptr(actorID), body, false, now)
		if err != nil {
			return err
		}
		_, err = store.InsertActivity(ctx, tx, run.ID, int64Ptr(actorID), model.Comment{MessageID: msg.ID}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if u, err := store.GetUser(ctx, s.db, actorID); err == nil && u != nil {
		msg.UserName = u.Name
	}
	return msg, nil
}

// ListMessages returns chat messages after afterID, oldest first. Only the
// host and participants may read the chat.
func (s *Service) ListMessages(ctx context.Context, actorID, runID, afterID int64, limit int) ([]model.Message, error) {
	if limit < 1 {
		limit = MaxPageSize
	}
	limit = min(limit, MaxPageSize)

	run, err := s.requireParticipant(ctx, s.db, runID, actorID)
	if err != nil {
		return nil, err
	}
	msgs, err := store.ListMessages(ctx, s.db, run.ID, afterID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

func (s *Service) requireParticipant(ctx context.Context, q store.Querier, runID, userID int64) (*model.Run, error) {
	run, err := activeRun(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	items, err := store.LoadRunDetail(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(run, items, userID) {
		return nil, fmt.Errorf("only the host and participants can use the chat: %w", model.ErrUnauthorized)
	}
	return run, nil
}
