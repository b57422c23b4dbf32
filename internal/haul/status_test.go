package haul

import (
	"testing"

	"github.com/erazemk/skupaj/internal/model"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatusForwardOnly(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	buyer := f.user("Ana", false)
	v, itemID := f.haul(host, 5, 0)
	_, err := f.svc.Join(f.ctx, buyer.ID, itemID, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(f.ctx, buyer.ID, v.ID, string(model.RunStatusLive))
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	run, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusLive))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusLive, run.Status)

	_, err = f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusPrepping))
	var bad *model.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, model.RunStatusLive, bad.Current)
	assert.Equal(t, model.RunStatusPrepping, bad.Attempted)

	_, err = f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusLive))
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(f.ctx, host.ID, v.ID, "teleported")
	assert.ErrorIs(t, err, model.ErrValidation)

	run, err = f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusHeadingBack))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusHeadingBack, run.Status)
	assert.Contains(t, f.notes.kinds(buyer.ID), notify.KindRunStatusChanged)
	assert.NotContains(t, f.notes.kinds(host.ID), notify.KindRunStatusChanged)
}

func TestQuietTransitionsNotifyNobody(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	buyer := f.user("Ana", false)
	v, itemID := f.haul(host, 5, 0)
	_, err := f.svc.Join(f.ctx, buyer.ID, itemID, 1)
	require.NoError(t, err)

	for _, s := range []model.RunStatus{model.RunStatusLive, model.RunStatusCompleted} {
		_, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(s))
		require.NoError(t, err)
	}
	assert.NotContains(t, f.notes.kinds(buyer.ID), notify.KindRunStatusChanged)

	msgs, err := store.ListMessages(f.ctx, f.db, v.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSameStatusIsRejected(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	v, _ := f.haul(host, 5, 0)

	_, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusPrepping))
	var bad *model.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, model.RunStatusPrepping, bad.Current)
	assert.Equal(t, model.RunStatusPrepping, bad.Attempted)
}

func TestStatusSystemMessages(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	v, _ := f.haul(host, 5, 1)

	for _, s := range []model.RunStatus{model.RunStatusLive, model.RunStatusHeadingBack, model.RunStatusArrived} {
		_, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(s))
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(f.ctx, f.db, v.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hana is heading back!", msgs[0].Body)
	assert.Equal(t, "Hana is back! Ready for pickup.", msgs[1].Body)
	for _, m := range msgs {
		assert.True(t, m.IsSystem)
		require.NotNil(t, m.UserID)
		assert.Equal(t, host.ID, *m.UserID)
	}

	acts, err := store.ListActivities(f.ctx, f.db, v.ID, 10, 0)
	require.NoError(t, err)
	change, ok := acts[0].Metadata.(model.StatusChange)
	require.True(t, ok)
	assert.Equal(t, model.RunStatusHeadingBack, change.Old)
	assert.Equal(t, model.RunStatusArrived, change.New)
}

func TestCompletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	host := f.user("Hana", true)
	v, _ := f.haul(host, 5, 0)

	// Skipping ahead is still forward.
	_, err := f.svc.UpdateStatus(f.ctx, host.ID, v.ID, string(model.RunStatusCompleted))
	require.NoError(t, err)

	for _, s := range []string{"arrived", "completed", "nonsense"} {
		_, err = f.svc.UpdateStatus(f.ctx, host.ID, v.ID, s)
		assert.ErrorIs(t, err, model.ErrAlreadyCompleted, s)
	}

	_, err = f.svc.AddItem(f.ctx, host.ID, v.ID, NewItem{Title: "Oil", UnitsTotal: 2})
	assert.ErrorIs(t, err, model.ErrAlreadyCompleted)
}
