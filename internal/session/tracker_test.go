package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/session"
)

func newTracker(t *testing.T) (*session.Tracker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return session.NewTracker(rdb, zap.NewNop(), time.Hour), mr, rdb
}

func TestTracker_HappyPath(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, s.Status)

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.Status)
	assert.Empty(t, got.Errors)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, tr.Start(ctx, s.ID, 3))
	require.NoError(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Messages: 10, Jobs: 4}))
	require.NoError(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Err: errors.New("channel @b: auth rejected")}))
	require.NoError(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Messages: 5, Jobs: 1}))
	require.NoError(t, tr.Complete(ctx, s.ID))

	got, err = tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.TotalChannels)
	assert.Equal(t, 3, got.ProcessedChannels)
	assert.Equal(t, 15, got.TotalMessagesProcessed)
	assert.Equal(t, 5, got.TotalJobsExtracted)
	assert.Equal(t, []string{"channel @b: auth rejected"}, got.Errors)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(got.StartedAt))
}

func TestTracker_TerminalStatesDoNotRegress(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, s.ID, 1))
	require.NoError(t, tr.Fail(ctx, s.ID, errors.New("registry unreachable")))

	assert.ErrorIs(t, tr.Start(ctx, s.ID, 1), session.ErrInvalidTransition)
	assert.ErrorIs(t, tr.Complete(ctx, s.ID), session.ErrInvalidTransition)
	assert.ErrorIs(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Messages: 1}), session.ErrInvalidTransition)

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Equal(t, "registry unreachable", got.Error)
	assert.Zero(t, got.ProcessedChannels)
}

func TestTracker_FailFromPending(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Fail(ctx, s.ID, errors.New("boom")))

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
}

func TestTracker_CompleteRequiresRunning(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Complete(ctx, s.ID), session.ErrInvalidTransition)
}

func TestTracker_ProcessedNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, s.ID, 1))
	require.NoError(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Messages: 1}))
	assert.ErrorIs(t, tr.RecordChannel(ctx, s.ID, session.ChannelOutcome{Messages: 1}), session.ErrChannelOverflow)

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ProcessedChannels)
	assert.Equal(t, 1, got.TotalMessagesProcessed)
}

func TestTracker_ConcurrentWorkersLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	const channels = 40
	s, err := tr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, s.ID, channels))

	var wg sync.WaitGroup
	for i := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := session.ChannelOutcome{Messages: 3, Jobs: 2}
			if i%10 == 0 {
				out.Err = fmt.Errorf("channel %d failed", i)
			}
			assert.NoError(t, tr.RecordChannel(ctx, s.ID, out))
		}()
	}
	wg.Wait()

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, channels, got.ProcessedChannels)
	assert.Equal(t, channels*3, got.TotalMessagesProcessed)
	assert.Equal(t, channels*2, got.TotalJobsExtracted)
	assert.Len(t, got.Errors, 4)
}

func TestTracker_MissingSession(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)

	_, err := tr.Get(ctx, "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, tr.Start(ctx, "nope", 1), session.ErrNotFound)
	assert.ErrorIs(t, tr.RecordChannel(ctx, "nope", session.ChannelOutcome{}), session.ErrNotFound)
}

func TestTracker_SessionExpires(t *testing.T) {
	ctx := context.Background()
	tr, mr, _ := newTracker(t)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, err = tr.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestTracker_PublishesProgress(t *testing.T) {
	ctx := context.Background()
	tr, _, rdb := newTracker(t)

	sub := rdb.Subscribe(ctx, session.EventProgress, session.EventFinished)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s, err := tr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, s.ID, 0))
	require.NoError(t, tr.Complete(ctx, s.ID))

	ch := sub.Channel()
	var got []string
	for len(got) < 2 {
		select {
		case m := <-ch:
			got = append(got, m.Channel)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	assert.Equal(t, []string{session.EventProgress, session.EventFinished}, got)
}
