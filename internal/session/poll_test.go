package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/ingest-service/internal/session"
)

type scriptedReader struct {
	calls   int
	results []func() (*session.Session, error)
}

func (r *scriptedReader) Get(ctx context.Context, id string) (*session.Session, error) {
	i := r.calls
	r.calls++
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	return r.results[i]()
}

func notFound() (*session.Session, error) { return nil, session.ErrNotFound }

func withStatus(st session.Status) func() (*session.Session, error) {
	return func() (*session.Session, error) { return &session.Session{ID: "s", Status: st}, nil }
}

func TestPoll_MissingDocumentIsNotAnError(t *testing.T) {
	r := &scriptedReader{results: []func() (*session.Session, error){
		notFound, notFound, withStatus(session.StatusRunning), withStatus(session.StatusCompleted),
	}}

	var seen []session.Status
	s, err := session.Poll(context.Background(), r, "s", 10, time.Millisecond, func(s *session.Session) {
		seen = append(seen, s.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Equal(t, 4, r.calls)
	assert.Equal(t, []session.Status{session.StatusRunning, session.StatusCompleted}, seen)
}

func TestPoll_TimesOutAfterBudget(t *testing.T) {
	r := &scriptedReader{results: []func() (*session.Session, error){withStatus(session.StatusRunning)}}

	s, err := session.Poll(context.Background(), r, "s", 3, time.Millisecond, nil)
	assert.ErrorIs(t, err, session.ErrPollTimeout)
	require.NotNil(t, s)
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Equal(t, 3, r.calls)
}

func TestPoll_NeverStarted(t *testing.T) {
	r := &scriptedReader{results: []func() (*session.Session, error){notFound}}

	s, err := session.Poll(context.Background(), r, "s", 2, time.Millisecond, nil)
	assert.ErrorIs(t, err, session.ErrPollTimeout)
	assert.Nil(t, s)
}

func TestPoll_ReadErrorStops(t *testing.T) {
	boom := errors.New("redis down")
	r := &scriptedReader{results: []func() (*session.Session, error){
		func() (*session.Session, error) { return nil, boom },
	}}

	_, err := session.Poll(context.Background(), r, "s", 5, time.Millisecond, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, r.calls)
}
