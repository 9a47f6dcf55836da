package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/pipeline"
	"jobmate/ingest-service/internal/session"
)

type fakePipeline struct {
	runs, retries, notifies atomic.Int32
	runErr                  error
}

func (f *fakePipeline) Run(context.Context) (*session.Session, error) {
	f.runs.Add(1)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &session.Session{ID: "s", Status: session.StatusCompleted}, nil
}

func (f *fakePipeline) RetryFailed(context.Context) (pipeline.RetryStats, error) {
	f.retries.Add(1)
	return pipeline.RetryStats{}, nil
}

func (f *fakePipeline) NotifyPending(context.Context) (pipeline.NotifyStats, error) {
	f.notifies.Add(1)
	return pipeline.NotifyStats{}, nil
}

func TestStart_RegistersJobsAndRunsImmediately(t *testing.T) {
	p := &fakePipeline{}
	s := New(p, Specs{Run: "@every 6h"}, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), true))
	defer s.Stop()

	assert.Equal(t, 3, s.Entries())
	assert.Eventually(t, func() bool { return p.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.retries.Load())
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(&fakePipeline{}, Specs{Run: "every six hours"}, zap.NewNop())
	err := s.Start(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run")
}

func TestJobs_ErrorsAreLoggedNotPropagated(t *testing.T) {
	p := &fakePipeline{runErr: errors.New("redis down")}
	s := New(p, Specs{Run: "@every 1h"}, zap.NewNop())

	s.run(context.Background())
	s.retry(context.Background())
	s.notify(context.Background())

	assert.EqualValues(t, 1, p.runs.Load())
	assert.EqualValues(t, 1, p.retries.Load())
	assert.EqualValues(t, 1, p.notifies.Load())
}
