package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlusher struct{ calls atomic.Int32 }

func (f *fakeFlusher) FlushDirty(context.Context) (int, error) {
	f.calls.Add(1)
	return 1, nil
}

type fakeSweeper struct {
	calls atomic.Int32
	ttl   atomic.Int64
	err   error
}

func (f *fakeSweeper) SweepOrphans(_ context.Context, ttl time.Duration) (int, error) {
	f.calls.Add(1)
	f.ttl.Store(int64(ttl))
	return 3, f.err
}

func TestScheduler_RunsTasksPeriodically(t *testing.T) {
	fl := &fakeFlusher{}
	sw := &fakeSweeper{}
	s := New(logging.Discard())
	for _, task := range MaintenanceTasks(fl, sw, 10*time.Millisecond, 15*time.Millisecond, time.Hour, logging.Discard()) {
		require.NoError(t, s.Register(task))
	}

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return fl.calls.Load() >= 2 && sw.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(time.Hour), sw.ttl.Load())
}

func TestScheduler_Register(t *testing.T) {
	s := New(logging.Discard())
	defer s.Stop()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register(Task{Name: "a", Every: time.Minute, Handler: noop}))
	assert.Error(t, s.Register(Task{Name: "a", Every: time.Minute, Handler: noop}))
	assert.Error(t, s.Register(Task{Name: "b", Every: 0, Handler: noop}))
}

func TestScheduler_RunNow(t *testing.T) {
	boom := errors.New("boom")
	sw := &fakeSweeper{err: boom}
	s := New(logging.Discard())
	defer s.Stop()
	for _, task := range MaintenanceTasks(&fakeFlusher{}, sw, time.Hour, time.Hour, time.Minute, logging.Discard()) {
		require.NoError(t, s.Register(task))
	}

	assert.ErrorIs(t, s.RunNow(TaskSweepOrphans), boom)
	assert.Equal(t, int32(1), sw.calls.Load())
	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_FailingTaskKeepsRunning(t *testing.T) {
	var calls atomic.Int32
	s := New(logging.Discard())
	require.NoError(t, s.Register(Task{Name: "fail", Every: 10 * time.Millisecond, Handler: func(context.Context) error {
		calls.Add(1)
		return errors.New("nope")
	}}))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
