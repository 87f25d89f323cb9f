package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	task := NewTask("test", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	task.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		time.Second, 5*time.Millisecond)
	task.Stop()
}

func TestTaskStopHalts(t *testing.T) {
	var runs atomic.Int32
	task := NewTask("test", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	task.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, time.Millisecond)
	task.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no cycles may run after Stop returns")
}

func TestTaskSurvivesFailingCycles(t *testing.T) {
	var runs atomic.Int32
	task := NewTask("test", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	})

	task.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 },
		time.Second, time.Millisecond)
	task.Stop()
}

func TestTaskStopWithoutStart(t *testing.T) {
	task := NewTask("test", time.Second, func(ctx context.Context) error { return nil })
	task.Stop() // must not panic
}
