package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/session/sessiontest"
)

func TestClockScheduler_EveryStopsOnStop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fc := clockwork.NewFakeClockAt(epoch)
	s := session.NewClockScheduler(fc)

	var n atomic.Int32
	task := s.Every(time.Second, func() { n.Add(1) })
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)

	assert.True(t, task.Stop())
	assert.False(t, task.Stop())

	fc.Advance(5 * time.Second)
	assert.Never(t, func() bool { return n.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestClockScheduler_AfterFunc(t *testing.T) {
	fc := clockwork.NewFakeClockAt(epoch)
	s := session.NewClockScheduler(fc)
	assert.Equal(t, epoch, s.Now())

	var fired, cancelled atomic.Bool
	s.AfterFunc(2*time.Second, func() { fired.Store(true) })
	stopped := s.AfterFunc(2*time.Second, func() { cancelled.Store(true) })
	require.True(t, stopped.Stop())

	fc.Advance(1999 * time.Millisecond)
	assert.False(t, fired.Load())

	fc.Advance(time.Millisecond)
	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
	assert.False(t, cancelled.Load())
}

func TestController_WithClockScheduler(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fc := clockwork.NewFakeClockAt(epoch)
	svc := sessiontest.NewService()
	ctrl, err := session.New(session.Options{
		TestID:          "test-1",
		DurationSeconds: 3,
		Service:         svc,
		Scheduler:       session.NewClockScheduler(fc),
	})
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.Start(context.Background()))
	for i := 0; i < 3; i++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(time.Second)
		want := 2 - i
		require.Eventually(t, func() bool {
			return ctrl.State().RemainingSeconds == want
		}, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(svc.SubmitCalls()) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, svc.SubmitCalls()[0].Payload.AutoSubmit)
}
