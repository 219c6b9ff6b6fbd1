package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/session"
)

func tickTo(c *session.Countdown, remaining int) []session.TimerEvent {
	var events []session.TimerEvent
	for c.Remaining() > remaining {
		events = append(events, c.Tick()...)
	}
	return events
}

func TestCountdown_FiresEachThresholdOnce(t *testing.T) {
	c := session.NewCountdown(600)

	assert.Empty(t, tickTo(c, 301))

	events := tickTo(c, 300)
	require.Len(t, events, 1)
	assert.Equal(t, session.TimerEvent{Kind: session.TimerWarning, Threshold: 300}, events[0])
	assert.Empty(t, c.Poll(), "polling the same remaining value must not refire")
	assert.Empty(t, c.Poll())

	events = tickTo(c, 60)
	require.Len(t, events, 1)
	assert.Equal(t, 60, events[0].Threshold)
	assert.Empty(t, c.Poll())

	events = tickTo(c, 30)
	require.Len(t, events, 1)
	assert.Equal(t, 30, events[0].Threshold)

	events = tickTo(c, 0)
	require.Len(t, events, 1)
	assert.Equal(t, session.TimerExpired, events[0].Kind)
	assert.True(t, c.Expired())
	assert.Equal(t, 600, c.Elapsed())

	assert.Empty(t, c.Tick(), "no events after expiry")
	assert.Empty(t, c.Poll())
	assert.Equal(t, 0, c.Remaining())
}

func TestCountdown_ShortSessionSkipsHigherThresholds(t *testing.T) {
	c := session.NewCountdown(120)

	var thresholds []int
	expired := 0
	for _, ev := range tickTo(c, 0) {
		switch ev.Kind {
		case session.TimerWarning:
			thresholds = append(thresholds, ev.Threshold)
		case session.TimerExpired:
			expired++
		}
	}

	assert.Equal(t, []int{60, 30}, thresholds)
	assert.Equal(t, 1, expired)
}

func TestCountdown_PollAtStartOfThreshold(t *testing.T) {
	c := session.NewCountdown(30)

	events := c.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, 30, events[0].Threshold)
	assert.Empty(t, c.Poll())
}

func TestResumeCountdown_SkipsPassedThresholds(t *testing.T) {
	c := session.ResumeCountdown(400, 320)
	assert.Equal(t, 80, c.Remaining())
	assert.Equal(t, 320, c.Elapsed())

	var thresholds []int
	for _, ev := range tickTo(c, 0) {
		if ev.Kind == session.TimerWarning {
			thresholds = append(thresholds, ev.Threshold)
		}
	}
	assert.Equal(t, []int{60, 30}, thresholds)
	assert.True(t, c.Expired())
}

func TestResumeCountdown_Bounds(t *testing.T) {
	assert.Equal(t, 60, session.ResumeCountdown(60, -5).Remaining())

	c := session.ResumeCountdown(60, 90)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 60, c.Elapsed())
	assert.Equal(t, []session.TimerEvent{{Kind: session.TimerExpired}}, c.Poll())
}
