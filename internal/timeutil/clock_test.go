package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClockNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), c.Now())
}

func TestMockTimerFiresAtDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tm := c.NewTimer(2 * time.Second)

	c.Advance(1999 * time.Millisecond)
	select {
	case <-tm.C():
		t.Fatal("timer fired before deadline")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case got := <-tm.C():
		assert.Equal(t, start.Add(2*time.Second), got)
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestMockTimerStop(t *testing.T) {
	c := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tm := c.NewTimer(time.Second)

	require.True(t, tm.Stop())
	require.False(t, tm.Stop())

	c.Advance(5 * time.Second)
	select {
	case <-tm.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockTimerReset(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tm := c.NewTimer(time.Second)
	mt := tm.(*MockTimer)

	c.Advance(500 * time.Millisecond)
	assert.True(t, tm.Reset(time.Second))
	assert.Equal(t, start.Add(1500*time.Millisecond), mt.Deadline())

	c.Advance(600 * time.Millisecond)
	select {
	case <-tm.C():
		t.Fatal("timer fired at old deadline")
	default:
	}

	c.Advance(400 * time.Millisecond)
	select {
	case <-tm.C():
	default:
		t.Fatal("timer did not fire at reset deadline")
	}
	assert.False(t, mt.Active())
}

func TestRealClockTimer(t *testing.T) {
	tm := RealClock{}.NewTimer(time.Millisecond)
	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
