package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock()
	var fired []string

	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "b") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "a") })
	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "c") })

	c.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestManualClock_CallbackReschedules(t *testing.T) {
	c := NewManualClock()
	start := c.Now()
	count := 0

	var tick func()
	tick = func() {
		count++
		if count < 5 {
			c.AfterFunc(10*time.Millisecond, tick)
		}
	}
	c.AfterFunc(10*time.Millisecond, tick)

	c.Advance(time.Second)
	assert.Equal(t, 5, count)
	assert.Equal(t, start.Add(time.Second), c.Now())
}

func TestManualClock_Stop(t *testing.T) {
	c := NewManualClock()
	fired := false
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Second)
	assert.False(t, fired)

	done := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)
	assert.False(t, done.Stop())
}
