package hubotel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatch(t *testing.T) {
	var idle stopwatch
	assert.False(t, idle.active())
	assert.Equal(t, time.Duration(0), idle.elapsed())

	sw := startStopwatch(tick(250 * time.Millisecond))
	assert.True(t, sw.active())
	assert.Equal(t, 250*time.Millisecond, sw.elapsed())
	assert.Equal(t, 500*time.Millisecond, sw.elapsed())
}

func TestMilliseconds(t *testing.T) {
	assert.Equal(t, 1.5, milliseconds(1500*time.Microsecond))
}
