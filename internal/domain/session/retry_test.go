package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImmediateFloor(t *testing.T) {
	assert.Equal(t, time.Second, Immediate{}.Next(1))
	assert.Equal(t, 250*time.Millisecond, Immediate{Delay: 250 * time.Millisecond}.Next(99))
}

func TestBackoffDoubling(t *testing.T) {
	p := Backoff{Min: time.Second, Max: 8 * time.Second}

	assert.Equal(t, time.Second, p.Next(1))
	assert.Equal(t, 2*time.Second, p.Next(2))
	assert.Equal(t, 4*time.Second, p.Next(3))
	assert.Equal(t, 8*time.Second, p.Next(4))
	assert.Equal(t, 8*time.Second, p.Next(10), "capped at max")
}

func TestBackoffDefaults(t *testing.T) {
	p := Backoff{}
	assert.Equal(t, time.Second, p.Next(1))
	assert.Equal(t, time.Second, p.Next(5), "max defaults to min")
}
