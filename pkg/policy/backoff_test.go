package policy

import (
	"testing"
	"time"
)

func TestBackoffProgression(t *testing.T) {
	b := NewBackoff()

	// Base delays double from 1s up to the 60s cap; jitter only adds.
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	for i, base := range expected {
		delay := b.Next()
		if delay < base {
			t.Errorf("attempt %d: delay %v below base %v", i, delay, base)
		}
		maxWithJitter := base + time.Duration(float64(base)*JitterFactor)
		if delay > maxWithJitter {
			t.Errorf("attempt %d: delay %v above jitter ceiling %v", i, delay, maxWithJitter)
		}
	}

	if got := b.Attempts(); got != len(expected) {
		t.Errorf("attempts = %d, want %d", got, len(expected))
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff()

	b.Next()
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Attempts(); got != 0 {
		t.Errorf("attempts after reset = %d, want 0", got)
	}

	delay := b.Next()
	ceiling := InitialBackoff + time.Duration(float64(InitialBackoff)*JitterFactor)
	if delay < InitialBackoff || delay > ceiling {
		t.Errorf("delay after reset = %v, want within [%v, %v]", delay, InitialBackoff, ceiling)
	}
}
