package main

import (
	"testing"
	"time"
)

func TestSettleInterval(t *testing.T) {
	cases := []struct {
		settle time.Duration
		want   time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1 * time.Nanosecond, 50 * time.Millisecond},
		{20 * time.Millisecond, 50 * time.Millisecond},
		{time.Second, 500 * time.Millisecond},
		{10 * time.Second, 5 * time.Second},
	}

	for _, c := range cases {
		if got := settleInterval(c.settle); got != c.want {
			t.Errorf("settleInterval(%v) = %v, want %v", c.settle, got, c.want)
		}
	}

	// The derived interval must always be a valid ticker period.
	if settleInterval(0) <= 0 {
		t.Error("settleInterval(0) must be positive")
	}
}
