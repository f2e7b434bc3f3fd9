package ratelimit

import (
	"testing"
	"time"
)

func TestResultZeroValue(t *testing.T) {
	var r Result
	if r.Allowed {
		t.Error("zero-value Result should not be Allowed")
	}
}

func TestNewLimiterFields(t *testing.T) {
	l := New(nil, 100, time.Minute)
	if l.max != 100 {
		t.Errorf("max = %d, want 100", l.max)
	}
	if l.window != time.Minute {
		t.Errorf("window = %v, want %v", l.window, time.Minute)
	}
}
