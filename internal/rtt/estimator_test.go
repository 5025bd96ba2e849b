package rtt

import (
	"testing"
	"time"
)

func TestFirstSampleSeedsSrttAndRttvar(t *testing.T) {
	e := New()
	e.Sample(100 * time.Millisecond)

	if e.SRTT() != 100*time.Millisecond {
		t.Errorf("SRTT = %v, want 100ms", e.SRTT())
	}
	if e.rttvar != 50*time.Millisecond {
		t.Errorf("rttvar = %v, want 50ms", e.rttvar)
	}
}

func TestRTOStaysWithinBounds(t *testing.T) {
	e := New()
	samples := []time.Duration{
		1 * time.Millisecond, 500 * time.Millisecond, 5 * time.Millisecond,
		2 * time.Second, 10 * time.Millisecond,
	}
	for _, s := range samples {
		e.Sample(s)
		if e.RTO() < MinRTO || e.RTO() > MaxRTO {
			t.Fatalf("RTO = %v, want within [%v,%v]", e.RTO(), MinRTO, MaxRTO)
		}
	}
}

func TestBackOffDoublesAndClamps(t *testing.T) {
	e := New()
	e.Sample(100 * time.Millisecond)
	before := e.RTO()
	e.BackOff()
	if e.RTO() != 2*before {
		t.Errorf("RTO after backoff = %v, want %v", e.RTO(), 2*before)
	}

	// Repeated backoff must never exceed MaxRTO.
	for i := 0; i < 20; i++ {
		e.BackOff()
	}
	if e.RTO() > MaxRTO {
		t.Errorf("RTO = %v exceeds MaxRTO %v", e.RTO(), MaxRTO)
	}
}

func TestBackOffResetOnNextSample(t *testing.T) {
	e := New()
	e.Sample(50 * time.Millisecond)
	e.BackOff()
	e.BackOff()
	inflated := e.RTO()

	e.Sample(50 * time.Millisecond)
	if e.RTO() >= inflated {
		t.Errorf("RTO after fresh sample = %v, want less than inflated %v", e.RTO(), inflated)
	}
}
