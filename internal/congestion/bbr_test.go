package congestion

import (
	"testing"
	"time"
)

func TestBBRInitialState(t *testing.T) {
	b := NewBBR(20 * time.Millisecond)
	if b.State() != BBRStartup {
		t.Errorf("State = %v, want STARTUP", b.State())
	}
	if b.CwndBytes() != minPipeCwndPkts*MSS {
		t.Errorf("CwndBytes = %d, want %d", b.CwndBytes(), minPipeCwndPkts*MSS)
	}
}

func TestBBRRTTSampleSeedsRTProp(t *testing.T) {
	b := NewBBR(0)
	now := time.Unix(0, 0)
	b.OnRTTSample(15*time.Millisecond, now)
	if b.RTProp() != 15*time.Millisecond {
		t.Errorf("RTProp = %v, want 15ms", b.RTProp())
	}

	// A larger sample shortly after must not replace the minimum.
	b.OnRTTSample(50*time.Millisecond, now.Add(time.Millisecond))
	if b.RTProp() != 15*time.Millisecond {
		t.Errorf("RTProp = %v after larger sample, want unchanged 15ms", b.RTProp())
	}
}

func TestBBRBandwidthGrowsAndExitsStartup(t *testing.T) {
	b := NewBBR(10 * time.Millisecond)
	now := time.Unix(0, 0)
	b.OnRTTSample(10*time.Millisecond, now)

	// Feed a long run of ACKs at a roughly steady rate; the bandwidth
	// estimate should plateau and trip the full-bandwidth detector within
	// a bounded number of rounds.
	for i := 0; i < 40; i++ {
		now = now.Add(10 * time.Millisecond)
		b.OnNewAck(MSS, 0, now)
	}

	if b.Bandwidth() == 0 {
		t.Fatal("Bandwidth = 0 after steady ACK stream, want > 0")
	}
	if b.State() == BBRStartup {
		t.Errorf("State = STARTUP after bandwidth plateau, want DRAIN or PROBE_BW")
	}
}

func TestBBRDupAckAndTimeoutAreNoOps(t *testing.T) {
	b := NewBBR(10 * time.Millisecond)
	now := time.Unix(0, 0)
	before := b.CwndBytes()
	beforeState := b.State()

	b.OnDupAckTriple(1000, now)
	b.OnTimeout(now)

	if b.CwndBytes() != before {
		t.Errorf("CwndBytes changed on dup-ack/timeout: %d -> %d", before, b.CwndBytes())
	}
	if b.State() != beforeState {
		t.Errorf("State changed on dup-ack/timeout: %v -> %v", beforeState, b.State())
	}
}

func TestBBRPacingDelayZeroUntilBandwidthKnown(t *testing.T) {
	b := NewBBR(10 * time.Millisecond)
	if d := b.PacingDelay(MSS); d != 0 {
		t.Errorf("PacingDelay = %v before any bandwidth sample, want 0", d)
	}
}

func TestBBRPacingDelayPositiveOnceBandwidthKnown(t *testing.T) {
	b := NewBBR(10 * time.Millisecond)
	now := time.Unix(0, 0)
	b.OnRTTSample(10*time.Millisecond, now)
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Millisecond)
		b.OnNewAck(MSS, 0, now)
	}
	if d := b.PacingDelay(MSS); d <= 0 {
		t.Errorf("PacingDelay = %v once bandwidth is known, want > 0", d)
	}
}
