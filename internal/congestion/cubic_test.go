package congestion

import (
	"testing"
	"time"
)

func TestCubicInitialState(t *testing.T) {
	c := NewCubic()
	if c.Phase() != PhaseSlowStart {
		t.Errorf("Phase = %v, want SLOW_START", c.Phase())
	}
	if c.CwndBytes() != MSS {
		t.Errorf("CwndBytes = %d, want %d", c.CwndBytes(), MSS)
	}
	if c.SSThreshBytes() != initialSSThreshPk*MSS {
		t.Errorf("SSThreshBytes = %d, want %d", c.SSThreshBytes(), initialSSThreshPk*MSS)
	}
}

func TestCubicSlowStartGrowsThenExitsToCongestionAvoidance(t *testing.T) {
	c := NewCubic()
	c.ssthreshPkts = 4 // force an early exit so the test runs fast
	now := time.Unix(0, 0)

	for i := uint32(0); i < 10 && c.Phase() == PhaseSlowStart; i++ {
		before := c.CwndBytes()
		c.OnNewAck(MSS, i+1, now)
		if c.CwndBytes() <= before {
			t.Fatalf("cwnd did not grow during slow start: %d -> %d", before, c.CwndBytes())
		}
		now = now.Add(10 * time.Millisecond)
	}

	if c.Phase() != PhaseCongestionAvoidance {
		t.Fatalf("Phase = %v after exceeding ssthresh, want CONGESTION_AVOIDANCE", c.Phase())
	}
}

func TestDupAckTripleEntersFastRecoveryAndShrinks(t *testing.T) {
	c := NewCubic()
	// Grow cwnd well past the minimum so the ssthresh+3 inflation still
	// nets a strict decrease (spec §8: cwnd_after <= cwnd_before).
	now := time.Unix(0, 0)
	for i := uint32(0); i < 50; i++ {
		c.OnNewAck(MSS, i+1, now)
		now = now.Add(time.Millisecond)
	}
	before := c.CwndBytes()
	ssthreshBefore := c.SSThreshBytes()

	c.OnDupAckTriple(1000, now)

	if c.Phase() != PhaseFastRecovery {
		t.Errorf("Phase = %v, want FAST_RECOVERY", c.Phase())
	}
	if c.CwndBytes() > before {
		t.Errorf("cwnd after loss = %d, want <= %d", c.CwndBytes(), before)
	}
	if c.SSThreshBytes() < 2*MSS {
		t.Errorf("ssthresh after loss = %d, want >= %d", c.SSThreshBytes(), 2*MSS)
	}
	_ = ssthreshBefore
}

func TestFastRecoveryExitsOnlyAfterPassingRecoveryPoint(t *testing.T) {
	c := NewCubic()
	now := time.Unix(0, 0)
	for i := uint32(0); i < 50; i++ {
		c.OnNewAck(MSS, i+1, now)
		now = now.Add(time.Millisecond)
	}

	c.OnDupAckTriple(1000, now)
	ssthreshAfterLoss := c.SSThreshBytes()

	// An ACK that has not yet reached the recovery point must leave the
	// controller in FAST_RECOVERY with its inflated cwnd untouched.
	now = now.Add(time.Millisecond)
	c.OnNewAck(MSS, 500, now)
	if c.Phase() != PhaseFastRecovery {
		t.Fatalf("Phase = %v after partial ack below recovery point, want FAST_RECOVERY", c.Phase())
	}
	if c.CwndBytes() != ssthreshAfterLoss+3*MSS {
		t.Errorf("cwnd changed on a partial ack below the recovery point: %d, want %d", c.CwndBytes(), ssthreshAfterLoss+3*MSS)
	}

	// An ACK reaching the recovery point must exit to CONGESTION_AVOIDANCE
	// with cwnd deflated back to ssthresh (spec §4.5.1).
	now = now.Add(time.Millisecond)
	c.OnNewAck(MSS, 1000, now)
	if c.Phase() != PhaseCongestionAvoidance {
		t.Fatalf("Phase = %v after ack passing recovery point, want CONGESTION_AVOIDANCE", c.Phase())
	}
	if c.CwndBytes() != ssthreshAfterLoss {
		t.Errorf("cwnd after recovery exit = %d, want ssthresh %d", c.CwndBytes(), ssthreshAfterLoss)
	}
}

func TestTimeoutResetsToSlowStart(t *testing.T) {
	c := NewCubic()
	now := time.Unix(0, 0)
	for i := uint32(0); i < 50; i++ {
		c.OnNewAck(MSS, i+1, now)
		now = now.Add(time.Millisecond)
	}
	before := c.CwndBytes()

	c.OnTimeout(now)

	if c.Phase() != PhaseSlowStart {
		t.Errorf("Phase = %v, want SLOW_START after timeout", c.Phase())
	}
	if c.CwndBytes() != MSS {
		t.Errorf("CwndBytes = %d, want %d after timeout", c.CwndBytes(), MSS)
	}
	if c.CwndBytes() > before {
		t.Errorf("cwnd after timeout = %d, want <= %d", c.CwndBytes(), before)
	}
	if c.SSThreshBytes() < 2*MSS {
		t.Errorf("ssthresh after timeout = %d, want >= %d", c.SSThreshBytes(), 2*MSS)
	}
}

func TestCubicPacingDelayAlwaysZero(t *testing.T) {
	c := NewCubic()
	if d := c.PacingDelay(MSS); d != 0 {
		t.Errorf("PacingDelay = %v, want 0", d)
	}
}
