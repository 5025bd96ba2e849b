package congestion

import (
	"math"
	"time"
)

// Phase mirrors the spec's cc_state.phase (§4.5.1).
type Phase int

const (
	PhaseSlowStart Phase = iota
	PhaseCongestionAvoidance
	PhaseFastRecovery
)

func (p Phase) String() string {
	switch p {
	case PhaseSlowStart:
		return "SLOW_START"
	case PhaseCongestionAvoidance:
		return "CONGESTION_AVOIDANCE"
	case PhaseFastRecovery:
		return "FAST_RECOVERY"
	default:
		return "UNKNOWN"
	}
}

const (
	cubicC            = 0.4  // RFC 8312 §5
	cubicBeta         = 0.7  // RFC 8312 §4.5 (multiplicative decrease factor)
	initialCwndPkts   = 1
	initialSSThreshPk = 64
)

// Cubic implements RFC 8312's congestion-avoidance curve with slow-start,
// fast-recovery, and timeout transitions (spec §4.5.1). All window
// quantities are tracked in packets internally (the RFC's native unit) and
// converted to bytes only at CwndBytes, per §9's guidance to avoid the
// corpus's packets/bytes mixing.
type Cubic struct {
	cwndPkts      float64
	ssthreshPkts  float64
	wMaxPkts      float64
	wLastMaxPkts  float64
	epochStart    time.Time
	epochValid    bool
	k             float64 // seconds to reach wMax on the cubic curve
	phase         Phase
	recoveryPoint uint32 // next_seq at the time fast recovery was entered
	tcpCwndPkts   float64
}

// NewCubic returns a Cubic controller at its RFC-specified initial state.
func NewCubic() *Cubic {
	return &Cubic{
		cwndPkts:     initialCwndPkts,
		ssthreshPkts: initialSSThreshPk,
		phase:        PhaseSlowStart,
	}
}

func (c *Cubic) OnRTTSample(time.Duration, time.Time) {
	// CUBIC reacts only to ACK/loss/timeout events, not raw RTT samples.
}

func (c *Cubic) OnNewAck(bytesAcked uint32, cumAck uint32, now time.Time) {
	ackedPkts := float64(bytesAcked) / MSS

	if c.phase == PhaseFastRecovery {
		if cumAck < c.recoveryPoint {
			// Still recovering: this ACK has not yet covered every segment
			// that was in flight when the loss was detected, so the
			// window stays at its post-loss inflation (spec §4.5.1 "if
			// the new ACK passes the recovery point").
			return
		}
		// Passing the recovery point means the whole window in flight at
		// the time of loss has now been acknowledged.
		c.cwndPkts = c.ssthreshPkts
		c.phase = PhaseCongestionAvoidance
		c.resetEpoch()
		return
	}

	if c.cwndPkts < c.ssthreshPkts {
		// Slow start: one packet of growth per ACKed packet.
		c.cwndPkts += ackedPkts
		if c.cwndPkts >= c.ssthreshPkts {
			c.wMaxPkts = c.cwndPkts
			c.phase = PhaseCongestionAvoidance
			c.resetEpoch()
		}
		return
	}

	// Congestion avoidance: advance along the cubic curve.
	if !c.epochValid {
		c.epochStart = now
		c.epochValid = true
		c.tcpCwndPkts = c.cwndPkts
		if c.wMaxPkts <= c.cwndPkts {
			c.k = 0
		} else {
			c.k = math.Cbrt(math.Max(0, (c.wMaxPkts-c.cwndPkts)/cubicC))
		}
	}

	t := now.Sub(c.epochStart).Seconds()
	target := cubicC*cube(t-c.k) + c.wMaxPkts
	if target < c.cwndPkts {
		// Never shrink the window on an ACK; the curve may dip below the
		// current window immediately after an epoch reset.
		target = c.cwndPkts
	}

	// TCP-friendly floor (RFC 8312 §4.2): tcp_cwnd grows by MSS²/cwnd
	// per ACK in byte terms, i.e. by 1/cwnd packets per ACKed packet here.
	c.tcpCwndPkts += ackedPkts / c.cwndPkts
	if c.tcpCwndPkts > target {
		target = c.tcpCwndPkts
	}

	// Bound per-ACK growth to one MSS, matching the spec's "concave then
	// convex growth" note in §4.5.1.
	maxStep := math.Min(ackedPkts, 1)
	if maxStep <= 0 {
		maxStep = 1.0 / c.cwndPkts
	}
	if target > c.cwndPkts+maxStep {
		target = c.cwndPkts + maxStep
	}
	c.cwndPkts = target
}

func (c *Cubic) OnDupAckTriple(nextSeq uint32, now time.Time) {
	if c.phase == PhaseFastRecovery {
		return // already recovering; a second triple-dup is not a new event
	}

	if c.cwndPkts < c.wLastMaxPkts {
		// Fast convergence (RFC 8312 §4.7): we're shrinking relative to
		// the last congestion epoch, so aim lower next time.
		c.wMaxPkts = c.cwndPkts * (1 + cubicBeta) / 2
	} else {
		c.wMaxPkts = c.cwndPkts
	}
	c.wLastMaxPkts = c.wMaxPkts

	c.ssthreshPkts = math.Max(c.cwndPkts*cubicBeta, 2)
	c.cwndPkts = c.ssthreshPkts + 3
	c.phase = PhaseFastRecovery
	c.recoveryPoint = nextSeq
	c.resetEpoch()
}

func (c *Cubic) OnTimeout(now time.Time) {
	if c.cwndPkts < c.wLastMaxPkts {
		c.wMaxPkts = c.cwndPkts * (1 + cubicBeta) / 2
	} else {
		c.wMaxPkts = c.cwndPkts
	}
	c.wLastMaxPkts = c.wMaxPkts

	c.ssthreshPkts = math.Max(c.cwndPkts*cubicBeta, 2)
	c.cwndPkts = initialCwndPkts
	c.phase = PhaseSlowStart
	c.resetEpoch()
}

func (c *Cubic) resetEpoch() {
	c.epochValid = false
}

func (c *Cubic) CwndBytes() uint32 {
	return uint32(c.cwndPkts * MSS)
}

// PacingDelay is always zero: CUBIC has no pacer of its own in this spec
// (§4.5 — pacing is a BBR-only optional mechanism via §4.4).
func (c *Cubic) PacingDelay(uint32) time.Duration {
	return 0
}

// SetInitialCwndBytes overrides the RFC-default initial window with a
// caller-supplied one (spec §6's optional `window_bytes` CLI argument,
// carried over from original_source/part1/Server.py's `sws` parameter).
// A zero argument leaves the RFC default in place.
func (c *Cubic) SetInitialCwndBytes(bytes uint32) {
	if bytes == 0 {
		return
	}
	pkts := float64(bytes) / MSS
	if pkts < 1 {
		pkts = 1
	}
	c.cwndPkts = pkts
}

// Phase returns the current phase, for tests and metrics.
func (c *Cubic) Phase() Phase { return c.phase }

// SSThreshBytes returns the slow-start threshold in bytes.
func (c *Cubic) SSThreshBytes() uint32 {
	return uint32(c.ssthreshPkts * MSS)
}

func cube(x float64) float64 { return x * x * x }
