// Package congestion implements the CUBIC (primary) and BBR (alternative)
// congestion-control state machines driving the sender's window (spec C5,
// §4.5). Both variants share the Controller interface so the retransmission
// engine (internal/sendwindow) never type-switches on which is active.
package congestion

import "time"

// MSS is the segment size every variant's constants are scaled against.
const MSS = 1180

// Controller is the interface internal/sendwindow drives. A session picks
// one variant at start (spec §4.5) and never switches mid-session.
type Controller interface {
	// OnNewAck is called when cum_ack advances past base, once per ACK,
	// with the number of bytes newly acknowledged and the new cumulative
	// ack value itself — CUBIC needs the latter to tell whether a mid
	// fast-recovery ACK has passed the recovery point recorded at
	// OnDupAckTriple time (spec §4.5.1).
	OnNewAck(bytesAcked uint32, cumAck uint32, now time.Time)

	// OnDupAckTriple is called exactly once per fast-retransmit event (the
	// third duplicate cumulative ACK for the same base).
	OnDupAckTriple(nextSeq uint32, now time.Time)

	// OnTimeout is called on every base-timer expiry.
	OnTimeout(now time.Time)

	// OnRTTSample feeds a clean (non-retransmitted) RTT sample; BBR uses
	// it for its rtProp (minimum RTT) estimate, CUBIC ignores it (it reacts
	// only to ACK/loss events).
	OnRTTSample(rtt time.Duration, now time.Time)

	// CwndBytes returns the current congestion window in bytes — the
	// budget internal/sendwindow's try_send checks in-flight bytes against.
	CwndBytes() uint32

	// PacingDelay returns how long to wait before the next send of a
	// segment this size, or 0 for "send immediately" (CUBIC has no
	// pacer; BBR paces at btlBw*pacingGain).
	PacingDelay(segmentSize uint32) time.Duration
}
