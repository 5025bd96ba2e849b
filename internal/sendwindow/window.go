// Package sendwindow implements the sender's sliding-window retransmission
// engine (spec C4): window bookkeeping, cumulative + SACK ACK ingestion,
// duplicate-ACK fast retransmit, and the single-base-timer timeout policy,
// grounded on the teacher's internal/quantum/reliability.SendBuffer and
// generalized to the frozen wire/congestion/rtt packages.
package sendwindow

import (
	"time"

	"github.com/aetherflow/quantumcp/internal/congestion"
	"github.com/aetherflow/quantumcp/internal/rtt"
	"github.com/aetherflow/quantumcp/internal/wire"
)

// FastRetransmitThreshold is the number of duplicate cumulative ACKs on
// the same base that trigger a fast retransmit (spec §4.4).
const FastRetransmitThreshold = 3

// segment is one outstanding (unacknowledged) or acked-by-SACK entry in
// the window.
type segment struct {
	payload      []byte
	firstSend    time.Time
	lastSend     time.Time
	retransCount int
	acked        bool // acknowledged individually via SACK, not yet at base
}

// Window manages the sender's in-flight segments for one session. It is
// not safe for concurrent use; the session controller serializes access
// (spec §5's cooperative single-threaded loop).
type Window struct {
	segments map[uint32]*segment

	base    uint32
	nextSeq uint32
	total   uint32 // total_segments, set by start()

	dupAckCounter int
	lastAckBase   uint32
	haveLastAck   bool

	baseTimerArmed bool
	baseSendTime   time.Time

	rttEstimator *rtt.Estimator
	cc           congestion.Controller

	sent        uint64
	fastRetrans uint64
	timeoutRtx  uint64
}

// New returns a Window driven by the given RTT estimator and congestion
// controller. Both are owned by the caller but mutated only by the
// Window from this point on.
func New(est *rtt.Estimator, cc congestion.Controller) *Window {
	return &Window{
		segments:     make(map[uint32]*segment),
		rttEstimator: est,
		cc:           cc,
	}
}

// Start begins a session for totalSegments segments (seq 0..totalSegments-1).
func (w *Window) Start(totalSegments uint32) {
	w.base = 0
	w.nextSeq = 0
	w.total = totalSegments
}

// Done reports whether every segment has been sent and cumulatively acked.
func (w *Window) Done() bool {
	return w.base >= w.total
}

// InFlightBytes returns the number of payload bytes currently outstanding
// (sent, not yet cumulatively acknowledged), the budget try_send checks
// against the congestion window.
func (w *Window) InFlightBytes() uint32 {
	var n uint32
	for seq := w.base; seq < w.nextSeq; seq++ {
		if s, ok := w.segments[seq]; ok {
			n += uint32(len(s.payload))
		}
	}
	return n
}

// TrySend reports whether the next unsent segment (seq NextSeq, with a
// payload of payloadLen bytes from the caller's chunker) fits in the
// congestion window. The caller is responsible for actually transmitting
// the frame and then calling MarkSent. Returns false if there is no
// budget or no more segments to originate.
func (w *Window) TrySend(payloadLen int, now time.Time) bool {
	if w.nextSeq >= w.total {
		return false
	}
	budget := w.cc.CwndBytes()
	if w.InFlightBytes()+uint32(payloadLen) > budget {
		return false
	}
	return true
}

// NextSeq returns the sequence number that would be assigned to the next
// originated segment.
func (w *Window) NextSeq() uint32 {
	return w.nextSeq
}

// MarkSent records that seq (the value previously returned by NextSeq)
// has just been sent for the first time, with the given payload.
func (w *Window) MarkSent(seq uint32, payload []byte, now time.Time) {
	w.segments[seq] = &segment{
		payload:   append([]byte(nil), payload...),
		firstSend: now,
		lastSend:  now,
	}
	w.nextSeq = seq + 1
	w.sent++
	if !w.baseTimerArmed {
		w.armBaseTimer(now)
	}
}

func (w *Window) armBaseTimer(now time.Time) {
	w.baseTimerArmed = true
	w.baseSendTime = now
}

// OnAck processes an inbound cumulative ACK + SACK ranges (spec §4.4).
// Returns the list of retransmit requests (seq, payload) the caller must
// send immediately (fast retransmit), in ascending seq order.
func (w *Window) OnAck(cumAck uint32, sackRanges []wire.SACKRange, now time.Time) []Retransmit {
	var toRetransmit []Retransmit

	if cumAck > w.base {
		w.applyNewAck(cumAck, now)
		w.dupAckCounter = 0
		w.haveLastAck = true
		w.lastAckBase = cumAck
		if !w.Done() {
			w.armBaseTimer(now)
		} else {
			w.baseTimerArmed = false
		}
	} else if cumAck == w.base {
		if w.haveLastAck && w.lastAckBase == cumAck {
			w.dupAckCounter++
		} else {
			w.dupAckCounter = 1
			w.haveLastAck = true
			w.lastAckBase = cumAck
		}
		if w.dupAckCounter == FastRetransmitThreshold {
			if s, ok := w.segments[w.base]; ok && !s.acked {
				s.retransCount++
				s.lastSend = now
				toRetransmit = append(toRetransmit, Retransmit{Seq: w.base, Payload: s.payload})
				w.fastRetrans++
				w.cc.OnDupAckTriple(w.nextSeq, now)
				w.armBaseTimer(now)
			}
		}
	}

	// SACK ranges mark individually-acked segments above base, closing
	// gaps so later cumulative ACKs can advance base past them in one
	// step when the retransmit arrives.
	for _, r := range sackRanges {
		for seq := r.Start; seq < r.End; seq++ {
			if s, ok := w.segments[seq]; ok && seq >= w.base {
				s.acked = true
			}
		}
	}

	return toRetransmit
}

func (w *Window) applyNewAck(cumAck uint32, now time.Time) {
	var bytesAcked uint32
	for seq := w.base; seq < cumAck; seq++ {
		s, ok := w.segments[seq]
		if !ok {
			continue
		}
		bytesAcked += uint32(len(s.payload))
		// Karn's rule: only sample RTT from segments sent exactly once.
		if s.retransCount == 0 {
			sample := now.Sub(s.firstSend)
			w.rttEstimator.Sample(sample)
			w.cc.OnRTTSample(sample, now)
		}
		delete(w.segments, seq)
	}
	w.base = cumAck
	if bytesAcked > 0 {
		w.cc.OnNewAck(bytesAcked, cumAck, now)
	}
}

// OnTick checks the base timer against the current RTO and, on expiry,
// retransmits base, doubles the RTO, and resets the timer (spec §4.4's
// single-base-timer policy). Returns the retransmit if one fired.
func (w *Window) OnTick(now time.Time) (Retransmit, bool) {
	if !w.baseTimerArmed || w.Done() {
		return Retransmit{}, false
	}
	if now.Sub(w.baseSendTime) <= w.rttEstimator.RTO() {
		return Retransmit{}, false
	}

	s, ok := w.segments[w.base]
	if !ok {
		// base has no outstanding segment (shouldn't happen if invariants
		// hold), just rearm against now to avoid a busy-spin.
		w.armBaseTimer(now)
		return Retransmit{}, false
	}

	s.retransCount++
	s.lastSend = now
	w.timeoutRtx++
	w.cc.OnTimeout(now)
	w.rttEstimator.BackOff()
	w.armBaseTimer(now)

	return Retransmit{Seq: w.base, Payload: s.payload}, true
}

// Retransmit is a (seq, payload) pair the caller must re-send on the wire.
type Retransmit struct {
	Seq     uint32
	Payload []byte
}

// Base returns the current send-base (lowest unacknowledged sequence).
func (w *Window) Base() uint32 { return w.base }

// Stats exposes counters for logging/metrics.
type Stats struct {
	Sent        uint64
	FastRetrans uint64
	TimeoutRtx  uint64
	InFlight    int
}

func (w *Window) Stats() Stats {
	return Stats{
		Sent:        w.sent,
		FastRetrans: w.fastRetrans,
		TimeoutRtx:  w.timeoutRtx,
		InFlight:    len(w.segments),
	}
}
