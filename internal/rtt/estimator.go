// Package rtt implements smoothed round-trip-time estimation and the
// bounded retransmission timeout derived from it, per RFC 6298 (the same
// α/β constants the teacher's send buffer used inline).
package rtt

import "time"

const (
	alpha = 0.125 // srtt weight, α
	beta  = 0.25  // rttvar weight, β

	// MinRTO and MaxRTO bound the derived RTO (spec §4.2).
	MinRTO = 200 * time.Millisecond
	MaxRTO = 3 * time.Second

	// initialRTO seeds rto before the first sample arrives.
	initialRTO = 1 * time.Second
)

// Estimator tracks smoothed RTT, RTT variance, and the derived RTO.
// It is not safe for concurrent use; callers serialize access the same
// way they serialize the rest of the sender state (spec §5).
type Estimator struct {
	srtt   time.Duration
	rttvar time.Duration
	rto    time.Duration
	seeded bool
}

// New returns an Estimator seeded with the default RTO and no samples.
func New() *Estimator {
	return &Estimator{rto: initialRTO}
}

// Sample feeds one RTT measurement into the estimator. Per Karn's rule
// (§4.2), callers MUST NOT call Sample for a segment that was
// retransmitted — only clean, single-send/single-ack pairs produce valid
// samples.
func (e *Estimator) Sample(sample time.Duration) {
	if !e.seeded {
		e.srtt = sample
		e.rttvar = sample / 2
		e.seeded = true
	} else {
		delta := e.srtt - sample
		if delta < 0 {
			delta = -delta
		}
		e.rttvar = time.Duration((1-beta)*float64(e.rttvar) + beta*float64(delta))
		e.srtt = time.Duration((1-alpha)*float64(e.srtt) + alpha*float64(sample))
	}

	e.rto = clamp(e.srtt+4*e.rttvar, MinRTO, MaxRTO)
}

// BackOff doubles the RTO after a retransmission timer expiry
// (exponential backoff, §4.2/§4.4). It is reset to the srtt-derived value
// on the next successful sample.
func (e *Estimator) BackOff() {
	e.rto = clamp(2*e.rto, MinRTO, MaxRTO)
}

// RTO returns the current retransmission timeout.
func (e *Estimator) RTO() time.Duration {
	return e.rto
}

// SRTT returns the current smoothed RTT. Zero until the first sample.
func (e *Estimator) SRTT() time.Duration {
	return e.srtt
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
