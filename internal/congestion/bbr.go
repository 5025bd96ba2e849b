package congestion

import "time"

// BBRState is BBR's top-level mode (spec §4.5.2).
type BBRState int

const (
	BBRStartup BBRState = iota
	BBRDrain
	BBRProbeBW
	BBRProbeRTT
)

func (s BBRState) String() string {
	switch s {
	case BBRStartup:
		return "STARTUP"
	case BBRDrain:
		return "DRAIN"
	case BBRProbeBW:
		return "PROBE_BW"
	case BBRProbeRTT:
		return "PROBE_RTT"
	default:
		return "UNKNOWN"
	}
}

const (
	startupGain  = 2.77
	drainGain    = 1.0 / startupGain
	probeBWCycle = 8

	probeRTTDuration = 200 * time.Millisecond
	probeRTTInterval = 10 * time.Second

	minPipeCwndPkts = 4

	fullBandwidthThreshold = 1.25
)

var probeBWGains = [probeBWCycle]float64{1.25, 0.75, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}

type bandwidthSample struct {
	bandwidth uint64 // bytes/sec
	timestamp time.Time
}

// BBR implements the STARTUP -> DRAIN -> PROBE_BW -> PROBE_RTT state
// machine (spec §4.5.2), grounded on the teacher's internal/quantum/bbr
// package almost unchanged, adapted to the shared Controller interface.
type BBR struct {
	state        BBRState
	stateEntryAt time.Time

	btlBw       uint64 // bottleneck bandwidth estimate, bytes/sec
	rtProp      time.Duration
	rtPropStamp time.Time

	pacingRate uint64 // bytes/sec
	cwndBytes  uint32
	pacingGain float64
	cwndGain   float64

	cycleIndex int
	cycleStamp time.Time

	samples        []bandwidthSample
	lastSampleTime time.Time

	fullBandwidthReached bool
	fullBandwidthRounds  int
	lastBtlBw            uint64

	deliveredBytes uint64
	lastDelivered  time.Time

	minRTT time.Duration
}

// NewBBR returns a BBR controller seeded with minRTT (a hint used until
// the first real sample arrives; 0 is fine and simply means "unknown").
func NewBBR(minRTT time.Duration) *BBR {
	now := time.Time{}
	b := &BBR{
		state:        BBRStartup,
		stateEntryAt: now,
		rtProp:       minRTT,
		rtPropStamp:  now,
		pacingGain:   startupGain,
		cwndGain:     startupGain,
		samples:      make([]bandwidthSample, 0, 10),
		minRTT:       minRTT,
		lastDelivered: now,
	}
	b.cwndBytes = minPipeCwndPkts * MSS
	return b
}

func (b *BBR) OnNewAck(bytesAcked uint32, cumAck uint32, now time.Time) {
	// BBR's window and pacing are driven entirely by the bandwidth/RTT
	// sample model (spec §4.5.2); unlike CUBIC it has no fast-recovery
	// phase keyed off a recovery point, so cumAck is unused here.
	_ = cumAck
	b.deliveredBytes += uint64(bytesAcked)
	b.updateBandwidth(bytesAcked, now)
	b.updateState(now)
	b.updatePacingAndWindow()
}

func (b *BBR) OnRTTSample(sample time.Duration, now time.Time) {
	if b.rtProp == 0 || sample < b.rtProp || now.Sub(b.rtPropStamp) > probeRTTInterval {
		b.rtProp = sample
		b.rtPropStamp = now
	}
}

// OnDupAckTriple is a no-op: BBR does not react to duplicate ACKs — loss
// is absorbed into the bandwidth/delivery-rate model instead (spec §4.5.2
// describes only bandwidth/RTT-sample-driven transitions).
func (b *BBR) OnDupAckTriple(uint32, time.Time) {}

// OnTimeout is also a no-op for the same reason; BBR does not cut cwnd on
// loss signals the way CUBIC does.
func (b *BBR) OnTimeout(time.Time) {}

func (b *BBR) updateBandwidth(bytesAcked uint32, now time.Time) {
	if b.lastSampleTime.IsZero() {
		b.lastSampleTime = now
		return
	}
	elapsed := now.Sub(b.lastSampleTime)
	if elapsed <= 0 {
		return
	}

	sampleBw := uint64(float64(bytesAcked) / elapsed.Seconds())
	b.samples = append(b.samples, bandwidthSample{bandwidth: sampleBw, timestamp: now})
	if len(b.samples) > 10 {
		b.samples = b.samples[1:]
	}
	b.lastSampleTime = now

	var maxBw uint64
	for _, s := range b.samples {
		if s.bandwidth > maxBw {
			maxBw = s.bandwidth
		}
	}
	b.btlBw = maxBw

	if b.state == BBRStartup {
		b.checkFullBandwidth()
	}
}

func (b *BBR) checkFullBandwidth() {
	if b.btlBw >= b.lastBtlBw*uint64(fullBandwidthThreshold*100)/100 {
		b.lastBtlBw = b.btlBw
		b.fullBandwidthRounds = 0
		return
	}
	b.fullBandwidthRounds++
	if b.fullBandwidthRounds >= 3 {
		b.fullBandwidthReached = true
	}
}

func (b *BBR) updateState(now time.Time) {
	switch b.state {
	case BBRStartup:
		if b.fullBandwidthReached {
			b.enterDrain(now)
		}
	case BBRDrain:
		if b.cwndBytes <= b.bdp() {
			b.enterProbeBW(now)
		}
	case BBRProbeBW:
		if !b.rtPropStamp.IsZero() && now.Sub(b.rtPropStamp) > probeRTTInterval {
			b.enterProbeRTT(now)
		} else {
			b.advanceProbeBWCycle(now)
		}
	case BBRProbeRTT:
		if now.Sub(b.stateEntryAt) >= probeRTTDuration {
			b.enterProbeBW(now)
		}
	}
}

func (b *BBR) enterDrain(now time.Time) {
	b.state = BBRDrain
	b.stateEntryAt = now
	b.pacingGain = drainGain
	b.cwndGain = 2.0
}

func (b *BBR) enterProbeBW(now time.Time) {
	b.state = BBRProbeBW
	b.stateEntryAt = now
	b.cycleIndex = 0
	b.cycleStamp = now
	b.pacingGain = probeBWGains[0]
	b.cwndGain = 2.0
}

func (b *BBR) enterProbeRTT(now time.Time) {
	b.state = BBRProbeRTT
	b.stateEntryAt = now
	b.pacingGain = 1.0
	b.cwndGain = 1.0
}

func (b *BBR) advanceProbeBWCycle(now time.Time) {
	if b.rtProp > 0 && now.Sub(b.cycleStamp) > b.rtProp {
		b.cycleIndex = (b.cycleIndex + 1) % probeBWCycle
		b.cycleStamp = now
		b.pacingGain = probeBWGains[b.cycleIndex]
	}
}

func (b *BBR) updatePacingAndWindow() {
	if b.btlBw > 0 {
		b.pacingRate = uint64(float64(b.btlBw) * b.pacingGain)
	}

	cwnd := uint32(float64(b.bdp()) * b.cwndGain)
	minCwnd := uint32(minPipeCwndPkts * MSS)
	if cwnd < minCwnd {
		cwnd = minCwnd
	}
	b.cwndBytes = cwnd
}

func (b *BBR) bdp() uint32 {
	if b.btlBw == 0 || b.rtProp == 0 {
		return minPipeCwndPkts * MSS
	}
	return uint32(float64(b.btlBw) * b.rtProp.Seconds())
}

func (b *BBR) CwndBytes() uint32 {
	return b.cwndBytes
}

func (b *BBR) PacingDelay(segmentSize uint32) time.Duration {
	if b.pacingRate == 0 {
		return 0
	}
	return time.Duration(float64(segmentSize) / float64(b.pacingRate) * float64(time.Second))
}

// SetInitialCwndBytes overrides the default pipe-sized initial window
// with a caller-supplied one (spec §6's optional `window_bytes` CLI
// argument). A zero argument leaves the default in place.
func (b *BBR) SetInitialCwndBytes(bytes uint32) {
	if bytes == 0 {
		return
	}
	minCwnd := uint32(minPipeCwndPkts * MSS)
	if bytes < minCwnd {
		bytes = minCwnd
	}
	b.cwndBytes = bytes
}

// State returns the current BBR mode, for tests and metrics.
func (b *BBR) State() BBRState { return b.state }

// Bandwidth returns the estimated bottleneck bandwidth in bytes/sec.
func (b *BBR) Bandwidth() uint64 { return b.btlBw }

// RTProp returns the current minimum-RTT estimate.
func (b *BBR) RTProp() time.Duration { return b.rtProp }
