// Package session implements the sender and receiver session controllers
// (spec C6): the start handshake, the cooperative send/ACK loop, and the
// EOF/EOF-ACK teardown handshake. The scheduling model follows the
// single-threaded cooperative form spec §5 prefers, grounded on the
// teacher's connection.go goroutine split but collapsed to one loop
// driven by datagram.Socket.RecvDatagram(deadline), per the decision
// recorded in the grounding ledger.
package session

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/aetherflow/quantumcp/internal/congestion"
	"github.com/aetherflow/quantumcp/internal/datagram"
	"github.com/aetherflow/quantumcp/internal/metrics"
	"github.com/aetherflow/quantumcp/internal/rtt"
	"github.com/aetherflow/quantumcp/internal/sendwindow"
	"github.com/aetherflow/quantumcp/internal/wire"
	"github.com/aetherflow/quantumcp/pkg/guuid"
)

const (
	// HandshakeTimeout bounds how long the sender waits for the receiver's
	// initial request before giving up (spec §4.6 describes the
	// receiver's 2s/5-retry loop; the sender simply blocks on its socket,
	// but we still bound it so a misconfigured sender doesn't hang
	// forever when run interactively).
	HandshakeTimeout = 30 * time.Second

	// EOFRetries and EOFInterval bound the teardown handshake (spec §6).
	EOFRetries  = 10
	EOFInterval = 200 * time.Millisecond
)

// Source supplies the bytes to transfer, chunked into MSS-sized segments.
type Source interface {
	// Segment returns the payload for sequence seq, or ok=false if seq is
	// past the end of the source (the send loop fetches each payload
	// through it as it dispatches; Source implementations are expected to
	// be backed by an in-memory buffer per spec §5's "small files" case).
	Segment(seq uint32) (payload []byte, ok bool)
	// TotalSegments returns the number of MSS-sized chunks the source
	// splits into.
	TotalSegments() uint32
}

// sliceSource is the in-memory Source backing most sessions (spec §5:
// "source file is read once into memory (small files)").
type sliceSource struct {
	data []byte
}

// NewSliceSource chunks data into MSS-byte segments.
func NewSliceSource(data []byte) Source {
	return &sliceSource{data: data}
}

func (s *sliceSource) TotalSegments() uint32 {
	n := len(s.data)
	segs := n / wire.MSS
	if n%wire.MSS != 0 {
		segs++
	}
	if segs == 0 {
		segs = 1 // an empty file is still one zero-length segment
	}
	return uint32(segs)
}

func (s *sliceSource) Segment(seq uint32) ([]byte, bool) {
	start := int(seq) * wire.MSS
	if start > len(s.data) {
		return nil, false
	}
	end := start + wire.MSS
	if end > len(s.data) {
		end = len(s.data)
	}
	if seq >= s.TotalSegments() {
		return nil, false
	}
	return s.data[start:end], true
}

// SenderConfig configures a sending session.
type SenderConfig struct {
	BindAddr    string
	WindowBytes uint32 // optional initial cwnd seed (spec §6 window_bytes arg); 0 keeps the variant's default
	Variant     string // "cubic" (default) or "bbr"
	Source      Source
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// RunSender executes one full send session: waits for the receiver's
// request, streams every segment, and completes the EOF/EOF-ACK
// teardown. It returns nil only on a clean teardown.
func RunSender(cfg SenderConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID, err := guuid.New()
	if err != nil {
		return fmt.Errorf("session: generate session id: %w", err)
	}
	logger = logger.With(zap.String("session_id", sessionID.String()))

	sock, err := datagram.Listen(cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("session: sender bind: %w", err)
	}
	defer sock.Close()

	logger.Info("waiting for receiver handshake", zap.String("bind_addr", cfg.BindAddr))
	peer, err := awaitHandshakeRequest(sock, HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("session: handshake: %w", err)
	}
	logger.Info("receiver connected", zap.String("peer", peer.String()))

	var cc congestion.Controller
	if cfg.Variant == "bbr" {
		b := congestion.NewBBR(0)
		b.SetInitialCwndBytes(cfg.WindowBytes)
		cc = b
	} else {
		c := congestion.NewCubic()
		c.SetInitialCwndBytes(cfg.WindowBytes)
		cc = c
	}

	est := rtt.New()
	win := sendwindow.New(est, cc)
	total := cfg.Source.TotalSegments()
	win.Start(total)

	if err := sendLoop(sock, peer, win, cfg.Source, est, cc, logger, cfg.Metrics); err != nil {
		return err
	}

	return teardown(sock, peer, EOFRetries, EOFInterval, logger, cfg.Metrics)
}

func awaitHandshakeRequest(sock *datagram.Socket, timeout time.Duration) (*net.UDPAddr, error) {
	deadline := time.Now().Add(timeout)
	for {
		payload, peer, err := sock.RecvDatagram(deadline)
		if err != nil {
			return nil, err
		}
		if wire.IsRequest(payload) {
			return peer, nil
		}
		// Any other datagram before the handshake is noise; keep waiting.
	}
}

func sendLoop(sock *datagram.Socket, peer *net.UDPAddr, win *sendwindow.Window, src Source, est *rtt.Estimator, cc congestion.Controller, logger *zap.Logger, m *metrics.Metrics) error {
	now := time.Now()

	for !win.Done() {
		// 1. ACK ingestion (spec §5: ACK handling precedes dispatch).
		deadline := now.Add(nextWake(win, est, now))
		payload, _, err := sock.RecvDatagram(deadline)
		now = time.Now()
		if err == nil {
			ack, decErr := wire.DecodeAck(payload)
			if decErr == nil && !ack.IsEOFAck {
				retransmits := win.OnAck(ack.CumAck, ack.SACKRanges, now)
				for _, r := range retransmits {
					frame := wire.EncodeData(r.Seq, r.Payload)
					if sendErr := sock.SendDatagram(frame, peer); sendErr != nil {
						logger.Warn("fast retransmit send failed", zap.Error(sendErr))
					}
					if m != nil {
						m.SegmentsSent.Inc()
						m.SegmentsRetransFast.Inc()
						m.BytesSent.Add(float64(len(r.Payload)))
					}
				}
			}
		} else if err != datagram.ErrTimeout {
			return fmt.Errorf("session: sender recv: %w", err)
		}

		// 2. Timer check (spec §5: after ACK handling, before dispatch).
		if rtx, fired := win.OnTick(now); fired {
			frame := wire.EncodeData(rtx.Seq, rtx.Payload)
			if sendErr := sock.SendDatagram(frame, peer); sendErr != nil {
				logger.Warn("timeout retransmit send failed", zap.Error(sendErr))
			}
			if m != nil {
				m.SegmentsSent.Inc()
				m.SegmentsRetransTimeout.Inc()
				m.BytesSent.Add(float64(len(rtx.Payload)))
			}
		}

		// 3. Dispatch new segments while cwnd and pacing allow.
		for {
			seq := win.NextSeq()
			payload, ok := src.Segment(seq)
			if !ok {
				break
			}
			if !win.TrySend(len(payload), now) {
				break
			}
			frame := wire.EncodeData(seq, payload)
			if sendErr := sock.SendDatagram(frame, peer); sendErr != nil {
				return fmt.Errorf("session: sender send: %w", sendErr)
			}
			win.MarkSent(seq, payload, now)
			if m != nil {
				m.SegmentsSent.Inc()
				m.BytesSent.Add(float64(len(payload)))
				m.CwndBytes.Set(float64(cc.CwndBytes()))
				m.RTOMillis.Set(float64(est.RTO().Milliseconds()))
				m.SRTTMillis.Set(float64(est.SRTT().Milliseconds()))
			}
			if delay := cc.PacingDelay(uint32(len(payload))); delay > 0 {
				time.Sleep(delay)
			}
		}
	}

	return nil
}

// nextWake bounds how long the sender blocks in recv_datagram: the
// shorter of a fixed 20ms poll interval and the current RTO. It does not
// compute the base timer's remaining time; OnTick checks expiry after
// each wake.
func nextWake(win *sendwindow.Window, est *rtt.Estimator, now time.Time) time.Duration {
	const pollInterval = 20 * time.Millisecond
	if pollInterval < est.RTO() {
		return pollInterval
	}
	return est.RTO()
}

func teardown(sock *datagram.Socket, peer *net.UDPAddr, retries int, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) error {
	frame := wire.EncodeEOF()
	for attempt := 0; attempt < retries; attempt++ {
		if err := sock.SendDatagram(frame, peer); err != nil {
			return fmt.Errorf("session: send EOF: %w", err)
		}

		deadline := time.Now().Add(interval)
		for time.Now().Before(deadline) {
			payload, _, err := sock.RecvDatagram(deadline)
			if err != nil {
				if err == datagram.ErrTimeout {
					break
				}
				return fmt.Errorf("session: teardown recv: %w", err)
			}
			ack, decErr := wire.DecodeAck(payload)
			if decErr == nil && ack.IsEOFAck {
				logger.Info("teardown complete", zap.Int("eof_attempts", attempt+1))
				if m != nil {
					m.SessionsTotal.WithLabelValues("completed").Inc()
				}
				return nil
			}
		}
	}
	if m != nil {
		m.SessionsTotal.WithLabelValues("failed").Inc()
	}
	return fmt.Errorf("session: no EOF-ACK after %d retries", retries)
}
