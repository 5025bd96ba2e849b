package session

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aetherflow/quantumcp/internal/datagram"
	"github.com/aetherflow/quantumcp/internal/metrics"
	"github.com/aetherflow/quantumcp/internal/reassembly"
	"github.com/aetherflow/quantumcp/internal/wire"
	"github.com/aetherflow/quantumcp/pkg/guuid"
)

const (
	// HandshakeRequestRetries and HandshakeRequestTimeout bound the
	// receiver's start handshake (spec §4.6).
	HandshakeRequestRetries = 5
	HandshakeRequestTimeout = 2 * time.Second

	// AckRateLimit bounds ACK emission during bulk in-order arrival; every
	// out-of-order arrival and every EOF still emits immediately (spec §4.3).
	AckRateLimit = 10 * time.Millisecond

	// RecvInactivityTimeout bounds how long the receiver waits with no
	// traffic at all, before or after file_complete, before giving up with
	// an error (spec §4.6/§6).
	RecvInactivityTimeout = 15 * time.Second

	// eofTerminateCount is the number of EOF frames the receiver will
	// acknowledge before terminating, provided pending is empty by then,
	// per spec §4.6(a).
	eofTerminateCount = 3
)

// RequestByte is the one-byte session-request payload the receiver sends
// to initiate the handshake (spec §4.6/§6 permit 'G' or 0x01; this
// implementation standardizes on 'G').
const RequestByte = 'G'

// ReceiverConfig configures a receiving session.
type ReceiverConfig struct {
	ServerAddr string // the sender's address, "ip:port"
	Sink       reassembly.Sink
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// RunReceiver executes one full receive session: performs the start
// handshake, reassembles the incoming stream to Sink, and completes the
// EOF/EOF-ACK teardown. Returns nil only once EOF has been seen and the
// pending set is empty (on the third EOF, or on the first idle poll after
// EOF); RecvInactivityTimeout without traffic ends the session with an
// error.
func RunReceiver(cfg ReceiverConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID, err := guuid.New()
	if err != nil {
		return fmt.Errorf("session: generate session id: %w", err)
	}
	logger = logger.With(zap.String("session_id", sessionID.String()))

	server, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("session: resolve server addr: %w", err)
	}

	sock, err := datagram.Listen(":0")
	if err != nil {
		return fmt.Errorf("session: receiver bind: %w", err)
	}
	defer sock.Close()

	firstFrame, err := performHandshake(sock, server, logger)
	if err != nil {
		return fmt.Errorf("session: handshake: %w", err)
	}

	return recvLoop(sock, server, cfg.Sink, firstFrame, logger, cfg.Metrics)
}

// performHandshake sends the session request and waits for the sender's
// first datagram, which per spec §4.6 serves as the connection
// acknowledgment. That datagram is real data (or, for a zero-length
// source, the EOF frame) — the caller must feed it into the reassembly
// buffer rather than discard it, or the sender's initial cwnd=1*MSS
// leaves it stalled with nothing acked until its base timer expires.
func performHandshake(sock *datagram.Socket, server *net.UDPAddr, logger *zap.Logger) (wire.DataFrame, error) {
	req := []byte{RequestByte}
	for attempt := 0; attempt < HandshakeRequestRetries; attempt++ {
		if err := sock.SendDatagram(req, server); err != nil {
			return wire.DataFrame{}, fmt.Errorf("send request: %w", err)
		}
		logger.Info("sent session request", zap.Int("attempt", attempt+1))

		deadline := time.Now().Add(HandshakeRequestTimeout)
		payload, addr, err := sock.RecvDatagram(deadline)
		if err == nil {
			if frame, decErr := wire.DecodeData(payload); decErr == nil {
				logger.Info("handshake complete", zap.String("sender", addr.String()))
				return frame, nil
			}
		} else if err != datagram.ErrTimeout {
			return wire.DataFrame{}, err
		}
	}
	return wire.DataFrame{}, fmt.Errorf("no response after %d attempts", HandshakeRequestRetries)
}

func recvLoop(sock *datagram.Socket, server *net.UDPAddr, sink reassembly.Sink, firstFrame wire.DataFrame, logger *zap.Logger, m *metrics.Metrics) error {
	buf := reassembly.New(sink)
	// ackLimiter throttles in-order ACK emission to one per AckRateLimit
	// (spec §4.3); out-of-order arrivals bypass it via forceAck, and EOF is
	// answered with an EOF-ACK without consulting it.
	ackLimiter := rate.NewLimiter(rate.Every(AckRateLimit), 1)
	eofCount := 0
	lastActivity := time.Now()

	// The handshake's confirming datagram is live data (or EOF), not
	// noise to discard; deliver it exactly like every later frame before
	// entering the poll loop below.
	terminate, err := deliverFrame(firstFrame, buf, sock, server, &eofCount, ackLimiter, true, m)
	if err != nil {
		return err
	}
	if terminate {
		logger.Info("received eofTerminateCount EOF frames, pending empty, terminating")
		return nil
	}

	for {
		// Poll at a short, fixed granularity (see pollInterval) rather
		// than blocking for the
		// full inactivity bound: that lets the receiver notice
		// file_complete quickly instead of always paying the full
		// RecvInactivityTimeout on a clean, loss-free teardown.
		deadline := time.Now().Add(pollInterval(buf.FileComplete()))

		payload, _, err := sock.RecvDatagram(deadline)
		if err != nil {
			if err == datagram.ErrTimeout {
				if buf.FileComplete() && buf.Empty() {
					logger.Info("receiver idle after EOF, terminating")
					return nil
				}
				if time.Since(lastActivity) >= RecvInactivityTimeout {
					return fmt.Errorf("session: receiver inactivity timeout with data still pending")
				}
				continue
			}
			return fmt.Errorf("session: receiver recv: %w", err)
		}
		lastActivity = time.Now()

		frame, decErr := wire.DecodeData(payload)
		if decErr != nil {
			logger.Debug("dropped malformed frame", zap.Error(decErr))
			continue
		}

		terminate, err := deliverFrame(frame, buf, sock, server, &eofCount, ackLimiter, false, m)
		if err != nil {
			return err
		}
		if terminate {
			logger.Info("received eofTerminateCount EOF frames, pending empty, terminating")
			return nil
		}
	}
}

// deliverFrame applies one decoded data/EOF frame to buf and sends the
// resulting ACK/EOF-ACK (spec §4.3/§4.6). force bypasses the ACK rate
// limiter, used for the handshake's confirming frame and for any
// out-of-order arrival; every EOF always acks immediately regardless.
// Returns true if the session should terminate (spec §4.6(a)).
func deliverFrame(frame wire.DataFrame, buf *reassembly.Buffer, sock *datagram.Socket, server *net.UDPAddr, eofCount *int, ackLimiter *rate.Limiter, force bool, m *metrics.Metrics) (bool, error) {
	if frame.IsEOF {
		buf.OnEOF()
		*eofCount++
		if err := sendEOFAck(sock, server); err != nil {
			return false, err
		}
		return *eofCount >= eofTerminateCount && buf.Empty(), nil
	}

	before := buf.ExpectedSeq()
	if err := buf.OnData(frame.Seq, frame.Payload); err != nil {
		return false, fmt.Errorf("session: sink write: %w", err)
	}

	forceAck := force || frame.Seq != before
	if m != nil {
		outcome := "in_order"
		if frame.Seq < before {
			outcome = "duplicate"
		} else if frame.Seq > before {
			outcome = "out_of_order"
		}
		m.SegmentsReceived.WithLabelValues(outcome).Inc()
		m.BytesReceived.Add(float64(len(frame.Payload)))
	}

	if forceAck || ackLimiter.Allow() {
		if err := sendAck(sock, server, buf); err != nil {
			return false, err
		}
	}
	return false, nil
}

// pollInterval is the granularity the receiver polls at: short once the
// file is complete (so teardown notices idleness quickly), longer
// beforehand to avoid needless wakeups during a healthy transfer.
func pollInterval(fileComplete bool) time.Duration {
	if fileComplete {
		return 300 * time.Millisecond
	}
	return 2 * time.Second
}

func sendAck(sock *datagram.Socket, server *net.UDPAddr, buf *reassembly.Buffer) error {
	cumAck, ranges := buf.EmitAck()
	frame, err := wire.EncodeAck(cumAck, ranges)
	if err != nil {
		return fmt.Errorf("session: encode ack: %w", err)
	}
	if err := sock.SendDatagram(frame, server); err != nil {
		return fmt.Errorf("session: send ack: %w", err)
	}
	return nil
}

func sendEOFAck(sock *datagram.Socket, server *net.UDPAddr) error {
	if err := sock.SendDatagram(wire.EncodeEOFAck(), server); err != nil {
		return fmt.Errorf("session: send EOF-ACK: %w", err)
	}
	return nil
}
