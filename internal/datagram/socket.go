// Package datagram wraps a UDP socket behind the send_datagram/recv_datagram
// abstraction the session controller is specified against (spec §6),
// grounded on the teacher's internal/quantum/transport.Conn but trimmed to
// the narrower interface: no framed Packet type, no protocol-specific
// header parsing — callers hand it raw wire-encoded frames.
package datagram

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const (
	// ReadBufferBytes is large enough to hold one full frame (20-byte
	// header + MSS payload) with headroom.
	ReadBufferBytes = 64 * 1024

	// DefaultSocketBufferBytes mirrors the teacher's 2MB kernel socket
	// buffer sizing, which matters once the congestion window grows large
	// enough to burst many segments per scheduling tick.
	DefaultSocketBufferBytes = 2 * 1024 * 1024
)

// Socket is a UDP endpoint exposing send_datagram/recv_datagram.
type Socket struct {
	conn    *net.UDPConn
	readBuf []byte
}

// Listen binds a UDP socket at bindAddr ("ip:port") for receiving
// datagrams from any peer (used by both the sender, which learns its
// peer from the first inbound request, and the receiver's reply path).
func Listen(bindAddr string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("datagram: resolve %q: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("datagram: listen %q: %w", bindAddr, err)
	}
	if err := conn.SetReadBuffer(DefaultSocketBufferBytes); err != nil {
		conn.Close()
		return nil, fmt.Errorf("datagram: set read buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(DefaultSocketBufferBytes); err != nil {
		conn.Close()
		return nil, fmt.Errorf("datagram: set write buffer: %w", err)
	}
	return &Socket{conn: conn, readBuf: make([]byte, ReadBufferBytes)}, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// SendDatagram writes payload to peer.
func (s *Socket) SendDatagram(payload []byte, peer *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(payload, peer)
	if err != nil {
		return fmt.Errorf("datagram: send to %s: %w", peer, err)
	}
	return nil
}

// ErrTimeout is returned by RecvDatagram when deadline elapses with no
// datagram arriving.
var ErrTimeout = errors.New("datagram: recv timeout")

// RecvDatagram blocks until a datagram arrives or deadline passes,
// returning the payload and sender address. A zero deadline means no
// timeout (block indefinitely).
func (s *Socket) RecvDatagram(deadline time.Time) ([]byte, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("datagram: set read deadline: %w", err)
	}
	n, addr, err := s.conn.ReadFromUDP(s.readBuf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, ErrTimeout
		}
		return nil, nil, fmt.Errorf("datagram: recv: %w", err)
	}
	out := make([]byte, n)
	copy(out, s.readBuf[:n])
	return out, addr, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
