package session

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/aetherflow/quantumcp/internal/wire"
)

func TestSliceSourceChunksAtMSS(t *testing.T) {
	data := make([]byte, wire.MSS+5)
	src := NewSliceSource(data)
	if got, want := src.TotalSegments(), uint32(2); got != want {
		t.Fatalf("TotalSegments = %d, want %d", got, want)
	}
	first, ok := src.Segment(0)
	if !ok || len(first) != wire.MSS {
		t.Fatalf("Segment(0) len = %d ok=%v, want %d true", len(first), ok, wire.MSS)
	}
	second, ok := src.Segment(1)
	if !ok || len(second) != 5 {
		t.Fatalf("Segment(1) len = %d ok=%v, want 5 true", len(second), ok)
	}
	if _, ok := src.Segment(2); ok {
		t.Fatal("Segment(2) ok = true, want false past end")
	}
}

func TestSliceSourceEmptyFileIsOneZeroSegment(t *testing.T) {
	src := NewSliceSource(nil)
	if got := src.TotalSegments(); got != 1 {
		t.Fatalf("TotalSegments = %d, want 1 for empty file", got)
	}
	seg, ok := src.Segment(0)
	if !ok || len(seg) != 0 {
		t.Fatalf("Segment(0) = %v ok=%v, want empty slice true", seg, ok)
	}
}

// memSink collects writes in order for verifying end-to-end delivery.
type memSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *memSink) Write(seq uint32, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(payload)
	return nil
}

func (s *memSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// TestSendReceiveRoundTripOverLoopback exercises the full handshake, send
// loop, reassembly, and teardown across two real UDP sockets with no
// simulated loss, verifying the sink receives the source bytes exactly.
func TestSendReceiveRoundTripOverLoopback(t *testing.T) {
	senderConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("reserve sender port: %v", err)
	}
	senderAddr := senderConn.LocalAddr().String()
	senderConn.Close()

	payload := bytes.Repeat([]byte("hello-quantumcp-"), 200) // a few segments worth
	sink := &memSink{}

	errCh := make(chan error, 2)
	go func() {
		errCh <- RunSender(SenderConfig{
			BindAddr: senderAddr,
			Source:   NewSliceSource(payload),
			Variant:  "cubic",
		})
	}()

	// Give the sender a moment to bind before the receiver starts dialing.
	time.Sleep(20 * time.Millisecond)

	go func() {
		errCh <- RunReceiver(ReceiverConfig{
			ServerAddr: senderAddr,
			Sink:       sink,
		})
	}()

	timeout := time.After(10 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("session returned error: %v", err)
			}
		case <-timeout:
			t.Fatal("timed out waiting for session to complete")
		}
	}

	if got := sink.Bytes(); !bytes.Equal(got, payload) {
		t.Fatalf("sink received %d bytes, want %d bytes matching source", len(got), len(payload))
	}
}
