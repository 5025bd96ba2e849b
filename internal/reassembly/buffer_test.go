package reassembly

import (
	"bytes"
	"testing"

	"github.com/aetherflow/quantumcp/internal/wire"
)

type fakeSink struct {
	written [][]byte
}

func (f *fakeSink) Write(seq uint32, payload []byte) error {
	f.written = append(f.written, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSink) bytes() []byte {
	return bytes.Join(f.written, nil)
}

func TestInOrderDelivery(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)

	if err := b.OnData(0, []byte("ab")); err != nil {
		t.Fatal(err)
	}
	if err := b.OnData(1, []byte("cd")); err != nil {
		t.Fatal(err)
	}

	if got := sink.bytes(); string(got) != "abcd" {
		t.Errorf("sink = %q, want %q", got, "abcd")
	}
	if b.ExpectedSeq() != 2 {
		t.Errorf("ExpectedSeq = %d, want 2", b.ExpectedSeq())
	}
}

func TestOutOfOrderBufferedThenDrained(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)

	// Middle segment lost: 0 and 2 arrive first.
	if err := b.OnData(0, []byte("A")); err != nil {
		t.Fatal(err)
	}
	if err := b.OnData(2, []byte("C")); err != nil {
		t.Fatal(err)
	}
	if b.Empty() {
		t.Error("Empty() = true, want false while seq 1 is missing")
	}
	if got := sink.bytes(); string(got) != "A" {
		t.Errorf("sink = %q, want %q before gap fill", got, "A")
	}

	cumAck, ranges := b.EmitAck()
	if cumAck != 1 {
		t.Errorf("cumAck = %d, want 1", cumAck)
	}
	if len(ranges) != 1 || ranges[0] != (wire.SACKRange{Start: 2, End: 3}) {
		t.Errorf("ranges = %v, want [{2 3}]", ranges)
	}

	// Retransmit of 1 fills the gap and drains 2.
	if err := b.OnData(1, []byte("B")); err != nil {
		t.Fatal(err)
	}
	if !b.Empty() {
		t.Error("Empty() = false after gap fill, want true")
	}
	if got := sink.bytes(); string(got) != "ABC" {
		t.Errorf("sink = %q, want %q", got, "ABC")
	}
}

func TestDuplicateBeforeExpectedIsIgnored(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)
	_ = b.OnData(0, []byte("A"))
	_ = b.OnData(0, []byte("A-dup"))

	if len(sink.written) != 1 {
		t.Errorf("sink received %d writes, want 1 (duplicate must not re-deliver)", len(sink.written))
	}
}

func TestEmitAckMultipleRangesSortedAscending(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)
	// expectedSeq stays 0; pending gets seq 5,6 and 10.
	_ = b.OnData(10, []byte("x"))
	_ = b.OnData(5, []byte("y"))
	_ = b.OnData(6, []byte("z"))

	cumAck, ranges := b.EmitAck()
	if cumAck != 0 {
		t.Fatalf("cumAck = %d, want 0", cumAck)
	}
	want := []wire.SACKRange{{Start: 5, End: 7}, {Start: 10, End: 11}}
	if len(ranges) != len(want) {
		t.Fatalf("ranges = %v, want %v", ranges, want)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("ranges[%d] = %v, want %v", i, ranges[i], want[i])
		}
	}
}

func TestEmitAckCapsAtMaxSACKRanges(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)
	// Five disjoint singleton ranges, separated by gaps, starting above 0.
	for i := uint32(0); i < 5; i++ {
		_ = b.OnData(1+i*3, []byte("x"))
	}
	_, ranges := b.EmitAck()
	if len(ranges) != wire.MaxSACKRanges {
		t.Errorf("len(ranges) = %d, want %d", len(ranges), wire.MaxSACKRanges)
	}
}

func TestEOFMarksFileComplete(t *testing.T) {
	b := New(&fakeSink{})
	if b.FileComplete() {
		t.Fatal("FileComplete true before EOF")
	}
	b.OnEOF()
	if !b.FileComplete() {
		t.Fatal("FileComplete false after OnEOF")
	}
}
