// Package reassembly implements the receiver's out-of-order buffer,
// in-order delivery, and SACK range encoding (spec C3/§4.3).
package reassembly

import (
	"sort"

	"github.com/aetherflow/quantumcp/internal/wire"
)

// Sink is the byte-addressable destination file. Writes must occur in
// sequence-number order (spec §5 — append-only, no seeks); the receiver
// enforces that by only ever calling Write with the next in-order chunk.
type Sink interface {
	Write(seq uint32, payload []byte) error
}

// Buffer is the receiver's reassembly state (spec §3 Receiver State).
// Not safe for concurrent use; the session controller serializes access.
type Buffer struct {
	sink Sink

	expectedSeq  uint32
	pending      map[uint32][]byte
	maxSeenSeq   uint32
	fileComplete bool

	totalReceived uint64
	totalOrdered  uint64
	outOfOrder    uint64
	duplicates    uint64
}

// New returns a Buffer delivering in-order bytes to sink.
func New(sink Sink) *Buffer {
	return &Buffer{
		sink:    sink,
		pending: make(map[uint32][]byte),
	}
}

// OnData implements the on_data operation (§4.3). It returns an error only
// if the sink write fails; malformed/duplicate/out-of-order arrivals are
// handled internally and never surface as errors.
func (b *Buffer) OnData(seq uint32, payload []byte) error {
	if seq < b.expectedSeq {
		// Duplicate of already-delivered data; ACK is re-emitted by the
		// caller regardless (EmitAck reflects current state either way).
		b.duplicates++
		return nil
	}

	if seq == b.expectedSeq {
		if err := b.sink.Write(seq, payload); err != nil {
			return err
		}
		b.expectedSeq++
		b.totalOrdered++
		b.totalReceived++

		for {
			buffered, ok := b.pending[b.expectedSeq]
			if !ok {
				break
			}
			if err := b.sink.Write(b.expectedSeq, buffered); err != nil {
				return err
			}
			delete(b.pending, b.expectedSeq)
			b.expectedSeq++
			b.totalOrdered++
		}
		return nil
	}

	// seq > expectedSeq: out-of-order.
	if _, exists := b.pending[seq]; !exists {
		b.pending[seq] = append([]byte(nil), payload...)
		b.outOfOrder++
		b.totalReceived++
	} else {
		b.duplicates++
	}
	if seq > b.maxSeenSeq {
		b.maxSeenSeq = seq
	}
	return nil
}

// OnEOF marks the stream complete (the EOF sentinel carries no sequence
// data of its own — §4.3 treats it as a standalone control signal).
func (b *Buffer) OnEOF() {
	b.fileComplete = true
}

// FileComplete reports whether an EOF frame has been observed.
func (b *Buffer) FileComplete() bool {
	return b.fileComplete
}

// Empty reports whether every byte up to maxSeenSeq has been delivered —
// the condition the session controller waits on before terminating after
// EOF (spec §9 Open Question resolution).
func (b *Buffer) Empty() bool {
	return len(b.pending) == 0
}

// ExpectedSeq returns the next sequence number not yet delivered.
func (b *Buffer) ExpectedSeq() uint32 {
	return b.expectedSeq
}

// EmitAck computes the cumulative ACK and up to wire.MaxSACKRanges SACK
// ranges covering contiguous runs of pending, sorted ascending, earliest
// runs prioritized (spec §4.3).
func (b *Buffer) EmitAck() (cumAck uint32, ranges []wire.SACKRange) {
	cumAck = b.expectedSeq
	if len(b.pending) == 0 {
		return cumAck, nil
	}

	seqs := make([]uint32, 0, len(b.pending))
	for seq := range b.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var current *wire.SACKRange
	for _, seq := range seqs {
		switch {
		case current == nil:
			current = &wire.SACKRange{Start: seq, End: seq + 1}
		case seq == current.End:
			current.End = seq + 1
		default:
			ranges = append(ranges, *current)
			if len(ranges) >= wire.MaxSACKRanges {
				return cumAck, ranges
			}
			current = &wire.SACKRange{Start: seq, End: seq + 1}
		}
	}
	if current != nil {
		ranges = append(ranges, *current)
	}
	return cumAck, ranges
}

// Stats mirrors the teacher's Statistics() map, exposed as a struct for
// the metrics package to read without map-key typos.
type Stats struct {
	TotalReceived uint64
	TotalOrdered  uint64
	OutOfOrder    uint64
	Duplicates    uint64
	Buffered      int
}

func (b *Buffer) Stats() Stats {
	return Stats{
		TotalReceived: b.totalReceived,
		TotalOrdered:  b.totalOrdered,
		OutOfOrder:    b.outOfOrder,
		Duplicates:    b.duplicates,
		Buffered:      len(b.pending),
	}
}
