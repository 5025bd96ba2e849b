// Package wire implements the fixed 20-byte frame header for the quantumcp
// transport: data, cumulative-ACK+SACK, EOF, and EOF-ACK frames.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed header length in bytes for every frame.
	HeaderSize = 20

	// MSS is the maximum payload bytes carried by a single data frame.
	MSS = 1180

	// MaxSACKRanges is the number of (start,len) tuples the 16 reserved
	// header bytes can hold.
	MaxSACKRanges = 4

	// EOFSeq marks the end-of-stream frame.
	EOFSeq uint32 = 0xFFFFFFFF

	// EOFAckSeq marks the receiver's confirmation of EOF.
	EOFAckSeq uint32 = 0xFFFFFFFE
)

var eofPayload = []byte("EOF")

// MalformedFrame is returned by Decode* when a frame is shorter than the
// header, and by DecodeData when an EOF frame's payload is not "EOF".
// DecodeAck does not validate the SACK tuples it reads. Per spec §7 the
// caller drops the frame and logs at debug; it is never escalated.
type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// SACKRange is a contiguous run of received sequence numbers above the
// cumulative ACK, inclusive start, exclusive end (so length = End-Start).
type SACKRange struct {
	Start uint32
	End   uint32
}

func (r SACKRange) Len() uint32 { return r.End - r.Start }

// EncodeData builds a data frame: seq in bytes 0-3, zero reserved bytes
// 4-19, payload from byte 20. len(payload) must be <= MSS.
func EncodeData(seq uint32, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], seq)
	copy(frame[HeaderSize:], payload)
	return frame
}

// EncodeEOF builds the end-of-stream frame: seq=EOFSeq, payload "EOF".
func EncodeEOF() []byte {
	frame := make([]byte, HeaderSize+len(eofPayload))
	binary.BigEndian.PutUint32(frame[0:4], EOFSeq)
	copy(frame[HeaderSize:], eofPayload)
	return frame
}

// EncodeEOFAck builds the receiver's EOF confirmation frame.
func EncodeEOFAck() []byte {
	frame := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(frame[0:4], EOFAckSeq)
	return frame
}

// EncodeAck builds a cumulative-ACK+SACK frame. sackRanges must be
// non-overlapping, ascending, and at most MaxSACKRanges long; each
// range's Start and length must fit in 16 bits (the frozen wire layout, §6).
func EncodeAck(cumAck uint32, sackRanges []SACKRange) ([]byte, error) {
	if len(sackRanges) > MaxSACKRanges {
		return nil, fmt.Errorf("wire: %d SACK ranges exceeds max %d", len(sackRanges), MaxSACKRanges)
	}

	frame := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(frame[0:4], cumAck)

	offset := 4
	for _, r := range sackRanges {
		if r.Start > 0xFFFF || r.Len() > 0xFFFF {
			return nil, fmt.Errorf("wire: SACK range [%d,%d) does not fit in u16 start/len", r.Start, r.End)
		}
		binary.BigEndian.PutUint16(frame[offset:offset+2], uint16(r.Start))
		binary.BigEndian.PutUint16(frame[offset+2:offset+4], uint16(r.Len()))
		offset += 4
	}
	// Remaining tuples are already zero from make().

	return frame, nil
}

// DataFrame is the decoded form of an inbound data/EOF frame.
type DataFrame struct {
	Seq     uint32
	Payload []byte
	IsEOF   bool
}

// DecodeData parses an inbound data or EOF frame.
func DecodeData(frame []byte) (DataFrame, error) {
	if len(frame) < HeaderSize {
		return DataFrame{}, &MalformedFrame{Reason: fmt.Sprintf("frame length %d < header size %d", len(frame), HeaderSize)}
	}
	seq := binary.BigEndian.Uint32(frame[0:4])
	payload := append([]byte(nil), frame[HeaderSize:]...)

	if seq == EOFSeq {
		if string(payload) != "EOF" {
			return DataFrame{}, &MalformedFrame{Reason: "EOF frame payload is not \"EOF\""}
		}
		return DataFrame{Seq: seq, IsEOF: true}, nil
	}

	return DataFrame{Seq: seq, Payload: payload}, nil
}

// AckFrame is the decoded form of an inbound ACK/EOF-ACK frame.
type AckFrame struct {
	CumAck     uint32
	SACKRanges []SACKRange
	IsEOFAck   bool
}

// DecodeAck parses an inbound ACK or EOF-ACK frame.
func DecodeAck(frame []byte) (AckFrame, error) {
	if len(frame) < HeaderSize {
		return AckFrame{}, &MalformedFrame{Reason: fmt.Sprintf("frame length %d < header size %d", len(frame), HeaderSize)}
	}
	cumAck := binary.BigEndian.Uint32(frame[0:4])
	if cumAck == EOFAckSeq {
		return AckFrame{CumAck: cumAck, IsEOFAck: true}, nil
	}

	var ranges []SACKRange
	offset := 4
	for i := 0; i < MaxSACKRanges; i++ {
		start := binary.BigEndian.Uint16(frame[offset : offset+2])
		length := binary.BigEndian.Uint16(frame[offset+2 : offset+4])
		offset += 4
		if start == 0 && length == 0 {
			continue
		}
		ranges = append(ranges, SACKRange{Start: uint32(start), End: uint32(start) + uint32(length)})
	}

	return AckFrame{CumAck: cumAck, SACKRanges: ranges}, nil
}

// IsRequest reports whether a datagram is the receiver's one-byte session
// request (§4.6/§6): any single-byte payload, conventionally 'G' or 0x01.
func IsRequest(datagram []byte) bool {
	return len(datagram) == 1
}
