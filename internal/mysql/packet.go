package mysql

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet framing. Every unit on the wire is a 3-byte little endian payload
// length, a 1-byte sequence id and the payload itself.

const packetHeaderSize = 4

// maxPayloadSize is the largest payload a single packet can carry.
const maxPayloadSize = 1<<24 - 1

// buffer accumulates raw socket bytes until they form complete packets.
// Consumed bytes are tracked with a cursor and reclaimed lazily so repeated
// receives do not recopy the whole backlog.
type buffer struct {
	data  []byte
	start int
}

func (b *buffer) Append(p []byte) {
	// Reclaim consumed space once it dominates the slice.
	if b.start > 0 && b.start >= len(b.data)/2 {
		b.data = append(b.data[:0], b.data[b.start:]...)
		b.start = 0
	}
	b.data = append(b.data, p...)
}

// Len reports how many unconsumed bytes are buffered.
func (b *buffer) Len() int {
	return len(b.data) - b.start
}

// TryReadPacket frames the next packet out of the buffer. It returns
// ok=false when fewer than header+length bytes are buffered; the buffer is
// left untouched so the caller can wait for more socket data.
func (b *buffer) TryReadPacket() (payload []byte, seq uint8, ok bool) {
	pending := b.data[b.start:]
	if len(pending) < packetHeaderSize {
		return nil, 0, false
	}
	length := int(pending[0]) | int(pending[1])<<8 | int(pending[2])<<16
	if len(pending) < packetHeaderSize+length {
		return nil, 0, false
	}
	seq = pending[3]
	payload = pending[packetHeaderSize : packetHeaderSize+length]
	b.start += packetHeaderSize + length
	return payload, seq, true
}

// writePacket frames payload and writes it to w with the given sequence id.
func writePacket(w io.Writer, seq uint8, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("payload of %d bytes exceeds maximum packet size", len(payload))
	}
	header := []byte{
		byte(len(payload)),
		byte(len(payload) >> 8),
		byte(len(payload) >> 16),
		seq,
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

//
// Length-encoded primitives. Appenders grow a payload under construction,
// readers walk it with an explicit position and report ok=false instead of
// panicking when the data runs out.
//

func appendLenEncInt(b []byte, v uint64) []byte {
	switch {
	case v < 0xfb:
		return append(b, byte(v))
	case v < 1<<16:
		return append(b, 0xfc, byte(v), byte(v>>8))
	case v < 1<<24:
		return append(b, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		return append(b, 0xfe,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
}

func readLenEncInt(data []byte, pos int) (uint64, int, bool) {
	if pos >= len(data) {
		return 0, pos, false
	}
	switch lead := data[pos]; {
	case lead < 0xfb:
		return uint64(lead), pos + 1, true
	case lead == 0xfc:
		if pos+3 > len(data) {
			return 0, pos, false
		}
		return uint64(binary.LittleEndian.Uint16(data[pos+1:])), pos + 3, true
	case lead == 0xfd:
		if pos+4 > len(data) {
			return 0, pos, false
		}
		return uint64(data[pos+1]) | uint64(data[pos+2])<<8 | uint64(data[pos+3])<<16, pos + 4, true
	case lead == 0xfe:
		if pos+9 > len(data) {
			return 0, pos, false
		}
		return binary.LittleEndian.Uint64(data[pos+1:]), pos + 9, true
	default:
		// 0xfb is the NULL marker in row contexts, not an integer.
		return 0, pos, false
	}
}

func appendLenEncBytes(b, v []byte) []byte {
	b = appendLenEncInt(b, uint64(len(v)))
	return append(b, v...)
}

func appendLenEncString(b []byte, v string) []byte {
	b = appendLenEncInt(b, uint64(len(v)))
	return append(b, v...)
}

func readLenEncBytes(data []byte, pos int) ([]byte, int, bool) {
	length, pos, ok := readLenEncInt(data, pos)
	if !ok {
		return nil, pos, false
	}
	// The 8-byte form can carry lengths far beyond any buffer; compare in
	// uint64 space so a hostile length cannot wrap a signed index.
	if length > uint64(len(data)-pos) {
		return nil, pos, false
	}
	return data[pos : pos+int(length)], pos + int(length), true
}

// readNullTerminatedString reads bytes up to a NUL. When no NUL is present
// the remainder of the buffer is taken, some clients omit the terminator on
// the final field of a packet.
func readNullTerminatedString(data []byte, pos int) (string, int) {
	for i := pos; i < len(data); i++ {
		if data[i] == 0 {
			return string(data[pos:i]), i + 1
		}
	}
	return string(data[pos:]), len(data)
}
