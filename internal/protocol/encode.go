package protocol

import (
	"encoding/binary"
	"fmt"
)

// Message is one typed SMGP packet.
type Message interface {
	Head() *Header
	RequestID() RequestID
	encodeBody(w *writer) error
	decodeBody(r *reader)
}

// Encode serializes msg. PacketLength and RequestID are derived from the
// message itself; the sequence id is taken from msg.Head().
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	w := &writer{buf: make([]byte, 0, 64)}
	w.u32(0)
	w.u32(uint32(msg.RequestID()))
	w.u32(msg.Head().SequenceID)
	if err := msg.encodeBody(w); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.RequestID(), err)
	}
	binary.BigEndian.PutUint32(w.buf[0:4], uint32(len(w.buf)))
	return w.buf, nil
}

// EncodeHeader serializes a bare header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.PacketLength)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.RequestID))
	binary.BigEndian.PutUint32(buf[8:12], h.SequenceID)
	return buf
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// octets writes s into a fixed n-byte field, NUL padded on the right.
func (w *writer) octets(name, s string, n int) error {
	if len(s) > n {
		return fmt.Errorf("%w: %s len=%d max=%d", ErrFieldTooLong, name, len(s), n)
	}
	w.buf = append(w.buf, s...)
	for i := len(s); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return nil
}
