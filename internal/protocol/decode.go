package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DecodeHeader reads the fixed header and checks the declared packet length
// against the buffer.
func DecodeHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes shorter than header", ErrMalformedFrame, len(frame))
	}
	h := Header{
		PacketLength: binary.BigEndian.Uint32(frame[0:4]),
		RequestID:    RequestID(binary.BigEndian.Uint32(frame[4:8])),
		SequenceID:   binary.BigEndian.Uint32(frame[8:12]),
	}
	if h.PacketLength < HeaderSize {
		return Header{}, fmt.Errorf("%w: packet length %d shorter than header", ErrMalformedFrame, h.PacketLength)
	}
	if uint32(len(frame)) < h.PacketLength {
		return Header{}, fmt.Errorf("%w: have %d bytes, header declares %d", ErrMalformedFrame, len(frame), h.PacketLength)
	}
	return h, nil
}

// Decode reads one complete packet and returns its typed message.
func Decode(frame []byte) (Message, error) {
	h, err := DecodeHeader(frame)
	if err != nil {
		return nil, err
	}
	msg := newMessage(h.RequestID)
	if msg == nil {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnknownRequest, uint32(h.RequestID))
	}
	*msg.Head() = h
	r := &reader{buf: frame[HeaderSize:h.PacketLength]}
	msg.decodeBody(r)
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", h.RequestID, r.err)
	}
	return msg, nil
}

func newMessage(id RequestID) Message {
	switch id {
	case RequestLogin:
		return &Login{}
	case RequestLoginResp:
		return &LoginResp{}
	case RequestSubmit:
		return &Submit{}
	case RequestSubmitResp:
		return &SubmitResp{}
	case RequestDeliver:
		return &Deliver{}
	case RequestDeliverResp:
		return &DeliverResp{}
	case RequestActiveTest:
		return &ActiveTest{}
	case RequestActiveTestResp:
		return &ActiveTestResp{}
	case RequestExit:
		return &Exit{}
	case RequestExitResp:
		return &ExitResp{}
	default:
		return nil
	}
}

func decodeAs[T Message](frame []byte, want RequestID) (T, error) {
	var zero T
	h, err := DecodeHeader(frame)
	if err != nil {
		return zero, err
	}
	if h.RequestID != want {
		return zero, fmt.Errorf("%w: got %s want %s", ErrRequestMismatch, h.RequestID, want)
	}
	msg, err := Decode(frame)
	if err != nil {
		return zero, err
	}
	return msg.(T), nil
}

func DecodeLogin(frame []byte) (*Login, error) {
	return decodeAs[*Login](frame, RequestLogin)
}

func DecodeLoginResp(frame []byte) (*LoginResp, error) {
	return decodeAs[*LoginResp](frame, RequestLoginResp)
}

func DecodeSubmit(frame []byte) (*Submit, error) {
	return decodeAs[*Submit](frame, RequestSubmit)
}

func DecodeSubmitResp(frame []byte) (*SubmitResp, error) {
	return decodeAs[*SubmitResp](frame, RequestSubmitResp)
}

func DecodeDeliver(frame []byte) (*Deliver, error) {
	return decodeAs[*Deliver](frame, RequestDeliver)
}

func DecodeDeliverResp(frame []byte) (*DeliverResp, error) {
	return decodeAs[*DeliverResp](frame, RequestDeliverResp)
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(name string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: %s needs %d bytes, %d left", ErrMalformedFrame, name, n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8(name string) uint8 {
	b := r.take(name, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(name string) uint16 {
	b := r.take(name, 2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32(name string) uint32 {
	b := r.take(name, 4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// octets reads a fixed n-byte field and strips NUL padding.
func (r *reader) octets(name string, n int) string {
	b := r.take(name, n)
	if b == nil {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (r *reader) bytes(name string, n int) []byte {
	b := r.take(name, n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) rest() []byte {
	if r.err != nil || r.off >= len(r.buf) {
		return nil
	}
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
