package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// LengthFieldLen is the size of the big-endian packet length prefix.
	LengthFieldLen = 4
	// MinFrameLen is the smallest legal packet: the fixed SMGP header.
	MinFrameLen uint32 = 12
)

var (
	ErrShortLength    = errors.New("frame: short length field")
	ErrShortFrame     = errors.New("frame: short frame body")
	ErrFrameTooSmall  = errors.New("frame: packet length smaller than header")
	ErrFrameTooLarge  = errors.New("frame: packet too large")
	ErrLengthMismatch = errors.New("frame: length field does not match buffer")
)

// Limits constrains frame decode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 8 * 1024}
}

// ReadFrame reads one complete packet from r. The returned slice includes the
// length prefix, so it can be handed to the codec unchanged. A clean EOF
// before any byte of the next packet is returned as io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [LengthFieldLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortLength
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n < MinFrameLen {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooSmall, n)
	}
	if limits.MaxFrameBytes > 0 && n > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.MaxFrameBytes)
	}

	buf := make([]byte, n)
	copy(buf, prefix[:])
	if _, err := io.ReadFull(r, buf[LengthFieldLen:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes one already-encoded packet after checking its length prefix.
func WriteFrame(w io.Writer, packet []byte, limits Limits) error {
	if err := Validate(packet, limits); err != nil {
		return err
	}
	_, err := w.Write(packet)
	return err
}

// Validate checks that packet carries a length prefix equal to its own size.
func Validate(packet []byte, limits Limits) error {
	if len(packet) < int(MinFrameLen) {
		return fmt.Errorf("%w: %d", ErrFrameTooSmall, len(packet))
	}
	if limits.MaxFrameBytes > 0 && uint32(len(packet)) > limits.MaxFrameBytes {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(packet), limits.MaxFrameBytes)
	}
	if declared := binary.BigEndian.Uint32(packet[:LengthFieldLen]); declared != uint32(len(packet)) {
		return fmt.Errorf("%w: declared=%d actual=%d", ErrLengthMismatch, declared, len(packet))
	}
	return nil
}
