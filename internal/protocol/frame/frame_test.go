package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func packet(requestID, seq uint32, body []byte) []byte {
	buf := make([]byte, 12+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint32(buf[4:8], requestID)
	binary.BigEndian.PutUint32(buf[8:12], seq)
	copy(buf[12:], body)
	return buf
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	first := packet(0x00000004, 7, nil)
	second := packet(0x80000002, 8, []byte("0123456789abcd"))

	var buf bytes.Buffer
	if err := WriteFrame(&buf, first, DefaultLimits()); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := WriteFrame(&buf, second, DefaultLimits()); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("first frame mismatch: %x", got)
	}
	got, err = ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("second frame mismatch: %x", got)
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last frame, got %v", err)
	}
}

func TestReadFrameShortLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultLimits())
	if !errors.Is(err, ErrShortLength) {
		t.Fatalf("expected ErrShortLength, got %v", err)
	}
}

func TestReadFrameTooSmall(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 8)
	_, err := ReadFrame(bytes.NewReader(buf), DefaultLimits())
	if !errors.Is(err, ErrFrameTooSmall) {
		t.Fatalf("expected ErrFrameTooSmall, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, 1<<20)
	_, err := ReadFrame(bytes.NewReader(buf), Limits{MaxFrameBytes: 1024})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	p := packet(0x00000003, 1, []byte("body"))
	_, err := ReadFrame(bytes.NewReader(p[:len(p)-2]), DefaultLimits())
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestWriteFrameRejectsLengthMismatch(t *testing.T) {
	p := packet(0x00000004, 1, nil)
	binary.BigEndian.PutUint32(p[0:4], 40)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, p, DefaultLimits()); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written on mismatch")
	}
}
