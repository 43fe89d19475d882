package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is tag(2) + length(2).
const HeaderLen = 4

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrValueTooLarge    = errors.New("tlv: value too large")
)

// Optional parameter tags defined by SMGP 3.0.
const (
	TagTPPid            uint16 = 0x0001
	TagTPUdhi           uint16 = 0x0002
	TagLinkID           uint16 = 0x0003
	TagChargeUserType   uint16 = 0x0004
	TagChargeTermType   uint16 = 0x0005
	TagChargeTermPseudo uint16 = 0x0006
	TagDestTermType     uint16 = 0x0007
	TagDestTermPseudo   uint16 = 0x0008
	TagPkTotal          uint16 = 0x0009
	TagPkNumber         uint16 = 0x000A
	TagSubmitMsgType    uint16 = 0x000B
	TagSPDealResult     uint16 = 0x000C
	TagSrcTermType      uint16 = 0x000D
	TagSrcTermPseudo    uint16 = 0x000E
	TagNodesCount       uint16 = 0x000F
	TagMsgSrc           uint16 = 0x0010
	TagSrcType          uint16 = 0x0011
	TagMServiceID       uint16 = 0x0012
)

// Field is one optional parameter.
type Field struct {
	Tag   uint16
	Value []byte
}

func EncodeField(f Field) ([]byte, error) {
	if len(f.Value) > int(^uint16(0)) {
		return nil, fmt.Errorf("%w: tag=0x%04x len=%d", ErrValueTooLarge, f.Tag, len(f.Value))
	}
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.Tag)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(f.Value)))
	copy(buf[HeaderLen:], f.Value)
	return buf, nil
}

func EncodeFields(fields []Field) ([]byte, error) {
	var out []byte
	for _, f := range fields {
		b, err := EncodeField(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeFields parses a trailing option block. An empty block yields nil.
func DecodeFields(payload []byte) ([]Field, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var fields []Field
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		tag := binary.BigEndian.Uint16(payload[i : i+2])
		l := int(binary.BigEndian.Uint16(payload[i+2 : i+4]))
		i += HeaderLen
		if len(payload)-i < l {
			return nil, fmt.Errorf("%w: tag=0x%04x want=%d have=%d", ErrShortFieldValue, tag, l, len(payload)-i)
		}
		val := make([]byte, l)
		copy(val, payload[i:i+l])
		i += l
		fields = append(fields, Field{Tag: tag, Value: val})
	}
	return fields, nil
}

func GetField(fields []Field, tag uint16) (Field, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

func Uint8(tag uint16, v uint8) Field {
	return Field{Tag: tag, Value: []byte{v}}
}

func String(tag uint16, v string) Field {
	return Field{Tag: tag, Value: []byte(v)}
}

func U8FromBytes(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("tlv: invalid u8 length: %d", len(b))
	}
	return b[0], nil
}
