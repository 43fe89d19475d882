package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/smgpctl/internal/protocol/tlv"
)

const (
	// SingleContentLen is the largest content sent as one Submit.
	SingleContentLen = 140
	udhLen           = 6
	maxSegments      = 255
)

// SubmitRequest describes a text message to one or more terminals. It is
// turned into one Submit per segment by BuildSubmits.
type SubmitRequest struct {
	// MsgType zero means MsgTypeMT.
	MsgType      uint8
	NeedReport   bool
	Priority     uint8
	ServiceID    string
	FeeType      string
	FeeCode      string
	FixedFee     string
	MsgFormat    uint8
	ValidTime    string
	AtTime       string
	SrcTermID    string
	ChargeTermID string
	DestTermIDs  []string
	Text         string
	Options      []tlv.Field
}

func (r SubmitRequest) Validate() error {
	if len(r.DestTermIDs) == 0 {
		return fmt.Errorf("%w: no destination terminals", ErrInvalidField)
	}
	if len(r.DestTermIDs) > maxDestTerms {
		return fmt.Errorf("%w: %d destination terminals, max %d", ErrInvalidField, len(r.DestTermIDs), maxDestTerms)
	}
	for i, dest := range r.DestTermIDs {
		if strings.TrimSpace(dest) == "" {
			return fmt.Errorf("%w: dest_term_ids[%d] empty", ErrInvalidField, i)
		}
	}
	if strings.TrimSpace(r.SrcTermID) == "" {
		return fmt.Errorf("%w: missing src_term_id", ErrInvalidField)
	}
	return nil
}

// BuildSubmits encodes req.Text for req.MsgFormat and returns the Submits to
// send, in order. Content longer than SingleContentLen is split into
// concatenated segments carrying a 6-octet UDH and the TP_udhi, PkTotal and
// PkNumber options. next supplies one sequence id per Submit.
func BuildSubmits(req SubmitRequest, next func() uint32) ([]*Submit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	content, err := EncodeContent(req.MsgFormat, req.Text)
	if err != nil {
		return nil, err
	}
	parts := SplitContent(content, req.MsgFormat)
	if len(parts) > maxSegments {
		return nil, fmt.Errorf("%w: %d segments, max %d", ErrFieldTooLong, len(parts), maxSegments)
	}

	submits := make([]*Submit, 0, len(parts))
	var ref byte
	for i, part := range parts {
		seq := next()
		if i == 0 {
			ref = byte(seq)
		}
		body := baseSubmitBody(req)
		if len(parts) == 1 {
			body.Content = part
		} else {
			udh := []byte{0x05, 0x00, 0x03, ref, byte(len(parts)), byte(i + 1)}
			body.Content = append(udh, part...)
			body.Options = append(body.Options,
				tlv.Uint8(tlv.TagTPUdhi, 1),
				tlv.Uint8(tlv.TagPkTotal, byte(len(parts))),
				tlv.Uint8(tlv.TagPkNumber, byte(i+1)),
			)
		}
		submits = append(submits, &Submit{
			Header: Header{RequestID: RequestSubmit, SequenceID: seq},
			Body:   body,
		})
	}
	return submits, nil
}

func baseSubmitBody(req SubmitRequest) SubmitBody {
	msgType := req.MsgType
	if msgType == 0 {
		msgType = MsgTypeMT
	}
	var needReport uint8
	if req.NeedReport {
		needReport = 1
	}
	dests := make([]string, len(req.DestTermIDs))
	copy(dests, req.DestTermIDs)
	opts := make([]tlv.Field, len(req.Options))
	copy(opts, req.Options)
	return SubmitBody{
		MsgType:      msgType,
		NeedReport:   needReport,
		Priority:     req.Priority,
		ServiceID:    req.ServiceID,
		FeeType:      req.FeeType,
		FeeCode:      req.FeeCode,
		FixedFee:     req.FixedFee,
		MsgFormat:    req.MsgFormat,
		ValidTime:    req.ValidTime,
		AtTime:       req.AtTime,
		SrcTermID:    req.SrcTermID,
		ChargeTermID: req.ChargeTermID,
		DestTermIDs:  dests,
		Options:      opts,
	}
}

// SplitContent splits encoded content into segment payloads (without UDH).
// Content that fits in one Submit is returned as a single part. Cuts never
// split a UCS2 surrogate pair or a GBK double-byte character.
func SplitContent(content []byte, format uint8) [][]byte {
	if len(content) <= SingleContentLen {
		return [][]byte{content}
	}
	limit := SingleContentLen - udhLen
	var parts [][]byte
	for len(content) > 0 {
		cut := cutPoint(content, limit, format)
		parts = append(parts, content[:cut])
		content = content[cut:]
	}
	return parts
}

func cutPoint(b []byte, limit int, format uint8) int {
	if len(b) <= limit {
		return len(b)
	}
	switch format {
	case FormatUCS2:
		cut := limit &^ 1
		if cut >= 2 {
			unit := uint16(b[cut-2])<<8 | uint16(b[cut-1])
			if unit >= 0xD800 && unit <= 0xDBFF {
				cut -= 2
			}
		}
		return cut
	case FormatGBK:
		i := 0
		for i < len(b) {
			w := 1
			if b[i] >= 0x81 {
				w = 2
			}
			if i+w > limit {
				break
			}
			i += w
		}
		return i
	default:
		return limit
	}
}
