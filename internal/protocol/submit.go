package protocol

import (
	"fmt"

	"github.com/danmuck/smgpctl/internal/protocol/tlv"
)

// SubmitBody is one mobile-terminated message submission.
type SubmitBody struct {
	MsgType      uint8
	NeedReport   uint8
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
	Content      []byte
	Reserve      string
	Options      []tlv.Field
}

type Submit struct {
	Header Header
	Body   SubmitBody
}

func (m *Submit) Head() *Header        { return &m.Header }
func (m *Submit) RequestID() RequestID { return RequestSubmit }

func (m *Submit) encodeBody(w *writer) error {
	b := m.Body
	if len(b.DestTermIDs) == 0 || len(b.DestTermIDs) > maxDestTerms {
		return fmt.Errorf("%w: dest_term_id count %d", ErrInvalidField, len(b.DestTermIDs))
	}
	if len(b.Content) > maxContentLen {
		return fmt.Errorf("%w: msg_content len=%d max=%d", ErrFieldTooLong, len(b.Content), maxContentLen)
	}
	w.u8(b.MsgType)
	w.u8(b.NeedReport)
	w.u8(b.Priority)
	fixed := []struct {
		name  string
		value string
		width int
	}{
		{"service_id", b.ServiceID, serviceIDLen},
		{"fee_type", b.FeeType, feeTypeLen},
		{"fee_code", b.FeeCode, feeCodeLen},
		{"fixed_fee", b.FixedFee, fixedFeeLen},
	}
	for _, f := range fixed {
		if err := w.octets(f.name, f.value, f.width); err != nil {
			return err
		}
	}
	w.u8(b.MsgFormat)
	if err := w.octets("valid_time", b.ValidTime, timeLen); err != nil {
		return err
	}
	if err := w.octets("at_time", b.AtTime, timeLen); err != nil {
		return err
	}
	if err := w.octets("src_term_id", b.SrcTermID, termIDLen); err != nil {
		return err
	}
	if err := w.octets("charge_term_id", b.ChargeTermID, termIDLen); err != nil {
		return err
	}
	w.u8(uint8(len(b.DestTermIDs)))
	for _, dest := range b.DestTermIDs {
		if err := w.octets("dest_term_id", dest, termIDLen); err != nil {
			return err
		}
	}
	w.u8(uint8(len(b.Content)))
	w.raw(b.Content)
	if err := w.octets("reserve", b.Reserve, reserveLen); err != nil {
		return err
	}
	opts, err := tlv.EncodeFields(b.Options)
	if err != nil {
		return err
	}
	w.raw(opts)
	return nil
}

func (m *Submit) decodeBody(r *reader) {
	b := &m.Body
	b.MsgType = r.u8("msg_type")
	b.NeedReport = r.u8("need_report")
	b.Priority = r.u8("priority")
	b.ServiceID = r.octets("service_id", serviceIDLen)
	b.FeeType = r.octets("fee_type", feeTypeLen)
	b.FeeCode = r.octets("fee_code", feeCodeLen)
	b.FixedFee = r.octets("fixed_fee", fixedFeeLen)
	b.MsgFormat = r.u8("msg_format")
	b.ValidTime = r.octets("valid_time", timeLen)
	b.AtTime = r.octets("at_time", timeLen)
	b.SrcTermID = r.octets("src_term_id", termIDLen)
	b.ChargeTermID = r.octets("charge_term_id", termIDLen)
	count := int(r.u8("dest_term_id_count"))
	if count > 0 {
		b.DestTermIDs = make([]string, 0, count)
	}
	for i := 0; i < count && r.err == nil; i++ {
		b.DestTermIDs = append(b.DestTermIDs, r.octets("dest_term_id", termIDLen))
	}
	n := int(r.u8("msg_length"))
	b.Content = r.bytes("msg_content", n)
	b.Reserve = r.octets("reserve", reserveLen)
	b.Options = decodeOptions(r)
}

// SubmitRespBody acknowledges a Submit with the gateway-assigned MsgID.
type SubmitRespBody struct {
	MsgID  MsgID
	Status Status
}

type SubmitResp struct {
	Header Header
	Body   SubmitRespBody
}

func (m *SubmitResp) Head() *Header        { return &m.Header }
func (m *SubmitResp) RequestID() RequestID { return RequestSubmitResp }

func (m *SubmitResp) encodeBody(w *writer) error {
	w.raw(m.Body.MsgID[:])
	w.u32(uint32(m.Body.Status))
	return nil
}

func (m *SubmitResp) decodeBody(r *reader) {
	copy(m.Body.MsgID[:], r.take("msg_id", MsgIDLen))
	m.Body.Status = Status(r.u32("status"))
}

func decodeOptions(r *reader) []tlv.Field {
	rest := r.rest()
	if len(rest) == 0 {
		return nil
	}
	fields, err := tlv.DecodeFields(rest)
	if err != nil {
		r.fail(fmt.Errorf("%w: options: %v", ErrMalformedFrame, err))
		return nil
	}
	return fields
}
