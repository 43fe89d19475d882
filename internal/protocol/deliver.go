package protocol

import (
	"fmt"

	"github.com/danmuck/smgpctl/internal/protocol/tlv"
)

// DeliverBody is a gateway-originated message: either a status report for an
// earlier Submit (IsReport=1) or an inbound terminal message (IsReport=0).
type DeliverBody struct {
	MsgID      MsgID
	IsReport   uint8
	MsgFormat  uint8
	RecvTime   string
	SrcTermID  string
	DestTermID string
	Content    []byte
	Reserve    string
	Options    []tlv.Field
}

type Deliver struct {
	Header Header
	Body   DeliverBody
}

func (m *Deliver) Head() *Header        { return &m.Header }
func (m *Deliver) RequestID() RequestID { return RequestDeliver }

func (m *Deliver) encodeBody(w *writer) error {
	b := m.Body
	if len(b.Content) > maxContentLen {
		return fmt.Errorf("%w: msg_content len=%d max=%d", ErrFieldTooLong, len(b.Content), maxContentLen)
	}
	w.raw(b.MsgID[:])
	w.u8(b.IsReport)
	w.u8(b.MsgFormat)
	if err := w.octets("recv_time", b.RecvTime, recvTimeLen); err != nil {
		return err
	}
	if err := w.octets("src_term_id", b.SrcTermID, termIDLen); err != nil {
		return err
	}
	if err := w.octets("dest_term_id", b.DestTermID, termIDLen); err != nil {
		return err
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

func (m *Deliver) decodeBody(r *reader) {
	b := &m.Body
	copy(b.MsgID[:], r.take("msg_id", MsgIDLen))
	b.IsReport = r.u8("is_report")
	b.MsgFormat = r.u8("msg_format")
	b.RecvTime = r.octets("recv_time", recvTimeLen)
	b.SrcTermID = r.octets("src_term_id", termIDLen)
	b.DestTermID = r.octets("dest_term_id", termIDLen)
	n := int(r.u8("msg_length"))
	b.Content = r.bytes("msg_content", n)
	b.Reserve = r.octets("reserve", reserveLen)
	b.Options = decodeOptions(r)
}

// IsReport reports whether the deliver carries a status report.
func (m *Deliver) IsReport() bool {
	return m.Body.IsReport == 1
}

// ReportMessage is the status-report view of a Deliver. Status is zero when
// Content is not in the id:/stat: layout.
type ReportMessage struct {
	MsgID      MsgID
	RecvTime   string
	SrcTermID  string
	DestTermID string
	Status     ReportStatus
	Content    []byte
}

// Report projects the deliver as a status report. The content is parsed
// into Status; on a parse error the raw content is still returned.
func (m *Deliver) Report() (ReportMessage, error) {
	msg := ReportMessage{
		MsgID:      m.Body.MsgID,
		RecvTime:   m.Body.RecvTime,
		SrcTermID:  m.Body.SrcTermID,
		DestTermID: m.Body.DestTermID,
		Content:    m.Body.Content,
	}
	status, err := ParseReport(m.Body.Content)
	if err != nil {
		return msg, err
	}
	msg.Status = status
	return msg, nil
}

// ReplyMessage is an inbound terminal message.
type ReplyMessage struct {
	MsgID      MsgID
	RecvTime   string
	SrcTermID  string
	DestTermID string
	MsgFormat  uint8
	Content    []byte
}

// Text decodes the content according to its MsgFormat.
func (m ReplyMessage) Text() (string, error) {
	return DecodeContent(m.MsgFormat, m.Content)
}

func (m *Deliver) Reply() ReplyMessage {
	return ReplyMessage{
		MsgID:      m.Body.MsgID,
		RecvTime:   m.Body.RecvTime,
		SrcTermID:  m.Body.SrcTermID,
		DestTermID: m.Body.DestTermID,
		MsgFormat:  m.Body.MsgFormat,
		Content:    m.Body.Content,
	}
}

// DeliverRespBody acknowledges a Deliver.
type DeliverRespBody struct {
	MsgID  MsgID
	Status Status
}

type DeliverResp struct {
	Header Header
	Body   DeliverRespBody
}

// NewDeliverResp echoes seq and msgID from the Deliver being acknowledged.
func NewDeliverResp(seq uint32, msgID MsgID, status Status) *DeliverResp {
	return &DeliverResp{
		Header: Header{RequestID: RequestDeliverResp, SequenceID: seq},
		Body:   DeliverRespBody{MsgID: msgID, Status: status},
	}
}

func (m *DeliverResp) Head() *Header        { return &m.Header }
func (m *DeliverResp) RequestID() RequestID { return RequestDeliverResp }

func (m *DeliverResp) encodeBody(w *writer) error {
	w.raw(m.Body.MsgID[:])
	w.u32(uint32(m.Body.Status))
	return nil
}

func (m *DeliverResp) decodeBody(r *reader) {
	copy(m.Body.MsgID[:], r.take("msg_id", MsgIDLen))
	m.Body.Status = Status(r.u32("status"))
}
