package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HeaderSize is PacketLength(4) + RequestID(4) + SequenceID(4).
const HeaderSize = 12

// RequestID identifies the message type carried by a packet.
type RequestID uint32

const (
	RequestLogin          RequestID = 0x00000001
	RequestLoginResp      RequestID = 0x80000001
	RequestSubmit         RequestID = 0x00000002
	RequestSubmitResp     RequestID = 0x80000002
	RequestDeliver        RequestID = 0x00000003
	RequestDeliverResp    RequestID = 0x80000003
	RequestActiveTest     RequestID = 0x00000004
	RequestActiveTestResp RequestID = 0x80000004
	RequestExit           RequestID = 0x00000006
	RequestExitResp       RequestID = 0x80000006
)

var requestNames = map[RequestID]string{
	RequestLogin:          "login",
	RequestLoginResp:      "login_resp",
	RequestSubmit:         "submit",
	RequestSubmitResp:     "submit_resp",
	RequestDeliver:        "deliver",
	RequestDeliverResp:    "deliver_resp",
	RequestActiveTest:     "active_test",
	RequestActiveTestResp: "active_test_resp",
	RequestExit:           "exit",
	RequestExitResp:       "exit_resp",
}

func (r RequestID) String() string {
	if name, ok := requestNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%08x)", uint32(r))
}

// Known reports whether r is a request id this codec can decode.
func (r RequestID) Known() bool {
	_, ok := requestNames[r]
	return ok
}

// IsResponse reports whether the response bit is set.
func (r RequestID) IsResponse() bool {
	return uint32(r)&0x80000000 != 0
}

// Header is the fixed header present on every packet.
type Header struct {
	PacketLength uint32
	RequestID    RequestID
	SequenceID   uint32
}

// Status is the result code carried by response bodies.
type Status uint32

const (
	StatusSuccess           Status = 0
	StatusSystemBusy        Status = 1
	StatusTooManyLinks      Status = 2
	StatusMessageStructure  Status = 10
	StatusCommandWord       Status = 11
	StatusDuplicateSequence Status = 12
	StatusIPAddress         Status = 20
	StatusAuthentication    Status = 21
	StatusVersionTooHigh    Status = 22
	StatusInvalidMsgType    Status = 30
	StatusInvalidPriority   Status = 31
	StatusInvalidFeeType    Status = 32
	StatusInvalidFeeCode    Status = 33
	StatusInvalidMsgFormat  Status = 34
	StatusInvalidTimeFormat Status = 35
	StatusInvalidMsgLength  Status = 36
	StatusExpired           Status = 37
	StatusInvalidQueryType  Status = 38
	StatusRouteError        Status = 39
)

var statusNames = map[Status]string{
	StatusSuccess:           "success",
	StatusSystemBusy:        "system_busy",
	StatusTooManyLinks:      "too_many_links",
	StatusMessageStructure:  "message_structure_error",
	StatusCommandWord:       "command_word_error",
	StatusDuplicateSequence: "duplicate_sequence",
	StatusIPAddress:         "ip_address_error",
	StatusAuthentication:    "authentication_error",
	StatusVersionTooHigh:    "version_too_high",
	StatusInvalidMsgType:    "invalid_msg_type",
	StatusInvalidPriority:   "invalid_priority",
	StatusInvalidFeeType:    "invalid_fee_type",
	StatusInvalidFeeCode:    "invalid_fee_code",
	StatusInvalidMsgFormat:  "invalid_msg_format",
	StatusInvalidTimeFormat: "invalid_time_format",
	StatusInvalidMsgLength:  "invalid_msg_length",
	StatusExpired:           "expired",
	StatusInvalidQueryType:  "invalid_query_type",
	StatusRouteError:        "route_error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// MsgIDLen is the width of a gateway message identifier.
const MsgIDLen = 10

// MsgID is the 10-octet gateway message identifier (gateway code, time and
// sequence, BCD coded). Its text form is the lowercase hex of the octets.
type MsgID [MsgIDLen]byte

func (m MsgID) String() string {
	return hex.EncodeToString(m[:])
}

func (m MsgID) IsZero() bool {
	return m == MsgID{}
}

func ParseMsgID(s string) (MsgID, error) {
	var id MsgID
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return id, fmt.Errorf("%w: msg id: %v", ErrInvalidField, err)
	}
	if len(raw) != MsgIDLen {
		return id, fmt.Errorf("%w: msg id length %d", ErrInvalidField, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Message formats (MsgFormat field).
const (
	FormatASCII  uint8 = 0
	FormatWrite  uint8 = 3
	FormatBinary uint8 = 4
	FormatUCS2   uint8 = 8
	FormatGBK    uint8 = 15
)

// Submit message types (MsgType field).
const (
	MsgTypeMO  uint8 = 0
	MsgTypeMT  uint8 = 6
	MsgTypeP2P uint8 = 7
)

// Login modes.
const (
	LoginModeSend     uint8 = 0
	LoginModeReceive  uint8 = 1
	LoginModeTransmit uint8 = 2
)

// ClientVersion30 is the protocol version advertised in Login.
const ClientVersion30 uint8 = 0x30

// Field widths of fixed octet strings.
const (
	clientIDLen   = 8
	authLen       = 16
	serviceIDLen  = 10
	feeTypeLen    = 2
	feeCodeLen    = 6
	fixedFeeLen   = 6
	timeLen       = 17
	termIDLen     = 21
	recvTimeLen   = 14
	reserveLen    = 8
	maxDestTerms  = 100
	maxContentLen = 255
)
