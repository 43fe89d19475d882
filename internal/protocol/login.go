package protocol

import (
	"crypto/md5"
	"strconv"
	"time"
)

// LoginBody is the client credential handshake.
type LoginBody struct {
	ClientID      string
	Authenticator [authLen]byte
	LoginMode     uint8
	Timestamp     uint32
	ClientVersion uint8
}

type Login struct {
	Header Header
	Body   LoginBody
}

// NewLogin builds a Login whose authenticator is derived from secret and now.
func NewLogin(seq uint32, clientID, secret string, now time.Time) *Login {
	stamp := LoginTimestamp(now)
	ts, _ := strconv.ParseUint(stamp, 10, 32)
	return &Login{
		Header: Header{RequestID: RequestLogin, SequenceID: seq},
		Body: LoginBody{
			ClientID:      clientID,
			Authenticator: Authenticator(clientID, secret, stamp),
			LoginMode:     LoginModeTransmit,
			Timestamp:     uint32(ts),
			ClientVersion: ClientVersion30,
		},
	}
}

// LoginTimestamp formats now as MMDDHHMMSS.
func LoginTimestamp(now time.Time) string {
	return now.Format("0102150405")
}

// Authenticator computes MD5(ClientID + 7 NUL octets + secret + MMDDHHMMSS).
func Authenticator(clientID, secret, stamp string) [authLen]byte {
	buf := make([]byte, 0, len(clientID)+7+len(secret)+len(stamp))
	buf = append(buf, clientID...)
	buf = append(buf, make([]byte, 7)...)
	buf = append(buf, secret...)
	buf = append(buf, stamp...)
	return md5.Sum(buf)
}

func (m *Login) Head() *Header        { return &m.Header }
func (m *Login) RequestID() RequestID { return RequestLogin }

func (m *Login) encodeBody(w *writer) error {
	if err := w.octets("client_id", m.Body.ClientID, clientIDLen); err != nil {
		return err
	}
	w.raw(m.Body.Authenticator[:])
	w.u8(m.Body.LoginMode)
	w.u32(m.Body.Timestamp)
	w.u8(m.Body.ClientVersion)
	return nil
}

func (m *Login) decodeBody(r *reader) {
	m.Body.ClientID = r.octets("client_id", clientIDLen)
	copy(m.Body.Authenticator[:], r.take("authenticator", authLen))
	m.Body.LoginMode = r.u8("login_mode")
	m.Body.Timestamp = r.u32("timestamp")
	m.Body.ClientVersion = r.u8("client_version")
}

// LoginRespBody carries the gateway's verdict on a Login.
type LoginRespBody struct {
	Status        Status
	Authenticator [authLen]byte
	ServerVersion uint8
}

type LoginResp struct {
	Header Header
	Body   LoginRespBody
}

func (m *LoginResp) Head() *Header        { return &m.Header }
func (m *LoginResp) RequestID() RequestID { return RequestLoginResp }

func (m *LoginResp) encodeBody(w *writer) error {
	w.u32(uint32(m.Body.Status))
	w.raw(m.Body.Authenticator[:])
	w.u8(m.Body.ServerVersion)
	return nil
}

func (m *LoginResp) decodeBody(r *reader) {
	m.Body.Status = Status(r.u32("status"))
	copy(m.Body.Authenticator[:], r.take("authenticator", authLen))
	m.Body.ServerVersion = r.u8("server_version")
}
