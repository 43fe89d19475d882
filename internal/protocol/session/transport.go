package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol/frame"
)

// Transport is one open byte link to a gateway.
type Transport interface {
	// Write sends one complete packet.
	Write(packet []byte) error
	Close() error
	IsOpen() bool
}

// Receiver is notified of inbound packets and link loss. Both callbacks run on
// the transport's read goroutine.
type Receiver interface {
	OnFrame(packet []byte)
	// OnClosed fires once per transport. err is nil for a local Close or a
	// clean remote EOF.
	OnClosed(t Transport, err error)
}

// Dialer opens transports. Dial must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, address string, recv Receiver) (Transport, error)
}

// TCPDialer dials plain TCP and frames packets by their 4-byte length prefix.
type TCPDialer struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Limits         frame.Limits
}

// NewTCPDialer builds a dialer from session config.
func NewTCPDialer(cfg Config) TCPDialer {
	return TCPDialer{
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Limits:         frame.Limits{MaxFrameBytes: cfg.MaxPacketSize},
	}
}

func (d TCPDialer) Dial(ctx context.Context, address string, recv Receiver) (Transport, error) {
	dialer := net.Dialer{Timeout: d.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	t := &tcpTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       d.Limits,
		writeTimeout: d.WriteTimeout,
	}
	t.open.Store(true)
	go t.readLoop(recv)
	return t, nil
}

type tcpTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	writeMu   sync.Mutex
	open      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (t *tcpTransport) Write(packet []byte) error {
	if !t.open.Load() {
		return ErrNotOpen
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := frame.WriteFrame(t.conn, packet, t.limits); err != nil {
		return err
	}
	return nil
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.open.Store(false)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *tcpTransport) IsOpen() bool {
	return t.open.Load()
}

func (t *tcpTransport) readLoop(recv Receiver) {
	for {
		packet, err := frame.ReadFrame(t.reader, t.limits)
		if err != nil {
			localClose := !t.open.Load()
			_ = t.Close()
			if localClose || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			recv.OnClosed(t, err)
			return
		}
		recv.OnFrame(packet)
	}
}
