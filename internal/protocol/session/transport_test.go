package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/frame"
	"github.com/danmuck/smgpctl/internal/testutil/testlog"
)

// fakeGateway accepts one client and exposes its packets to the test.
type fakeGateway struct {
	ln    net.Listener
	conns chan net.Conn
}

func startFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	g := &fakeGateway{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			g.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return g
}

func (g *fakeGateway) port(t *testing.T) int {
	t.Helper()
	_, raw, err := net.SplitHostPort(g.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return port
}

func (g *fakeGateway) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-g.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("client never connected")
		return nil
	}
}

func readMessage(t *testing.T, r io.Reader) protocol.Message {
	t.Helper()
	packet, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("gateway read: %v", err)
	}
	msg, err := protocol.Decode(packet)
	if err != nil {
		t.Fatalf("gateway decode: %v", err)
	}
	return msg
}

func writeMessage(t *testing.T, w io.Writer, msg protocol.Message) {
	t.Helper()
	packet, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("gateway encode: %v", err)
	}
	if _, err := w.Write(packet); err != nil {
		t.Fatalf("gateway write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTCPSessionEndToEnd(t *testing.T) {
	testlog.Start(t)
	gw := startFakeGateway(t)
	s, err := New(Options{
		Name:    "gw-tcp",
		Host:    "127.0.0.1",
		Port:    gw.port(t),
		Account: "10001000",
		Secret:  "s3cret",
		Config:  testConfig(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Stop()

	reports := make(chan protocol.ReportMessage, 1)
	s.AddReportHandler(ReportHandlerFunc(func(r protocol.ReportMessage) error {
		reports <- r
		return nil
	}))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := gw.accept(t)
	reader := bufio.NewReader(conn)

	login, ok := readMessage(t, reader).(*protocol.Login)
	if !ok {
		t.Fatalf("first packet is not a login")
	}
	if login.Body.ClientID != "10001000" || login.Body.ClientVersion != protocol.ClientVersion30 {
		t.Fatalf("unexpected login: %+v", login.Body)
	}
	writeMessage(t, conn, &protocol.LoginResp{Header: protocol.Header{SequenceID: login.Header.SequenceID}})
	waitFor(t, "established", s.IsConnected)

	report := reportDeliver(555)
	writeMessage(t, conn, report)
	select {
	case r := <-reports:
		if r.Status.Stat != "DELIVRD" {
			t.Fatalf("unexpected report: %+v", r.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("report handler not called")
	}
	resp, ok := readMessage(t, reader).(*protocol.DeliverResp)
	if !ok || resp.Header.SequenceID != 555 || resp.Body.MsgID != report.Body.MsgID {
		t.Fatalf("unexpected deliver_resp: %+v", resp)
	}

	s.Stop()
	if _, ok := readMessage(t, reader).(*protocol.Exit); !ok {
		t.Fatalf("expected exit on stop")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := frame.ReadFrame(reader, frame.DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after stop, got %v", err)
	}
}

func TestTCPRemoteCloseDetected(t *testing.T) {
	testlog.Start(t)
	gw := startFakeGateway(t)
	s, err := New(Options{
		Name:    "gw-tcp-close",
		Host:    "127.0.0.1",
		Port:    gw.port(t),
		Account: "10001000",
		Config:  testConfig(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Stop()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := gw.accept(t)
	reader := bufio.NewReader(conn)
	login := readMessage(t, reader)
	writeMessage(t, conn, &protocol.LoginResp{Header: protocol.Header{SequenceID: login.Head().SequenceID}})
	waitFor(t, "established", s.IsConnected)

	_ = conn.Close()
	waitFor(t, "disconnect", func() bool { return !s.IsConnected() && s.State() == StateDisconnected })
	if s.transportOpen() {
		t.Fatalf("transport should be detached after remote close")
	}
}

func TestTCPDialerRejectsOversizedFrames(t *testing.T) {
	testlog.Start(t)
	gw := startFakeGateway(t)
	cfg := testConfig()
	cfg.MaxPacketSize = 64
	s, err := New(Options{Name: "gw-tcp-big", Host: "127.0.0.1", Port: gw.port(t), Account: "a", Config: cfg})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Stop()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := gw.accept(t)
	reader := bufio.NewReader(conn)
	readMessage(t, reader)

	big := replyDeliver(1)
	big.Body.Content = make([]byte, 200)
	writeMessage(t, conn, big)
	waitFor(t, "link drop", func() bool { return !s.transportOpen() })
}
