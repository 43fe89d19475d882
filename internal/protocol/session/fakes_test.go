package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
)

type fakeTransport struct {
	mu       sync.Mutex
	open     bool
	writes   [][]byte
	closes   int
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: true}
}

func (f *fakeTransport) Write(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrNotOpen
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), packet...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) messages(t *testing.T) []protocol.Message {
	t.Helper()
	f.mu.Lock()
	writes := append([][]byte(nil), f.writes...)
	f.mu.Unlock()
	out := make([]protocol.Message, 0, len(writes))
	for i, w := range writes {
		msg, err := protocol.Decode(w)
		if err != nil {
			t.Fatalf("write %d not decodable: %v", i, err)
		}
		out = append(out, msg)
	}
	return out
}

func (f *fakeTransport) requests(t *testing.T) []protocol.RequestID {
	t.Helper()
	msgs := f.messages(t)
	out := make([]protocol.RequestID, len(msgs))
	for i, m := range msgs {
		out[i] = m.RequestID()
	}
	return out
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	err        error
	transports []*fakeTransport
	recv       Receiver
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, recv Receiver) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	d.recv = recv
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// blockingDialer parks in Dial until ctx is cancelled.
type blockingDialer struct {
	entered chan struct{}
}

func (d *blockingDialer) Dial(ctx context.Context, _ string, _ Receiver) (Transport, error) {
	close(d.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedDialer parks in Dial until release is closed, ignoring ctx, then
// hands back a fresh fake transport.
type gatedDialer struct {
	entered chan struct{}
	release chan struct{}

	mu sync.Mutex
	t  *fakeTransport
}

func (d *gatedDialer) Dial(_ context.Context, _ string, _ Receiver) (Transport, error) {
	close(d.entered)
	<-d.release
	t := newFakeTransport()
	d.mu.Lock()
	d.t = t
	d.mu.Unlock()
	return t, nil
}

func (d *gatedDialer) transport() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 9, 16, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (m *recordingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *recordingMetrics) ConnectAttempt(_, result string) { m.inc("connect:" + result) }
func (m *recordingMetrics) FrameReceived(_ string, id protocol.RequestID) {
	m.inc("recv:" + id.String())
}
func (m *recordingMetrics) FrameSent(_ string, id protocol.RequestID) { m.inc("sent:" + id.String()) }
func (m *recordingMetrics) SendDropped(string)                        { m.inc("dropped") }
func (m *recordingMetrics) LinkDead(string)                           { m.inc("link_dead") }
func (m *recordingMetrics) HandlerFailed(_, category string)          { m.inc("handler:" + category) }
func (m *recordingMetrics) SetConnected(_ string, connected bool) {
	if connected {
		m.inc("connected")
	}
}

type harness struct {
	s       *Session
	dialer  *fakeDialer
	clock   *fakeClock
	metrics *recordingMetrics
}

// testConfig keeps the background watchdog parked so tests drive
// heartbeatTick themselves.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HealthyPoll = time.Hour
	cfg.DisconnectedPoll = time.Hour
	cfg.Backoff.Jitter = false
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer:  &fakeDialer{},
		clock:   newFakeClock(),
		metrics: newRecordingMetrics(),
	}
	s, err := New(Options{
		Name:      "gw-test",
		Host:      "127.0.0.1",
		Port:      8890,
		Account:   "10001000",
		Secret:    "s3cret",
		SrcTermID: "106900001234",
		Config:    testConfig(),
		Dialer:    h.dialer,
		Metrics:   h.metrics,
		Clock:     h.clock.Now,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.s = s
	t.Cleanup(s.Stop)
	return h
}

// establish connects and answers the Login with a successful LoginResp.
func (h *harness) establish(t *testing.T) *fakeTransport {
	t.Helper()
	if err := h.s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr := h.dialer.last()
	msgs := tr.messages(t)
	if len(msgs) == 0 {
		t.Fatalf("no login written")
	}
	login, ok := msgs[len(msgs)-1].(*protocol.Login)
	if !ok {
		t.Fatalf("last write is %s, want login", msgs[len(msgs)-1].RequestID())
	}
	h.deliver(t, &protocol.LoginResp{
		Header: protocol.Header{SequenceID: login.Header.SequenceID},
		Body:   protocol.LoginRespBody{Status: protocol.StatusSuccess, ServerVersion: protocol.ClientVersion30},
	})
	if !h.s.IsConnected() {
		t.Fatalf("session not connected after login_resp")
	}
	return tr
}

func (h *harness) deliver(t *testing.T, msg protocol.Message) {
	t.Helper()
	packet, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode %s: %v", msg.RequestID(), err)
	}
	h.s.OnFrame(packet)
}

var errDialRefused = errors.New("dial refused")
