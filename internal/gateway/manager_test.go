package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/smgpctl/internal/config"
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/danmuck/smgpctl/internal/testutil/testlog"
)

type fakeTransport struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
}

func (f *fakeTransport) Write(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.writes = append(f.writes, append([]byte(nil), packet...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeTransport) messages(t *testing.T) []protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, 0, len(f.writes))
	for _, w := range f.writes {
		msg, err := protocol.Decode(w)
		if err != nil {
			t.Fatalf("decode write: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// fakeDialer fails the first failures dials per address.
type fakeDialer struct {
	mu         sync.Mutex
	failures   int
	dials      map[string]int
	transports map[string]*fakeTransport
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{
		failures:   failures,
		dials:      make(map[string]int),
		transports: make(map[string]*fakeTransport),
	}
}

func (d *fakeDialer) Dial(_ context.Context, address string, _ session.Receiver) (session.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[address]++
	if d.dials[address] <= d.failures {
		return nil, errors.New("connection refused")
	}
	tr := &fakeTransport{}
	d.transports[address] = tr
	return tr, nil
}

func (d *fakeDialer) dialCount(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[address]
}

func (d *fakeDialer) transport(address string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[address]
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Session.HealthyPoll = time.Hour
	cfg.Session.DisconnectedPoll = time.Hour
	cfg.Session.Backoff = session.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	cfg.Gateways = []config.GatewayConfig{
		{Name: "ismg-a", Host: "127.0.0.1", Port: 8890, Account: "10001000", Secret: "a", SrcTermID: "10690001", ServiceID: "SVC-A"},
		{Name: "ismg-b", Host: "127.0.0.1", Port: 8891, Account: "10002000", Secret: "b"},
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewManagerBuildsSessionsInOrder(t *testing.T) {
	testlog.Start(t)
	m, err := NewManager(testConfig(), Options{Dialer: newFakeDialer(0)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Stop()

	names := m.Names()
	if len(names) != 2 || names[0] != "ismg-a" || names[1] != "ismg-b" {
		t.Fatalf("unexpected names %v", names)
	}
	a, ok := m.Lookup("ismg-a")
	if !ok || a.Address() != "127.0.0.1:8890" || a.SrcTermID() != "10690001" {
		t.Fatalf("unexpected session for ismg-a")
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Fatalf("lookup of unknown gateway succeeded")
	}
	if m.Sequences().For("ismg-a").Last() != 0 {
		t.Fatalf("sequence should be untouched before connect")
	}
	a.NextSequenceID()
	if m.Sequences().For("ismg-a").Last() != 1 {
		t.Fatalf("sessions must draw from the manager registry")
	}
}

func TestNewManagerRejectsInvalidGateway(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.Gateways[1].Account = ""
	if _, err := NewManager(cfg, Options{Dialer: newFakeDialer(0)}); !errors.Is(err, session.ErrAccountRequired) {
		t.Fatalf("expected ErrAccountRequired, got %v", err)
	}
	cfg = testConfig()
	cfg.Gateways[1].Name = cfg.Gateways[0].Name
	if _, err := NewManager(cfg, Options{Dialer: newFakeDialer(0)}); err == nil {
		t.Fatalf("expected duplicate gateway rejection")
	}
}

func TestStartConnectsEveryGatewayWithBackoff(t *testing.T) {
	testlog.Start(t)
	dialer := newFakeDialer(2)
	m, err := NewManager(testConfig(), Options{Dialer: dialer})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Stop()

	m.Start(context.Background())
	m.Start(context.Background())
	for _, addr := range []string{"127.0.0.1:8890", "127.0.0.1:8891"} {
		waitFor(t, "login on "+addr, func() bool {
			tr := dialer.transport(addr)
			return tr != nil && tr.writeCount() > 0
		})
		msgs := dialer.transport(addr).messages(t)
		if len(msgs) != 1 || msgs[0].RequestID() != protocol.RequestLogin {
			t.Fatalf("%s: expected one login, got %d packets", addr, len(msgs))
		}
		if dialer.dialCount(addr) != 3 {
			t.Fatalf("%s: expected 3 dials, got %d", addr, dialer.dialCount(addr))
		}
	}

	time.Sleep(20 * time.Millisecond)
	if dialer.dialCount("127.0.0.1:8890") != 3 {
		t.Fatalf("connect loop kept dialing after success")
	}
}

func TestStopIsIdempotentAndStopsSessions(t *testing.T) {
	testlog.Start(t)
	dialer := newFakeDialer(1 << 30)
	m, err := NewManager(testConfig(), Options{Dialer: dialer})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.Start(context.Background())
	waitFor(t, "retries", func() bool { return dialer.dialCount("127.0.0.1:8890") >= 2 })

	m.Stop()
	m.Stop()
	for _, st := range m.Status() {
		if st.Running || st.State != string(session.StateStopped) {
			t.Fatalf("%s still running after stop: %+v", st.Name, st)
		}
	}
	after := dialer.dialCount("127.0.0.1:8890")
	time.Sleep(20 * time.Millisecond)
	if dialer.dialCount("127.0.0.1:8890") != after {
		t.Fatalf("dials continued after stop")
	}
	m.Start(context.Background())
	if dialer.dialCount("127.0.0.1:8890") != after {
		t.Fatalf("start after stop must not dial")
	}
}

func TestStatusReflectsLogin(t *testing.T) {
	testlog.Start(t)
	dialer := newFakeDialer(0)
	m, err := NewManager(testConfig(), Options{Dialer: dialer})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Stop()

	s, _ := m.Lookup("ismg-a")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	st, err := m.StatusOf("ismg-a")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Connected || st.State != string(session.StateAuthenticating) || st.LastSequenceID != 1 {
		t.Fatalf("unexpected status before login_resp: %+v", st)
	}

	resp, err := protocol.Encode(&protocol.LoginResp{Header: protocol.Header{SequenceID: 1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.OnFrame(resp)
	st, _ = m.StatusOf("ismg-a")
	if !st.Connected || st.State != string(session.StateEstablished) || st.LastConnect.IsZero() {
		t.Fatalf("unexpected status after login_resp: %+v", st)
	}
	if _, err := m.StatusOf("nope"); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected ErrUnknownGateway, got %v", err)
	}
}

func TestSubmitAppliesGatewayServiceID(t *testing.T) {
	testlog.Start(t)
	dialer := newFakeDialer(0)
	m, err := NewManager(testConfig(), Options{Dialer: dialer})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Stop()

	var results int
	m.OnSubmitResult(session.SubmitResultHandlerFunc(func(*protocol.SubmitResp) error {
		results++
		return nil
	}))

	seqs, err := m.Submit(context.Background(), "ismg-a", protocol.SubmitRequest{
		DestTermIDs: []string{"13800000000"},
		Text:        "hello",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(seqs) != 1 {
		t.Fatalf("expected one segment, got %d", len(seqs))
	}
	msgs := dialer.transport("127.0.0.1:8890").messages(t)
	submit, ok := msgs[len(msgs)-1].(*protocol.Submit)
	if !ok {
		t.Fatalf("last packet is not a submit")
	}
	if submit.Body.ServiceID != "SVC-A" || submit.Body.SrcTermID != "10690001" {
		t.Fatalf("gateway defaults not applied: service=%q src=%q", submit.Body.ServiceID, submit.Body.SrcTermID)
	}

	s, _ := m.Lookup("ismg-a")
	resp, _ := protocol.Encode(&protocol.SubmitResp{Header: protocol.Header{SequenceID: seqs[0]}})
	s.OnFrame(resp)
	if results != 1 {
		t.Fatalf("expected manager-registered submit handler to run")
	}

	if _, err := m.Submit(context.Background(), "nope", protocol.SubmitRequest{}); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected ErrUnknownGateway, got %v", err)
	}
}
