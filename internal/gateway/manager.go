package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/smgpctl/internal/config"
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrUnknownGateway = errors.New("gateway: unknown gateway")

// Options carries collaborators shared by every session the Manager builds.
type Options struct {
	Dialer  session.Dialer
	Metrics session.Metrics
	Clock   func() time.Time
}

// Status is a point-in-time view of one session.
type Status struct {
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Account        string    `json:"account"`
	State          string    `json:"state"`
	Connected      bool      `json:"connected"`
	Running        bool      `json:"running"`
	Pending        int       `json:"pending_submits"`
	LastSequenceID uint32    `json:"last_sequence_id"`
	LastConnect    time.Time `json:"last_connect,omitzero"`
	LastResponse   time.Time `json:"last_response,omitzero"`
	LastActiveTest time.Time `json:"last_active_test,omitzero"`
}

type entry struct {
	gateway config.GatewayConfig
	session *session.Session
}

// Manager owns one Session per configured gateway and the sequence registry
// they share.
type Manager struct {
	cfg  session.Config
	seqs *session.SequenceRegistry

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	wg      sync.WaitGroup
	stopMu  sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewManager(cfg config.Config, opts Options) (*Manager, error) {
	m := &Manager{
		cfg:     cfg.Session,
		seqs:    session.NewSequenceRegistry(),
		entries: make(map[string]*entry, len(cfg.Gateways)),
	}
	for _, gw := range cfg.Gateways {
		if _, dup := m.entries[gw.Name]; dup {
			m.stopSessions()
			return nil, fmt.Errorf("gateway %q configured twice", gw.Name)
		}
		s, err := session.New(session.Options{
			Name:      gw.Name,
			Host:      gw.Host,
			Port:      gw.Port,
			Account:   gw.Account,
			Secret:    gw.Secret,
			SrcTermID: gw.SrcTermID,
			Config:    cfg.Session,
			Sequences: m.seqs,
			Dialer:    opts.Dialer,
			Metrics:   opts.Metrics,
			Clock:     opts.Clock,
		})
		if err != nil {
			m.stopSessions()
			return nil, fmt.Errorf("gateway %q: %w", gw.Name, err)
		}
		m.entries[gw.Name] = &entry{gateway: gw, session: s}
		m.order = append(m.order, gw.Name)
	}
	return m, nil
}

// Start launches one connect loop per session and returns immediately. A
// loop retries with the session backoff until the first Connect succeeds;
// after that the session watchdog owns reconnection.
func (m *Manager) Start(ctx context.Context) {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stopped || m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	for _, e := range m.snapshot() {
		m.wg.Add(1)
		go func(s *session.Session) {
			defer m.wg.Done()
			m.connectLoop(ctx, s)
		}(e.session)
	}
	log.Info().Int("gateways", len(m.order)).Msg("gateway.Manager.Start")
}

func (m *Manager) connectLoop(ctx context.Context, s *session.Session) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		err := s.Connect(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, session.ErrStopped) || ctx.Err() != nil {
			return
		}
		delay := m.cfg.Backoff.Delay(attempt, rng)
		log.Warn().
			Err(err).
			Str("client", s.Name()).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("gateway.Manager.connectLoop connect failed")
		if err := m.cfg.Backoff.Sleep(ctx, attempt, rng); err != nil {
			return
		}
	}
}

// Stop stops every session and waits for the connect loops. It is safe to
// call more than once.
func (m *Manager) Stop() {
	m.stopMu.Lock()
	if m.stopped {
		m.stopMu.Unlock()
		return
	}
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	m.stopMu.Unlock()

	m.stopSessions()
	m.wg.Wait()
	log.Info().Msg("gateway.Manager.Stop")
}

func (m *Manager) stopSessions() {
	for _, e := range m.snapshot() {
		e.session.Stop()
	}
}

func (m *Manager) snapshot() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.entries[name])
	}
	return out
}

func (m *Manager) Lookup(name string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) Sequences() *session.SequenceRegistry {
	return m.seqs
}

func (m *Manager) Status() []Status {
	entries := m.snapshot()
	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.statusOf(e.session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) StatusOf(name string) (Status, error) {
	s, ok := m.Lookup(name)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return m.statusOf(s), nil
}

func (m *Manager) statusOf(s *session.Session) Status {
	ts := s.Timestamps()
	return Status{
		Name:           s.Name(),
		Address:        s.Address(),
		Account:        s.Account(),
		State:          string(s.State()),
		Connected:      s.IsConnected(),
		Running:        s.IsRunning(),
		Pending:        s.Pending().Len(),
		LastSequenceID: m.seqs.For(s.Name()).Last(),
		LastConnect:    ts.LastConnect,
		LastResponse:   ts.LastResponse,
		LastActiveTest: ts.LastActiveTest,
	}
}

// Submit sends req through the named gateway. An empty ServiceID falls back
// to the gateway's configured one.
func (m *Manager) Submit(ctx context.Context, name string, req protocol.SubmitRequest) ([]uint32, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	if req.ServiceID == "" {
		req.ServiceID = e.gateway.ServiceID
	}
	return e.session.SubmitText(ctx, req)
}

// OnReport registers h on every session.
func (m *Manager) OnReport(h session.ReportHandler) {
	for _, e := range m.snapshot() {
		e.session.AddReportHandler(h)
	}
}

// OnReply registers h on every session.
func (m *Manager) OnReply(h session.ReplyHandler) {
	for _, e := range m.snapshot() {
		e.session.AddReplyHandler(h)
	}
}

// OnSubmitResult registers h on every session.
func (m *Manager) OnSubmitResult(h session.SubmitResultHandler) {
	for _, e := range m.snapshot() {
		e.session.AddSubmitResultHandler(h)
	}
}
