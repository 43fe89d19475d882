package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// Options configures one client session.
type Options struct {
	Name      string
	Host      string
	Port      int
	Account   string
	Secret    string
	SrcTermID string
	Config    Config
	// Sequences supplies the per-name Sequence. A private registry is used
	// when nil.
	Sequences *SequenceRegistry
	// Dialer defaults to a TCPDialer built from Config.
	Dialer  Dialer
	Metrics Metrics
	Clock   func() time.Time
}

// Timestamps is a snapshot of the session's liveness clocks. The watchdog
// decides on LastConnect and LastActiveTest; LastResponse is any readable
// inbound frame and is informational.
type Timestamps struct {
	LastConnect    time.Time
	LastResponse   time.Time
	LastActiveTest time.Time
	LastAttempt    time.Time
}

// Session is one persistent, authenticated link to an SMGP gateway.
type Session struct {
	name      string
	host      string
	port      int
	account   string
	secret    string
	srcTermID string

	cfg     Config
	seq     *Sequence
	dialer  Dialer
	metrics Metrics
	now     func() time.Time

	handlers handlerRegistry
	pending  *PendingSubmits
	fsm      *fsm.FSM

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	connectMu sync.Mutex
	batchMu   sync.Mutex

	mu               sync.RWMutex
	transport        Transport
	connected        bool
	lastConnTs       time.Time
	lastRespTs       time.Time
	lastActiveTestTs time.Time
	lastAttemptTs    time.Time

	watchdogOnce    sync.Once
	watchdogStarted atomic.Bool
	watchdogDone    chan struct{}
}

func New(opts Options) (*Session, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if strings.TrimSpace(opts.Host) == "" || opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: client=%q host=%q port=%d", ErrAddressRequired, name, opts.Host, opts.Port)
	}
	if strings.TrimSpace(opts.Account) == "" {
		return nil, fmt.Errorf("%w: client=%q", ErrAccountRequired, name)
	}
	cfg := opts.Config.WithDefaults()
	seqs := opts.Sequences
	if seqs == nil {
		seqs = NewSequenceRegistry()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewTCPDialer(cfg)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		name:         name,
		host:         strings.TrimSpace(opts.Host),
		port:         opts.Port,
		account:      opts.Account,
		secret:       opts.Secret,
		srcTermID:    opts.SrcTermID,
		cfg:          cfg,
		seq:          seqs.For(name),
		dialer:       dialer,
		metrics:      metrics,
		now:          clock,
		pending:      NewPendingSubmits(),
		fsm:          newStateMachine(name),
		ctx:          ctx,
		cancel:       cancel,
		watchdogDone: make(chan struct{}),
	}
	s.running.Store(true)
	return s, nil
}

// Name is the client name; it also keys the session's Sequence.
func (s *Session) Name() string { return s.name }

// Host is the gateway host as configured.
func (s *Session) Host() string { return s.host }

// Port is the gateway TCP port.
func (s *Session) Port() int { return s.port }

// Account is the ClientID sent in Login.
func (s *Session) Account() string { return s.account }

// SrcTermID is the default source terminal id for submits.
func (s *Session) SrcTermID() string { return s.srcTermID }

// Config returns the session configuration with defaults applied.
func (s *Session) Config() Config { return s.cfg }

// Address is host:port as dialed.
func (s *Session) Address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// NextSequenceID draws from the client's shared Sequence.
func (s *Session) NextSequenceID() uint32 {
	return s.seq.Next()
}

// Pending exposes Submits still waiting for a SubmitResp.
func (s *Session) Pending() *PendingSubmits {
	return s.pending
}

// IsConnected reports whether the gateway accepted our Login on the current
// transport.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsRunning is false once Stop has been called.
func (s *Session) IsRunning() bool {
	return s.running.Load()
}

// Timestamps returns a consistent snapshot of the liveness clocks.
func (s *Session) Timestamps() Timestamps {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Timestamps{
		LastConnect:    s.lastConnTs,
		LastResponse:   s.lastRespTs,
		LastActiveTest: s.lastActiveTestTs,
		LastAttempt:    s.lastAttemptTs,
	}
}

func (s *Session) currentTransport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

func (s *Session) transportOpen() bool {
	t := s.currentTransport()
	return t != nil && t.IsOpen()
}

// Connect dials the gateway and sends Login. It is a no-op while the current
// transport is open. Authentication completes asynchronously when the
// LoginResp arrives. Connect also starts the heartbeat watchdog the first
// time it runs.
func (s *Session) Connect(ctx context.Context) error {
	if !s.running.Load() {
		return ErrStopped
	}
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if !s.running.Load() {
		return ErrStopped
	}
	s.startWatchdog()
	if s.transportOpen() {
		return nil
	}

	s.fire(eventConnect)
	s.mu.Lock()
	s.lastAttemptTs = s.now()
	s.mu.Unlock()

	addr := s.Address()
	dialCtx, cancel := context.WithCancel(ctx)
	stopDial := context.AfterFunc(s.ctx, cancel)
	t, err := s.dialer.Dial(dialCtx, addr, s)
	stopDial()
	cancel()
	if err != nil {
		s.metrics.ConnectAttempt(s.name, "dial_error")
		s.fire(eventDialFailed)
		log.Warn().Str("client", s.name).Str("addr", addr).Err(err).Msg("session.Session.Connect dial failed")
		if !s.running.Load() {
			return ErrStopped
		}
		return fmt.Errorf("session: dial %s: %w", addr, err)
	}
	if !s.running.Load() {
		_ = t.Close()
		return ErrStopped
	}

	s.mu.Lock()
	s.transport = t
	s.connected = false
	s.mu.Unlock()
	s.fire(eventDialed)
	s.metrics.ConnectAttempt(s.name, "dialed")

	login := protocol.NewLogin(s.seq.Next(), s.account, s.secret, s.now())
	login.Body.LoginMode = s.cfg.LoginMode
	if err := s.writeMessage(t, login); err != nil {
		log.Warn().Str("client", s.name).Str("addr", addr).Err(err).Msg("session.Session.Connect login write failed")
		s.detach(t)
		_ = t.Close()
		s.fire(eventClosed)
		return fmt.Errorf("session: send login: %w", err)
	}
	log.Info().
		Str("client", s.name).
		Str("addr", addr).
		Uint32("seq", login.Header.SequenceID).
		Msg("session.Session.Connect login sent")
	return nil
}

// Reconnect connects only when the current transport is not open.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.transportOpen() {
		return nil
	}
	return s.Connect(ctx)
}

// Close drops the current transport. The session stays running and the
// watchdog will reconnect.
func (s *Session) Close() error {
	t := s.detach(nil)
	s.fire(eventClosed)
	if t == nil {
		return nil
	}
	log.Debug().Str("client", s.name).Msg("session.Session.Close")
	return t.Close()
}

// detach clears the current transport when it is t (or unconditionally when t
// is nil) and returns the transport that was detached.
func (s *Session) detach(t Transport) Transport {
	s.mu.Lock()
	cur := s.transport
	if cur == nil || (t != nil && cur != t) {
		s.mu.Unlock()
		return nil
	}
	s.transport = nil
	s.connected = false
	s.mu.Unlock()
	s.metrics.SetConnected(s.name, false)
	return cur
}

// Stop ends the session: no further reconnects, an in-flight dial is
// cancelled, Exit is sent best effort and the transport is closed. Stop is
// idempotent.
func (s *Session) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	// A Connect past its running check may still install a transport; wait
	// for it so the close below sees that transport.
	s.connectMu.Lock()
	if t := s.currentTransport(); t != nil && t.IsOpen() {
		if err := s.writeMessage(t, protocol.NewExit(s.seq.Next())); err != nil {
			log.Debug().Str("client", s.name).Err(err).Msg("session.Session.Stop exit not sent")
		}
	}
	_ = s.Close()
	s.connectMu.Unlock()
	s.fire(eventStop)
	if s.watchdogStarted.Load() {
		<-s.watchdogDone
	}
	log.Info().Str("client", s.name).Msg("session.Session.Stop")
}

// OnClosed implements Receiver. Closes of transports that are no longer
// current are ignored.
func (s *Session) OnClosed(t Transport, err error) {
	if s.detach(t) == nil {
		return
	}
	s.fire(eventClosed)
	event := log.Warn()
	if err == nil {
		event = log.Info()
	}
	event.Str("client", s.name).Err(err).Msg("session.Session link closed")
}

func (s *Session) writeMessage(t Transport, msg protocol.Message) error {
	packet, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := t.Write(packet); err != nil {
		return err
	}
	s.metrics.FrameSent(s.name, msg.RequestID())
	return nil
}
