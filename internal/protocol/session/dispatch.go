package session

import (
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// OnFrame implements Receiver: it decodes one inbound packet, routes it by
// RequestID and sends any mandatory reply. Undecodable packets are logged and
// dropped.
func (s *Session) OnFrame(packet []byte) {
	head, err := protocol.DecodeHeader(packet)
	if err != nil {
		log.Warn().Str("client", s.name).Int("bytes", len(packet)).Err(err).Msg("session.Session.OnFrame drop")
		return
	}
	s.touchResponse()

	msg, err := protocol.Decode(packet)
	if err != nil {
		log.Warn().
			Str("client", s.name).
			Str("request", head.RequestID.String()).
			Uint32("seq", head.SequenceID).
			Err(err).
			Msg("session.Session.OnFrame drop")
		return
	}
	s.metrics.FrameReceived(s.name, msg.RequestID())

	switch m := msg.(type) {
	case *protocol.LoginResp:
		s.onLoginResp(m)
	case *protocol.SubmitResp:
		s.onSubmitResp(m)
	case *protocol.Deliver:
		s.onDeliver(m)
	case *protocol.ActiveTest:
		if err := s.SendActiveTestResp(s.ctx); err != nil {
			log.Warn().Str("client", s.name).Err(err).Msg("session.Session.OnFrame active_test_resp not sent")
		}
	case *protocol.ActiveTestResp:
		s.mu.Lock()
		s.lastActiveTestTs = s.now()
		s.mu.Unlock()
	case *protocol.Exit:
		s.onExit(m)
	case *protocol.ExitResp:
		log.Info().Str("client", s.name).Uint32("seq", m.Header.SequenceID).Msg("session.Session exit acknowledged")
	default:
		log.Debug().
			Str("client", s.name).
			Str("request", msg.RequestID().String()).
			Msg("session.Session.OnFrame unhandled request")
	}
}

func (s *Session) touchResponse() {
	s.mu.Lock()
	s.lastRespTs = s.now()
	s.mu.Unlock()
}

func (s *Session) onLoginResp(m *protocol.LoginResp) {
	if m.Body.Status != protocol.StatusSuccess {
		err := &AuthError{Client: s.name, Status: m.Body.Status}
		s.metrics.ConnectAttempt(s.name, "rejected")
		s.fire(eventRejected)
		log.Error().Str("client", s.name).Uint32("seq", m.Header.SequenceID).Err(err).Msg("session.Session login rejected")
		return
	}
	s.mu.Lock()
	s.connected = true
	s.lastConnTs = s.now()
	s.mu.Unlock()
	s.metrics.SetConnected(s.name, true)
	s.metrics.ConnectAttempt(s.name, "established")
	s.fire(eventLogin)
	log.Info().
		Str("client", s.name).
		Str("addr", s.Address()).
		Uint8("server_version", m.Body.ServerVersion).
		Msg("session.Session login accepted")
}

func (s *Session) onSubmitResp(m *protocol.SubmitResp) {
	if item, ok := s.pending.Resolve(m.Header.SequenceID); ok {
		log.Debug().
			Str("client", s.name).
			Uint32("seq", m.Header.SequenceID).
			Str("msg_id", m.Body.MsgID.String()).
			Stringer("status", m.Body.Status).
			Dur("latency", s.now().Sub(item.SentAt)).
			Msg("session.Session submit resolved")
	}
	s.fanOutSubmitResult(m)
}

func (s *Session) onDeliver(m *protocol.Deliver) {
	if m.IsReport() {
		// An unparsed report still reaches the handlers with its raw
		// Content; the DeliverResp below stops the gateway from resending it.
		report, err := m.Report()
		if err != nil {
			log.Warn().
				Str("client", s.name).
				Str("msg_id", m.Body.MsgID.String()).
				Err(err).
				Msg("session.Session report not parsed")
		}
		s.fanOutReport(report)
	} else {
		s.fanOutReply(m.Reply())
	}
	if err := s.SendDeliverResp(s.ctx, m.Header.SequenceID, m.Body.MsgID); err != nil {
		log.Warn().
			Str("client", s.name).
			Uint32("seq", m.Header.SequenceID).
			Err(err).
			Msg("session.Session deliver_resp not sent")
	}
}

func (s *Session) onExit(m *protocol.Exit) {
	if err := s.SendMessage(s.ctx, protocol.NewExitResp(m.Header.SequenceID)); err != nil {
		log.Warn().Str("client", s.name).Err(err).Msg("session.Session exit_resp not sent")
	}
	log.Info().Str("client", s.name).Msg("session.Session gateway requested exit")
	_ = s.Close()
}
