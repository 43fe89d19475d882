package session

import (
	"context"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (s *Session) startWatchdog() {
	s.watchdogOnce.Do(func() {
		s.watchdogStarted.Store(true)
		go s.watchdog()
	})
}

func (s *Session) watchdog() {
	defer close(s.watchdogDone)
	timer := time.NewTimer(s.cfg.DisconnectedPoll)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(s.heartbeatTick(s.ctx))
	}
}

// heartbeatTick runs one watchdog decision and returns the wait before the
// next one.
//
//   - not authenticated: recover a closed link (or a login that never
//     completed within DeadAfter), then wait DisconnectedPoll
//   - no ActiveTestResp and no login for longer than DeadAfter: link dead,
//     close and reconnect, no wait
//   - no ActiveTestResp for longer than HeartbeatInterval: probe with
//     ActiveTest, wait HeartbeatInterval
//   - otherwise wait HealthyPoll
func (s *Session) heartbeatTick(ctx context.Context) time.Duration {
	if !s.running.Load() {
		return s.cfg.DisconnectedPoll
	}
	now := s.now()
	if n := s.pending.Prune(now.Add(-s.cfg.DeadAfter)); n > 0 {
		log.Warn().Str("client", s.name).Int("count", n).Msg("session.Session submits expired without response")
	}

	ts := s.Timestamps()
	if !s.IsConnected() {
		open := s.transportOpen()
		sinceAttempt := now.Sub(ts.LastAttempt)
		if (!open && sinceAttempt >= s.cfg.DisconnectedPoll) || (open && sinceAttempt > s.cfg.DeadAfter) {
			s.recover(ctx, "not_connected")
		}
		return s.cfg.DisconnectedPoll
	}

	// Only ActiveTestResp counts as a heartbeat. Other inbound traffic does
	// not prove the gateway still answers probes.
	sinceHeartbeat := now.Sub(ts.LastActiveTest)
	sinceConnect := now.Sub(ts.LastConnect)
	if sinceHeartbeat > s.cfg.DeadAfter && sinceConnect > s.cfg.DeadAfter {
		s.metrics.LinkDead(s.name)
		s.fire(eventLinkDead)
		log.Warn().
			Str("client", s.name).
			Dur("since_response", sinceHeartbeat).
			Dur("since_connect", sinceConnect).
			Err(ErrLinkDead).
			Msg("session.Session.heartbeat")
		s.recover(ctx, "link_dead")
		return 0
	}
	if sinceHeartbeat > s.cfg.HeartbeatInterval {
		s.probe()
		return s.cfg.HeartbeatInterval
	}
	return s.cfg.HealthyPoll
}

func (s *Session) recover(ctx context.Context, reason string) {
	_ = s.Close()
	if err := s.Reconnect(ctx); err != nil {
		log.Warn().Str("client", s.name).Str("reason", reason).Err(err).Msg("session.Session.heartbeat reconnect failed")
	}
}

// probe sends one ActiveTest on the current transport without triggering a
// reconnect; a failed probe is left to the dead-link rule.
func (s *Session) probe() {
	t := s.currentTransport()
	if t == nil || !t.IsOpen() {
		return
	}
	if err := s.writeMessage(t, protocol.NewActiveTest(s.seq.Next())); err != nil {
		log.Debug().Str("client", s.name).Err(err).Msg("session.Session.heartbeat probe failed")
	}
}
