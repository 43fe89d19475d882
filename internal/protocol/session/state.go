package session

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// State is the externally visible lifecycle state of a Session.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateEstablished    State = "established"
	StateDead           State = "dead"
	StateStopped        State = "stopped"
)

const (
	eventConnect    = "connect"
	eventDialed     = "dialed"
	eventDialFailed = "dial_failed"
	eventLogin      = "login"
	eventRejected   = "rejected"
	eventLinkDead   = "link_dead"
	eventClosed     = "closed"
	eventStop       = "stop"
)

func newStateMachine(client string) *fsm.FSM {
	live := []string{
		string(StateDisconnected),
		string(StateConnecting),
		string(StateAuthenticating),
		string(StateEstablished),
		string(StateDead),
	}
	return fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: eventConnect, Src: []string{string(StateDisconnected), string(StateDead)}, Dst: string(StateConnecting)},
			{Name: eventDialed, Src: []string{string(StateConnecting)}, Dst: string(StateAuthenticating)},
			{Name: eventDialFailed, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},
			{Name: eventLogin, Src: []string{string(StateAuthenticating)}, Dst: string(StateEstablished)},
			{Name: eventRejected, Src: []string{string(StateAuthenticating)}, Dst: string(StateDisconnected)},
			{Name: eventLinkDead, Src: []string{string(StateAuthenticating), string(StateEstablished)}, Dst: string(StateDead)},
			{
				Name: eventClosed,
				Src:  []string{string(StateConnecting), string(StateAuthenticating), string(StateEstablished), string(StateDead)},
				Dst:  string(StateDisconnected),
			},
			{Name: eventStop, Src: live, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug().
					Str("client", client).
					Str("event", e.Event).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("session.Session state")
			},
		},
	)
}

// fire applies event and ignores transitions that do not apply to the
// current state; state changes never gate session behavior.
func (s *Session) fire(event string) {
	err := s.fsm.Event(context.Background(), event)
	if err == nil {
		return
	}
	var invalid fsm.InvalidEventError
	var noop fsm.NoTransitionError
	if errors.As(err, &invalid) || errors.As(err, &noop) {
		log.Debug().Str("client", s.name).Str("event", event).Str("state", s.fsm.Current()).Msg("session.Session state unchanged")
		return
	}
	log.Debug().Str("client", s.name).Str("event", event).Err(err).Msg("session.Session state event failed")
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.fsm.Current())
}
