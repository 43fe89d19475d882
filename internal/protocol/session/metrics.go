package session

import "github.com/danmuck/smgpctl/internal/protocol"

// Metrics receives session counters. internal/observability provides the
// Prometheus implementation; a nil Metrics in Options records nothing.
type Metrics interface {
	ConnectAttempt(client, result string)
	FrameReceived(client string, id protocol.RequestID)
	FrameSent(client string, id protocol.RequestID)
	SendDropped(client string)
	LinkDead(client string)
	HandlerFailed(client, category string)
	SetConnected(client string, connected bool)
}

type nopMetrics struct{}

func (nopMetrics) ConnectAttempt(string, string)            {}
func (nopMetrics) FrameReceived(string, protocol.RequestID) {}
func (nopMetrics) FrameSent(string, protocol.RequestID)     {}
func (nopMetrics) SendDropped(string)                       {}
func (nopMetrics) LinkDead(string)                          {}
func (nopMetrics) HandlerFailed(string, string)             {}
func (nopMetrics) SetConnected(string, bool)                {}
