package session

import (
	"fmt"
	"sync"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	categorySubmitResult = "submit_result"
	categoryReport       = "report"
	categoryReply        = "reply"
)

// SubmitResultHandler receives every SubmitResp.
type SubmitResultHandler interface {
	HandleSubmitResult(resp *protocol.SubmitResp) error
}

// ReportHandler receives status-report Delivers.
type ReportHandler interface {
	HandleReport(report protocol.ReportMessage) error
}

// ReplyHandler receives mobile-originated Delivers.
type ReplyHandler interface {
	HandleReply(reply protocol.ReplyMessage) error
}

type SubmitResultHandlerFunc func(resp *protocol.SubmitResp) error

func (f SubmitResultHandlerFunc) HandleSubmitResult(resp *protocol.SubmitResp) error {
	return f(resp)
}

type ReportHandlerFunc func(report protocol.ReportMessage) error

func (f ReportHandlerFunc) HandleReport(report protocol.ReportMessage) error {
	return f(report)
}

type ReplyHandlerFunc func(reply protocol.ReplyMessage) error

func (f ReplyHandlerFunc) HandleReply(reply protocol.ReplyMessage) error {
	return f(reply)
}

type handlerRegistry struct {
	mu     sync.RWMutex
	submit []SubmitResultHandler
	report []ReportHandler
	reply  []ReplyHandler
}

func (r *handlerRegistry) addSubmit(h SubmitResultHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submit = append(r.submit, h)
}

func (r *handlerRegistry) addReport(h ReportHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = append(r.report, h)
}

func (r *handlerRegistry) addReply(h ReplyHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reply = append(r.reply, h)
}

func (r *handlerRegistry) snapshotSubmit() []SubmitResultHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SubmitResultHandler(nil), r.submit...)
}

func (r *handlerRegistry) snapshotReport() []ReportHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ReportHandler(nil), r.report...)
}

func (r *handlerRegistry) snapshotReply() []ReplyHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ReplyHandler(nil), r.reply...)
}

// AddSubmitResultHandler registers h. Handlers may be added at any time and
// run in registration order on the inbound goroutine.
func (s *Session) AddSubmitResultHandler(h SubmitResultHandler) *Session {
	if h != nil {
		s.handlers.addSubmit(h)
	}
	return s
}

func (s *Session) AddReportHandler(h ReportHandler) *Session {
	if h != nil {
		s.handlers.addReport(h)
	}
	return s
}

func (s *Session) AddReplyHandler(h ReplyHandler) *Session {
	if h != nil {
		s.handlers.addReply(h)
	}
	return s
}

func (s *Session) fanOutSubmitResult(resp *protocol.SubmitResp) {
	for i, h := range s.handlers.snapshotSubmit() {
		s.invokeHandler(categorySubmitResult, i, func() error { return h.HandleSubmitResult(resp) })
	}
}

func (s *Session) fanOutReport(report protocol.ReportMessage) {
	for i, h := range s.handlers.snapshotReport() {
		s.invokeHandler(categoryReport, i, func() error { return h.HandleReport(report) })
	}
}

func (s *Session) fanOutReply(reply protocol.ReplyMessage) {
	for i, h := range s.handlers.snapshotReply() {
		s.invokeHandler(categoryReply, i, func() error { return h.HandleReply(reply) })
	}
}

// invokeHandler runs one handler, converting a panic into a logged failure so
// the remaining handlers and the inbound loop keep running.
func (s *Session) invokeHandler(category string, index int, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err == nil {
		return
	}
	s.metrics.HandlerFailed(s.name, category)
	log.Warn().
		Str("client", s.name).
		Str("category", category).
		Int("handler", index).
		Err(err).
		Msg("session.Session.dispatch handler failed")
}
