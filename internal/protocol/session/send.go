package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Send writes one encoded packet, connecting first when the transport is not
// open, for at most Config.SendAttempts attempts. A packet that still cannot
// be written is dropped: the failure is logged and ErrSendExhausted is
// returned for callers that want it.
//
// A write error closes the transport and is returned without retrying, since
// the gateway may already have read part or all of the packet.
func (s *Session) Send(ctx context.Context, packet []byte) error {
	if !s.running.Load() {
		return ErrStopped
	}
	id := requestIDOf(packet)
	for attempt := 1; attempt <= s.cfg.SendAttempts; attempt++ {
		if t := s.currentTransport(); t != nil && t.IsOpen() {
			if err := t.Write(packet); err != nil {
				log.Warn().Str("client", s.name).Str("request", id.String()).Err(err).Msg("session.Session.Send write failed")
				if s.detach(t) != nil {
					_ = t.Close()
					s.fire(eventClosed)
				}
				return fmt.Errorf("session: write %s: %w", id, err)
			}
			s.metrics.FrameSent(s.name, id)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Connect(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				return err
			}
			log.Debug().Str("client", s.name).Int("attempt", attempt).Err(err).Msg("session.Session.Send connect failed")
		}
	}
	s.metrics.SendDropped(s.name)
	log.Error().
		Str("client", s.name).
		Str("request", id.String()).
		Int("attempts", s.cfg.SendAttempts).
		Msg("session.Session.Send dropped")
	return fmt.Errorf("%w: %s after %d attempts", ErrSendExhausted, id, s.cfg.SendAttempts)
}

func requestIDOf(packet []byte) protocol.RequestID {
	if len(packet) < protocol.HeaderSize {
		return 0
	}
	return protocol.RequestID(binary.BigEndian.Uint32(packet[4:8]))
}

// SendMessage encodes msg and sends it. A zero SequenceID is replaced with the
// next id from the client's Sequence.
func (s *Session) SendMessage(ctx context.Context, msg protocol.Message) error {
	if msg == nil {
		return protocol.ErrNilMessage
	}
	if msg.Head().SequenceID == 0 {
		msg.Head().SequenceID = s.seq.Next()
	}
	packet, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return s.Send(ctx, packet)
}

// SendLogin sends a fresh Login. Connect already logs in on every new
// transport; this is for re-authenticating an open link.
func (s *Session) SendLogin(ctx context.Context) error {
	login := protocol.NewLogin(s.seq.Next(), s.account, s.secret, s.now())
	login.Body.LoginMode = s.cfg.LoginMode
	return s.SendMessage(ctx, login)
}

func (s *Session) SendActiveTest(ctx context.Context) error {
	return s.SendMessage(ctx, protocol.NewActiveTest(s.seq.Next()))
}

// SendActiveTestResp answers a gateway probe with a fresh SequenceID.
func (s *Session) SendActiveTestResp(ctx context.Context) error {
	return s.SendMessage(ctx, protocol.NewActiveTestResp(s.seq.Next()))
}

// SendDeliverResp acknowledges a Deliver, echoing its SequenceID and MsgID.
func (s *Session) SendDeliverResp(ctx context.Context, seq uint32, msgID protocol.MsgID) error {
	return s.SendMessage(ctx, protocol.NewDeliverResp(seq, msgID, protocol.StatusSuccess))
}

func (s *Session) SendExit(ctx context.Context) error {
	return s.SendMessage(ctx, protocol.NewExit(s.seq.Next()))
}

// SendSubmit sends one Submit and tracks it until its SubmitResp arrives.
func (s *Session) SendSubmit(ctx context.Context, submit *protocol.Submit) error {
	return s.sendSubmit(ctx, submit, 1, 1)
}

func (s *Session) sendSubmit(ctx context.Context, submit *protocol.Submit, segment, segments int) error {
	if submit == nil {
		return protocol.ErrNilMessage
	}
	if submit.Header.SequenceID == 0 {
		submit.Header.SequenceID = s.seq.Next()
	}
	if submit.Body.SrcTermID == "" {
		submit.Body.SrcTermID = s.srcTermID
	}
	seq := submit.Header.SequenceID
	s.pending.Track(PendingSubmit{
		SequenceID:  seq,
		DestTermIDs: append([]string(nil), submit.Body.DestTermIDs...),
		Segment:     segment,
		Segments:    segments,
		SentAt:      s.now(),
	})
	if err := s.SendMessage(ctx, submit); err != nil {
		s.pending.Resolve(seq)
		return err
	}
	return nil
}

// SendSubmits sends submits in order. Concurrent batches do not interleave.
// Every submit is attempted; the returned error joins the failures.
func (s *Session) SendSubmits(ctx context.Context, submits []*protocol.Submit) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	var errs []error
	for i, submit := range submits {
		if err := s.sendSubmit(ctx, submit, i+1, len(submits)); err != nil {
			errs = append(errs, fmt.Errorf("submit %d/%d: %w", i+1, len(submits), err))
		}
	}
	return errors.Join(errs...)
}

// SubmitText builds the Submits for req (segmenting long text) and sends them
// as one batch. It returns the SequenceIDs in send order. An empty
// req.SrcTermID uses the session's source terminal id.
func (s *Session) SubmitText(ctx context.Context, req protocol.SubmitRequest) ([]uint32, error) {
	if req.SrcTermID == "" {
		req.SrcTermID = s.srcTermID
	}
	submits, err := protocol.BuildSubmits(req, s.seq.Next)
	if err != nil {
		return nil, err
	}
	seqs := make([]uint32, len(submits))
	for i, submit := range submits {
		seqs[i] = submit.Header.SequenceID
	}
	return seqs, s.SendSubmits(ctx, submits)
}
