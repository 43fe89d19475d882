package session

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Sequence hands out SequenceIDs for one client. The first id is 1 and the
// counter wraps modulo 2^32. Zero is never issued: senders use it to mean
// "not yet assigned".
type Sequence struct {
	last atomic.Uint32
}

func (s *Sequence) Next() uint32 {
	if v := s.last.Add(1); v != 0 {
		return v
	}
	return s.last.Add(1)
}

// Last returns the most recently issued id without advancing.
func (s *Sequence) Last() uint32 {
	return s.last.Load()
}

// SequenceRegistry maps client names to their Sequence. A Sequence outlives
// the sessions and transports that draw from it.
type SequenceRegistry struct {
	mu   sync.Mutex
	seqs map[string]*Sequence
}

func NewSequenceRegistry() *SequenceRegistry {
	return &SequenceRegistry{seqs: make(map[string]*Sequence)}
}

// For returns the Sequence for name, creating it on first use.
func (r *SequenceRegistry) For(name string) *Sequence {
	key := strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seqs == nil {
		r.seqs = make(map[string]*Sequence)
	}
	seq, ok := r.seqs[key]
	if !ok {
		seq = &Sequence{}
		r.seqs[key] = seq
	}
	return seq
}
