package session

import (
	"sort"
	"sync"
	"time"
)

// PendingSubmit tracks one Submit awaiting its SubmitResp.
type PendingSubmit struct {
	SequenceID  uint32
	DestTermIDs []string
	Segment     int
	Segments    int
	SentAt      time.Time
}

// PendingSubmits correlates SubmitResp sequence ids with the Submits that
// produced them. Entries are kept in memory only.
type PendingSubmits struct {
	mu    sync.RWMutex
	items map[uint32]PendingSubmit
}

func NewPendingSubmits() *PendingSubmits {
	return &PendingSubmits{
		items: make(map[uint32]PendingSubmit),
	}
}

func (p *PendingSubmits) Track(item PendingSubmit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[item.SequenceID] = item
}

// Resolve removes and returns the entry for seq.
func (p *PendingSubmits) Resolve(seq uint32) (PendingSubmit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[seq]
	if ok {
		delete(p.items, seq)
	}
	return item, ok
}

func (p *PendingSubmits) Get(seq uint32) (PendingSubmit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[seq]
	return item, ok
}

func (p *PendingSubmits) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Prune drops entries sent before cutoff and returns how many were dropped.
func (p *PendingSubmits) Prune(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for seq, item := range p.items {
		if item.SentAt.Before(cutoff) {
			delete(p.items, seq)
			n++
		}
	}
	return n
}

func (p *PendingSubmits) List() []PendingSubmit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PendingSubmit, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceID < out[j].SequenceID
	})
	return out
}
