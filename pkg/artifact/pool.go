package artifact

import (
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/tecdsa/pkg/types"
)

// Section is a read-only view over one partition of the pool.
// Accessors return artifacts in a deterministic order (sorted by their
// identifying keys) so that every computation over a snapshot is
// replica-agreed.
type Section interface {
	Dealings() []*types.Dealing
	Supports() []*types.DealingSupport
	Shares() []*types.SignatureShare
	Signatures() []*types.Signature
}

// Pool is the shared artifact store, split into a validated and an
// unvalidated partition. Reads are snapshot-consistent for the
// duration of a tick: the owner does not apply change sets while a
// tick is running.
type Pool interface {
	Validated() Section
	Unvalidated() Section
}

// MutablePool is the pool owner's side: receive peer messages into
// unvalidated, and commit change sets proposed by the core.
type MutablePool interface {
	Pool

	// Insert places a peer-received message in the unvalidated
	// partition. Re-delivery of a known message is a no-op.
	Insert(m *Message) error

	// Apply commits a change set in order.
	Apply(cs ChangeSet) error
}

// MemPool is the in-memory reference pool used by tests and the CLI
// simulation. Safe for concurrent use.
type MemPool struct {
	mu          sync.RWMutex
	validated   map[MessageID]*Message
	unvalidated map[MessageID]*Message
}

// NewMemPool returns an empty pool.
func NewMemPool() *MemPool {
	return &MemPool{
		validated:   make(map[MessageID]*Message),
		unvalidated: make(map[MessageID]*Message),
	}
}

// Validated implements Pool.
func (p *MemPool) Validated() Section { return &memSection{pool: p, validated: true} }

// Unvalidated implements Pool.
func (p *MemPool) Unvalidated() Section { return &memSection{pool: p, validated: false} }

// Insert implements MutablePool.
func (p *MemPool) Insert(m *Message) error {
	id, err := m.ID()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// Benign re-delivery, possibly of a message we already validated.
	if _, ok := p.validated[id]; ok {
		return nil
	}
	p.unvalidated[id] = m
	return nil
}

// Apply implements MutablePool.
func (p *MemPool) Apply(cs ChangeSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, action := range cs {
		id, err := action.Msg.ID()
		if err != nil {
			return err
		}
		switch action.Op {
		case OpAddValidated:
			p.validated[id] = action.Msg
		case OpMoveValidated:
			delete(p.unvalidated, id)
			p.validated[id] = action.Msg
		case OpRemoveUnvalidated:
			delete(p.unvalidated, id)
		case OpRemoveValidated:
			delete(p.validated, id)
		default:
			return fmt.Errorf("artifact: unknown change op %v", action.Op)
		}
	}
	return nil
}

// Len returns the number of messages in (validated, unvalidated).
func (p *MemPool) Len() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.validated), len(p.unvalidated)
}

type memSection struct {
	pool      *MemPool
	validated bool
}

func (s *memSection) each(f func(*Message)) {
	s.pool.mu.RLock()
	defer s.pool.mu.RUnlock()
	part := s.pool.unvalidated
	if s.validated {
		part = s.pool.validated
	}
	for _, m := range part {
		f(m)
	}
}

func (s *memSection) Dealings() []*types.Dealing {
	var out []*types.Dealing
	s.each(func(m *Message) {
		if m.Kind == KindDealing {
			out = append(out, m.Dealing)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfigID != out[j].ConfigID {
			return out[i].ConfigID.Less(out[j].ConfigID)
		}
		return out[i].Dealer < out[j].Dealer
	})
	return out
}

func (s *memSection) Supports() []*types.DealingSupport {
	var out []*types.DealingSupport
	s.each(func(m *Message) {
		if m.Kind == KindSupport {
			out = append(out, m.Support)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ConfigID != b.ConfigID {
			return a.ConfigID.Less(b.ConfigID)
		}
		if a.Dealer != b.Dealer {
			return a.Dealer < b.Dealer
		}
		return a.Supporter < b.Supporter
	})
	return out
}

func (s *memSection) Shares() []*types.SignatureShare {
	var out []*types.SignatureShare
	s.each(func(m *Message) {
		if m.Kind == KindShare {
			out = append(out, m.Share)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestID != out[j].RequestID {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].Signer < out[j].Signer
	})
	return out
}

func (s *memSection) Signatures() []*types.Signature {
	var out []*types.Signature
	s.each(func(m *Message) {
		if m.Kind == KindSignature {
			out = append(out, m.Signature)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}
