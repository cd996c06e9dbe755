// Package chain exposes the read-only view of the external consensus
// layer: the currently finalized block's ECDSA payload and the signing
// requests pending in replicated state. The orchestration core never
// writes through this interface.
package chain

import (
	"sync"

	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
)

// Tip is a snapshot of the finalized tip. It is taken once at the
// start of a tick and stays immutable for its duration.
type Tip struct {
	// Height of the finalized block.
	Height types.Height

	// Payload is the tip's ECDSA payload.
	Payload *types.Payload

	// Requests are the signature requests pending in replicated
	// state, as observed through the tip's validation context.
	Requests []*types.SignatureRequest

	// Nodes is the subnet membership: the dealers for newly issued
	// configs.
	Nodes party.IDSlice

	// Threshold is the dealing threshold for newly issued configs.
	Threshold int

	// Key is the transcript sharing the subnet's ECDSA signing key.
	Key *types.Transcript
}

// RequestSet returns the tip's requests indexed by ID.
func (t *Tip) RequestSet() map[types.RequestID]*types.SignatureRequest {
	out := make(map[types.RequestID]*types.SignatureRequest, len(t.Requests))
	for _, r := range t.Requests {
		out[r.ID] = r
	}
	return out
}

// TipReader hands out the current finalized tip.
type TipReader interface {
	FinalizedTip() *Tip
}

// StaticTip is a TipReader whose tip is set explicitly. It stands in
// for the consensus cache in tests and the CLI simulation.
type StaticTip struct {
	mu  sync.RWMutex
	tip *Tip
}

// NewStaticTip returns a reader serving the given tip.
func NewStaticTip(tip *Tip) *StaticTip {
	return &StaticTip{tip: tip}
}

// FinalizedTip implements TipReader.
func (s *StaticTip) FinalizedTip() *Tip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip
}

// SetTip advances the finalized tip.
func (s *StaticTip) SetTip(tip *Tip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = tip
}
