package tecdsa

import (
	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
)

// Priority ranks a peer-advertised artifact for fetching.
type Priority int

const (
	// Drop: do not fetch, the artifact can no longer be useful.
	Drop Priority = iota
	// FetchNow: fetch at the next opportunity.
	FetchNow
)

// PriorityFn ranks one advertised artifact id.
type PriorityFn func(id artifact.MessageID, attr artifact.Attribute) Priority

// Gossip satisfies the pool's peer-prioritization contract.
type Gossip interface {
	// PriorityFunction returns the ranking function for the pool's
	// current state. The pool layer re-requests it after each tip
	// change.
	PriorityFunction(p artifact.Pool) PriorityFn
}

// NewGossip returns the gossip priority hook.
//
// Real prioritization (rate-limiting dealers, preferring artifacts for
// nearly complete configs) is an open design question upstream; until
// it is settled, everything not provably stale is fetched eagerly.
func NewGossip(tips chain.TipReader) Gossip {
	return &gossipImpl{tips: tips}
}

type gossipImpl struct {
	tips chain.TipReader
}

func (g *gossipImpl) PriorityFunction(artifact.Pool) PriorityFn {
	tip := g.tips.FinalizedTip()
	if tip == nil || tip.Payload == nil {
		return func(artifact.MessageID, artifact.Attribute) Priority { return FetchNow }
	}

	// The oldest height still referenced by a live config bounds what
	// can possibly be useful; anything below it would be garbage
	// collected on arrival.
	minLive := tip.Height
	for id := range tip.Payload.Configs() {
		if id.Height < minLive {
			minLive = id.Height
		}
	}

	return func(_ artifact.MessageID, attr artifact.Attribute) Priority {
		if attr.Kind == artifact.KindSignature {
			return FetchNow
		}
		if attr.Height < minLive {
			return Drop
		}
		return FetchNow
	}
}
