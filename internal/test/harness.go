package test

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
	"github.com/luxfi/tecdsa/protocols/tecdsa"
)

// Node is one simulated replica: its own pool, crypto service and
// orchestration component, all sharing the subnet's tip reader.
type Node struct {
	ID        party.ID
	Pool      *artifact.MemPool
	Crypto    *Crypto
	Component *tecdsa.Tecdsa
}

// Subnet simulates a replicated group driving the protocol through
// ticks, gossip and tip advancement. It plays the roles the real
// system delegates to consensus and transport.
type Subnet struct {
	Tips      *chain.StaticTip
	Nodes     []*Node
	Key       *secp256k1.PrivateKey
	Requests  []*types.SignatureRequest
	Delivered []types.Signature

	threshold int
}

// SubnetOption tweaks subnet construction.
type SubnetOption func(*subnetOptions)

type subnetOptions struct {
	logger *logrus.Logger
	target int
}

// WithSubnetLogger routes component logs of every node to l.
func WithSubnetLogger(l *logrus.Logger) SubnetOption {
	return func(o *subnetOptions) { o.logger = l }
}

// WithTargetQuadruples sets the pipeline depth.
func WithTargetQuadruples(n int) SubnetOption {
	return func(o *subnetOptions) { o.target = n }
}

// NewSubnet builds a subnet of n nodes with the given dealing
// threshold and seeds the tuple pipeline with one tip advancement.
func NewSubnet(n, threshold int, opts ...SubnetOption) (*Subnet, error) {
	o := &subnetOptions{target: 2}
	for _, opt := range opts {
		opt(o)
	}

	ids := make([]party.ID, n)
	for i := range ids {
		ids[i] = party.ID(fmt.Sprintf("node-%02d", i+1))
	}
	nodes := party.NewIDSlice(ids)

	key := SubnetKey("subnet-key")
	keyTranscript := &types.Transcript{
		ConfigID: types.ConfigID{Height: 0, Seq: 0},
		Raw:      key.PubKey().SerializeCompressed(),
	}

	s := &Subnet{
		Key:       key,
		threshold: threshold,
	}
	s.Tips = chain.NewStaticTip(&chain.Tip{
		Height:    1,
		Payload:   types.NewPayload(1),
		Nodes:     nodes,
		Threshold: threshold,
		Key:       keyTranscript,
	})

	for _, id := range nodes {
		svc := NewCrypto(id, key)
		compOpts := []tecdsa.Option{tecdsa.WithParams(tecdsa.Params{TargetQuadruples: o.target})}
		if o.logger != nil {
			compOpts = append(compOpts, tecdsa.WithLogger(o.logger))
		}
		s.Nodes = append(s.Nodes, &Node{
			ID:        id,
			Pool:      artifact.NewMemPool(),
			Crypto:    svc,
			Component: tecdsa.New(id, s.Tips, svc, compOpts...),
		})
	}

	// Seed the tuple pipeline.
	if err := s.AdvanceTip(); err != nil {
		return nil, err
	}
	return s, nil
}

// Submit adds a pending signature request to replicated state.
func (s *Subnet) Submit(req *types.SignatureRequest) {
	s.Requests = append(s.Requests, req)
	s.refreshTip(s.Tips.FinalizedTip().Payload)
}

// Withdraw removes a request from replicated state.
func (s *Subnet) Withdraw(id types.RequestID) {
	out := s.Requests[:0]
	for _, r := range s.Requests {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.Requests = out
	s.refreshTip(s.Tips.FinalizedTip().Payload)
}

// Tick runs one on-state-change cycle on every node and applies the
// resulting change sets.
func (s *Subnet) Tick() error {
	for _, n := range s.Nodes {
		cs := n.Component.OnStateChange(n.Pool)
		if err := n.Pool.Apply(cs); err != nil {
			return fmt.Errorf("applying change set for %s: %w", n.ID, err)
		}
	}
	return nil
}

// Gossip delivers every node's validated artifacts to every other
// node's unvalidated partition.
func (s *Subnet) Gossip() error {
	for _, from := range s.Nodes {
		msgs := validatedMessages(from.Pool)
		for _, to := range s.Nodes {
			if to == from {
				continue
			}
			for _, m := range msgs {
				if err := to.Pool.Insert(m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AdvanceTip finalizes the next block: node 1 builds the payload, the
// others validate it bit for bit, delivered signatures are collected
// and their requests removed from replicated state.
func (s *Subnet) AdvanceTip() error {
	tip := s.Tips.FinalizedTip()
	maker := s.Nodes[0]
	next, _, err := maker.Component.Builder().Next(tip, maker.Pool.Validated())
	if err != nil {
		return err
	}
	for _, n := range s.Nodes[1:] {
		if err := n.Component.Builder().Validate(tip, n.Pool.Validated(), next); err != nil {
			return fmt.Errorf("%s rejects payload: %w", n.ID, err)
		}
	}
	for _, sig := range next.Signatures {
		s.Delivered = append(s.Delivered, sig)
		s.Withdraw(sig.RequestID)
	}
	s.refreshTip(next)
	return nil
}

// Round runs the tick/gossip exchanges needed for one dealing stage to
// settle everywhere, then advances the tip.
func (s *Subnet) Round() error {
	for i := 0; i < 4; i++ {
		if err := s.Tick(); err != nil {
			return err
		}
		if err := s.Gossip(); err != nil {
			return err
		}
	}
	return s.AdvanceTip()
}

// RunRounds runs n rounds.
func (s *Subnet) RunRounds(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Round(); err != nil {
			return err
		}
	}
	return nil
}

// SignatureFor returns the delivered signature for a request, if any.
func (s *Subnet) SignatureFor(id types.RequestID) (*types.Signature, bool) {
	for i := range s.Delivered {
		if s.Delivered[i].RequestID == id {
			return &s.Delivered[i], true
		}
	}
	return nil, false
}

func (s *Subnet) refreshTip(payload *types.Payload) {
	old := s.Tips.FinalizedTip()
	reqs := make([]*types.SignatureRequest, len(s.Requests))
	copy(reqs, s.Requests)
	s.Tips.SetTip(&chain.Tip{
		Height:    payload.Height,
		Payload:   payload,
		Requests:  reqs,
		Nodes:     old.Nodes,
		Threshold: old.Threshold,
		Key:       old.Key,
	})
}

func validatedMessages(p *artifact.MemPool) []*artifact.Message {
	var out []*artifact.Message
	sec := p.Validated()
	for _, d := range sec.Dealings() {
		out = append(out, artifact.NewDealing(d))
	}
	for _, sup := range sec.Supports() {
		out = append(out, artifact.NewSupport(sup))
	}
	for _, sh := range sec.Shares() {
		out = append(out, artifact.NewShare(sh))
	}
	for _, sig := range sec.Signatures() {
		out = append(out, artifact.NewSignature(sig))
	}
	return out
}
