// Package tecdsa implements the consensus component that orchestrates
// threshold ECDSA signing: issuing and validating dealings, dealing
// supports and signature shares through the shared artifact pool, and
// advancing the per-request 4-tuple payload state machine embedded in
// finalized blocks.
//
// The component is driven by the external consensus layer: every pool
// mutation (or new finalized tip) triggers OnStateChange, which reads
// an immutable snapshot of the pool and the tip and proposes a change
// set. The caller applies it and re-runs until a fixed point.
package tecdsa

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
	"github.com/luxfi/tecdsa/pkg/crypto"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/pool"
)

// TimingObserver receives the wall time spent in each sub-component
// per OnStateChange invocation. Optional; purely observational.
type TimingObserver func(subComponent string, elapsed time.Duration)

// Tecdsa composes the pre-signer and the payload builder behind a
// single on-state-change entry point. It performs no cryptographic or
// state-machine logic itself.
type Tecdsa struct {
	nodeID    party.ID
	tips      chain.TipReader
	preSigner *PreSigner
	builder   *PayloadBuilder
	observe   TimingObserver
	log       *logrus.Entry
}

// Option configures the component.
type Option func(*options)

type options struct {
	logger  *logrus.Logger
	observe TimingObserver
	workers *pool.Pool
	params  Params
}

// WithLogger routes component logs to the given logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver installs a per-sub-component timing observer.
func WithObserver(obs TimingObserver) Option {
	return func(o *options) { o.observe = obs }
}

// WithWorkers sets the worker pool used for batch validation.
func WithWorkers(p *pool.Pool) Option {
	return func(o *options) { o.workers = p }
}

// WithParams sets the payload pipeline parameters.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// New builds the threshold ECDSA component for one node.
func New(nodeID party.ID, tips chain.TipReader, svc crypto.Service, opts ...Option) *Tecdsa {
	o := &options{params: DefaultParams()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		o.logger.SetOutput(io.Discard)
	}
	if o.workers == nil {
		o.workers = pool.NewPool(0)
	}
	log := o.logger.WithField("node", nodeID)
	return &Tecdsa{
		nodeID:    nodeID,
		tips:      tips,
		preSigner: NewPreSigner(nodeID, tips, svc, o.workers, log),
		builder:   NewPayloadBuilder(svc, o.params, log),
		observe:   o.observe,
		log:       log,
	}
}

// OnStateChange ticks the sub-components against the current
// finalized tip and returns the concatenation of their change sets.
func (t *Tecdsa) OnStateChange(p artifact.Pool) artifact.ChangeSet {
	var cs artifact.ChangeSet
	cs = append(cs, t.timed("pre_signer", func() artifact.ChangeSet {
		return t.preSigner.OnStateChange(p)
	})...)
	cs = append(cs, t.timed("payload_builder", func() artifact.ChangeSet {
		return t.builder.PoolChanges(t.tips.FinalizedTip(), p.Validated())
	})...)
	return cs
}

// Builder exposes the payload builder for the block maker and block
// validator.
func (t *Tecdsa) Builder() *PayloadBuilder { return t.builder }

func (t *Tecdsa) timed(name string, f func() artifact.ChangeSet) artifact.ChangeSet {
	start := time.Now()
	cs := f()
	if t.observe != nil {
		t.observe(name, time.Since(start))
	}
	return cs
}
