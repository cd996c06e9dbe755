package tecdsa

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
	"github.com/luxfi/tecdsa/pkg/crypto"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/pool"
	"github.com/luxfi/tecdsa/pkg/types"
)

// PreSigner keeps the shared pool populated with the dealings,
// dealing supports and signature shares this node owes for the
// current finalized tip, and partitions peer-submitted artifacts into
// validated/discarded. Every operation is an idempotent no-op when
// its precondition is already satisfied, so re-running against an
// unchanged tip and pool converges to an empty change set.
type PreSigner struct {
	nodeID  party.ID
	tips    chain.TipReader
	crypto  crypto.Service
	workers *pool.Pool
	log     *logrus.Entry
}

// NewPreSigner builds a pre-signer for the given node.
func NewPreSigner(nodeID party.ID, tips chain.TipReader, svc crypto.Service, workers *pool.Pool, log *logrus.Entry) *PreSigner {
	return &PreSigner{
		nodeID:  nodeID,
		tips:    tips,
		crypto:  svc,
		workers: workers,
		log:     log.WithField("component", "pre_signer"),
	}
}

// OnStateChange computes the pool mutations this node owes for the
// current tip. The pool is only read; the returned change set is
// applied by the pool owner.
func (ps *PreSigner) OnStateChange(p artifact.Pool) artifact.ChangeSet {
	tip := ps.tips.FinalizedTip()
	if tip == nil || tip.Payload == nil {
		return nil
	}
	configs := tip.Payload.Configs()
	validated := indexValidated(p.Validated())

	var cs artifact.ChangeSet
	cs = append(cs, ps.issueDealings(tip, configs, validated)...)
	cs = append(cs, ps.validateDealings(p, configs, validated)...)
	cs = append(cs, ps.supportDealings(p, configs, validated)...)
	cs = append(cs, ps.validateSupports(p, configs, validated)...)
	cs = append(cs, ps.gcStale(p, tip, configs)...)
	cs = append(cs, ps.issueShares(tip, validated)...)
	cs = append(cs, ps.validateShares(p, tip, validated)...)
	cs = append(cs, ps.dedupeSignatures(p, validated)...)
	return cs
}

// issueDealings creates this node's dealing for every live config that
// lists it as a dealer and has no validated dealing from it yet.
func (ps *PreSigner) issueDealings(tip *chain.Tip, configs map[types.ConfigID]*types.TranscriptConfig, validated *validatedIndex) artifact.ChangeSet {
	var cs artifact.ChangeSet
	for _, cfg := range sortedConfigs(configs) {
		if !cfg.Dealers.Contains(ps.nodeID) {
			continue
		}
		if validated.hasDealing(cfg.ID, ps.nodeID) {
			continue
		}
		dealing, err := ps.crypto.CreateDealing(cfg)
		if err != nil {
			// Operational failure; retried on the next tick.
			ps.log.WithError(err).WithField("config", cfg.ID).Warn("create dealing failed")
			continue
		}
		if dealing.ConfigID != cfg.ID || dealing.Dealer != ps.nodeID {
			// A miskeyed local dealing is a bug in the crypto backend,
			// not peer input. Never add it to the pool.
			ps.log.WithField("config", cfg.ID).Error("crypto service returned miskeyed dealing")
			continue
		}
		cs = cs.Add(artifact.NewDealing(dealing))
		ps.log.WithFields(logrus.Fields{"config": cfg.ID, "height": tip.Height}).Debug("issued dealing")
	}
	return cs
}

// validateDealings publicly verifies pending dealings whose config is
// live. Verification fans out over the worker pool; verdicts are
// merged in key order with first-wins semantics so duplicate
// submissions for one (config, dealer) key converge to a single
// validated entry.
func (ps *PreSigner) validateDealings(p artifact.Pool, configs map[types.ConfigID]*types.TranscriptConfig, validated *validatedIndex) artifact.ChangeSet {
	type candidate struct {
		dealing *types.Dealing
		err     error
	}
	var cands []*candidate
	for _, d := range p.Unvalidated().Dealings() {
		if _, live := configs[d.ConfigID]; !live {
			continue
		}
		cands = append(cands, &candidate{dealing: d})
	}
	ps.workers.Parallelize(len(cands), func(i int) {
		c := cands[i]
		if validated.hasDealing(c.dealing.ConfigID, c.dealing.Dealer) {
			return // duplicate, no need to verify
		}
		c.err = ps.crypto.VerifyDealingPublic(configs[c.dealing.ConfigID], c.dealing)
	})

	var cs artifact.ChangeSet
	seen := make(map[dealingKey]bool)
	for _, c := range cands {
		d := c.dealing
		key := dealingKey{d.ConfigID, d.Dealer}
		msg := artifact.NewDealing(d)
		switch {
		case validated.hasDealing(d.ConfigID, d.Dealer) || seen[key]:
			// Benign re-delivery of an already validated key.
			cs = cs.Discard(msg)
		case c.err == nil:
			seen[key] = true
			cs = cs.Move(msg)
		case crypto.IsInvalid(c.err):
			ps.log.WithError(c.err).WithFields(logrus.Fields{"config": d.ConfigID, "dealer": d.Dealer}).Warn("invalid dealing")
			cs = cs.Discard(msg)
		default:
			// Operational failure: keep pending, retry next tick.
			ps.log.WithError(c.err).WithField("config", d.ConfigID).Debug("dealing verification deferred")
		}
	}
	return cs
}

// supportDealings runs the private (decrypt-and-check-own-share)
// verification on validated dealings this node has not supported yet,
// and adds a support message for each that passes. Public verification
// alone cannot catch a dealer who encrypts a bad share to one
// recipient; only that recipient can.
func (ps *PreSigner) supportDealings(p artifact.Pool, configs map[types.ConfigID]*types.TranscriptConfig, validated *validatedIndex) artifact.ChangeSet {
	var cs artifact.ChangeSet
	for _, d := range p.Validated().Dealings() {
		cfg, live := configs[d.ConfigID]
		if !live {
			continue
		}
		if validated.hasSupport(d.ConfigID, d.Dealer, ps.nodeID) {
			continue
		}
		if err := ps.crypto.VerifyDealingPrivate(cfg, d); err != nil {
			if crypto.IsInvalid(err) {
				// Our share of this dealing is bad. Raising a complaint
				// against the dealer is future protocol work; for now we
				// simply withhold support.
				ps.log.WithFields(logrus.Fields{"config": d.ConfigID, "dealer": d.Dealer}).Warn("dealing failed private verification, withholding support")
			} else {
				ps.log.WithError(err).WithField("config", d.ConfigID).Debug("private verification deferred")
			}
			continue
		}
		support, err := ps.crypto.CreateSupport(cfg, d)
		if err != nil {
			ps.log.WithError(err).WithField("config", d.ConfigID).Warn("create support failed")
			continue
		}
		cs = cs.Add(artifact.NewSupport(support))
	}
	return cs
}

// validateSupports verifies pending support messages whose dealing is
// already validated. A support for a dealing we have not validated yet
// stays pending; it becomes checkable once the dealing arrives.
func (ps *PreSigner) validateSupports(p artifact.Pool, configs map[types.ConfigID]*types.TranscriptConfig, validated *validatedIndex) artifact.ChangeSet {
	type candidate struct {
		support *types.DealingSupport
		err     error
	}
	var cands []*candidate
	for _, s := range p.Unvalidated().Supports() {
		if _, live := configs[s.ConfigID]; !live {
			continue
		}
		if !validated.hasDealing(s.ConfigID, s.Dealer) {
			continue
		}
		cands = append(cands, &candidate{support: s})
	}
	ps.workers.Parallelize(len(cands), func(i int) {
		c := cands[i]
		if validated.hasSupport(c.support.ConfigID, c.support.Dealer, c.support.Supporter) {
			return
		}
		c.err = ps.crypto.VerifySupport(configs[c.support.ConfigID], c.support)
	})

	var cs artifact.ChangeSet
	seen := make(map[supportKey]bool)
	for _, c := range cands {
		s := c.support
		key := supportKey{s.ConfigID, s.Dealer, s.Supporter}
		msg := artifact.NewSupport(s)
		switch {
		case validated.hasSupport(s.ConfigID, s.Dealer, s.Supporter) || seen[key]:
			cs = cs.Discard(msg)
		case c.err == nil:
			seen[key] = true
			cs = cs.Move(msg)
		case crypto.IsInvalid(c.err):
			ps.log.WithError(c.err).WithFields(logrus.Fields{"config": s.ConfigID, "supporter": s.Supporter}).Warn("invalid dealing support")
			cs = cs.Discard(msg)
		default:
			ps.log.WithError(c.err).WithField("config", s.ConfigID).Debug("support verification deferred")
		}
	}
	return cs
}

// gcStale removes artifacts whose config or request is no longer live
// and which are strictly older than the tip, bounding pool growth
// across heights.
func (ps *PreSigner) gcStale(p artifact.Pool, tip *chain.Tip, configs map[types.ConfigID]*types.TranscriptConfig) artifact.ChangeSet {
	requests := tip.RequestSet()
	stale := func(m *artifact.Message) bool {
		switch m.Kind {
		case artifact.KindDealing:
			_, live := configs[m.Dealing.ConfigID]
			return !live && m.Dealing.ConfigID.Height < tip.Height
		case artifact.KindSupport:
			_, live := configs[m.Support.ConfigID]
			return !live && m.Support.ConfigID.Height < tip.Height
		case artifact.KindShare:
			_, live := requests[m.Share.RequestID]
			return !live && m.Share.Height < tip.Height
		case artifact.KindSignature:
			// Delivered with the block; keep only while the request is
			// still pending so late validators can fetch it.
			_, live := requests[m.Signature.RequestID]
			return !live
		default:
			return false
		}
	}

	var cs artifact.ChangeSet
	for _, m := range sectionMessages(p.Validated()) {
		if stale(m) {
			cs = cs.Purge(m)
		}
	}
	for _, m := range sectionMessages(p.Unvalidated()) {
		if stale(m) {
			cs = cs.Discard(m)
		}
	}
	return cs
}

// issueShares creates this node's signature share for every ongoing
// signing request that lists it as a signer and has no validated share
// from it yet.
func (ps *PreSigner) issueShares(tip *chain.Tip, validated *validatedIndex) artifact.ChangeSet {
	var cs artifact.ChangeSet
	live := tip.RequestSet()
	for _, reqID := range tip.Payload.OngoingIDs() {
		ongoing := tip.Payload.Ongoing[reqID]
		req := &ongoing.Request
		// A request withdrawn from replicated state halts share
		// issuance immediately, before the payload catches up.
		if _, ok := live[reqID]; !ok {
			continue
		}
		if !req.Signers.Contains(ps.nodeID) {
			continue
		}
		if validated.hasShare(reqID, ps.nodeID) || validated.hasSignature(reqID) {
			continue
		}
		share, err := ps.crypto.CreateSignatureShare(req, &ongoing.Quadruple)
		if err != nil {
			ps.log.WithError(err).WithField("request", reqID).Warn("create signature share failed")
			continue
		}
		share.Height = tip.Height
		cs = cs.Add(artifact.NewShare(share))
	}
	return cs
}

// validateShares verifies pending signature shares for ongoing
// requests, with the same first-wins merge as dealing validation.
func (ps *PreSigner) validateShares(p artifact.Pool, tip *chain.Tip, validated *validatedIndex) artifact.ChangeSet {
	type candidate struct {
		share *types.SignatureShare
		err   error
	}
	ongoing := tip.Payload.Ongoing
	requests := tip.RequestSet()
	var cands []*candidate
	for _, s := range p.Unvalidated().Shares() {
		if _, ok := ongoing[s.RequestID]; !ok {
			continue
		}
		if _, ok := requests[s.RequestID]; !ok {
			continue
		}
		cands = append(cands, &candidate{share: s})
	}
	ps.workers.Parallelize(len(cands), func(i int) {
		c := cands[i]
		if validated.hasShare(c.share.RequestID, c.share.Signer) {
			return
		}
		c.err = ps.crypto.VerifyShare(&ongoing[c.share.RequestID].Request, c.share)
	})

	var cs artifact.ChangeSet
	seen := make(map[shareKey]bool)
	for _, c := range cands {
		s := c.share
		key := shareKey{s.RequestID, s.Signer}
		msg := artifact.NewShare(s)
		switch {
		case validated.hasShare(s.RequestID, s.Signer) || seen[key]:
			cs = cs.Discard(msg)
		case c.err == nil:
			seen[key] = true
			cs = cs.Move(msg)
		case crypto.IsInvalid(c.err):
			ps.log.WithError(c.err).WithFields(logrus.Fields{"request": s.RequestID, "signer": s.Signer}).Warn("invalid signature share")
			cs = cs.Discard(msg)
		default:
			ps.log.WithError(c.err).WithField("request", s.RequestID).Debug("share verification deferred")
		}
	}
	return cs
}

// dedupeSignatures discards pending full signatures for requests that
// already have a validated one. Validating a peer-assembled signature
// before adoption is an open extension point; until it is defined, a
// replica only trusts signatures it aggregated itself, and duplicates
// are cleaned up here.
func (ps *PreSigner) dedupeSignatures(p artifact.Pool, validated *validatedIndex) artifact.ChangeSet {
	var cs artifact.ChangeSet
	for _, sig := range p.Unvalidated().Signatures() {
		if validated.hasSignature(sig.RequestID) {
			cs = cs.Discard(artifact.NewSignature(sig))
		}
	}
	return cs
}

type dealingKey struct {
	config types.ConfigID
	dealer party.ID
}

type supportKey struct {
	config    types.ConfigID
	dealer    party.ID
	supporter party.ID
}

type shareKey struct {
	request types.RequestID
	signer  party.ID
}

// validatedIndex is a per-tick index over the validated partition.
type validatedIndex struct {
	dealings   map[dealingKey]bool
	supports   map[dealingKey]map[party.ID]bool
	shares     map[shareKey]bool
	signatures map[types.RequestID]bool
}

func indexValidated(sec artifact.Section) *validatedIndex {
	idx := &validatedIndex{
		dealings:   make(map[dealingKey]bool),
		supports:   make(map[dealingKey]map[party.ID]bool),
		shares:     make(map[shareKey]bool),
		signatures: make(map[types.RequestID]bool),
	}
	for _, d := range sec.Dealings() {
		idx.dealings[dealingKey{d.ConfigID, d.Dealer}] = true
	}
	for _, s := range sec.Supports() {
		key := dealingKey{s.ConfigID, s.Dealer}
		if idx.supports[key] == nil {
			idx.supports[key] = make(map[party.ID]bool)
		}
		idx.supports[key][s.Supporter] = true
	}
	for _, s := range sec.Shares() {
		idx.shares[shareKey{s.RequestID, s.Signer}] = true
	}
	for _, s := range sec.Signatures() {
		idx.signatures[s.RequestID] = true
	}
	return idx
}

func (idx *validatedIndex) hasDealing(cfg types.ConfigID, dealer party.ID) bool {
	return idx.dealings[dealingKey{cfg, dealer}]
}

func (idx *validatedIndex) hasSupport(cfg types.ConfigID, dealer, supporter party.ID) bool {
	return idx.supports[dealingKey{cfg, dealer}][supporter]
}

func (idx *validatedIndex) hasShare(req types.RequestID, signer party.ID) bool {
	return idx.shares[shareKey{req, signer}]
}

func (idx *validatedIndex) hasSignature(req types.RequestID) bool {
	return idx.signatures[req]
}

func sortedConfigs(configs map[types.ConfigID]*types.TranscriptConfig) []*types.TranscriptConfig {
	out := make([]*types.TranscriptConfig, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

func sectionMessages(sec artifact.Section) []*artifact.Message {
	var out []*artifact.Message
	for _, d := range sec.Dealings() {
		out = append(out, artifact.NewDealing(d))
	}
	for _, s := range sec.Supports() {
		out = append(out, artifact.NewSupport(s))
	}
	for _, s := range sec.Shares() {
		out = append(out, artifact.NewShare(s))
	}
	for _, s := range sec.Signatures() {
		out = append(out, artifact.NewSignature(s))
	}
	return out
}
