package tecdsa

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
	"github.com/luxfi/tecdsa/pkg/crypto"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
)

// Params configures the payload state machine.
type Params struct {
	// TargetQuadruples is the number of 4-tuples (in creation plus
	// available) the pipeline keeps ready for incoming requests.
	TargetQuadruples int
}

// DefaultParams returns the default pipeline configuration.
func DefaultParams() Params {
	return Params{TargetQuadruples: 4}
}

// PayloadBuilder derives, for each newly finalized tip, the next
// block's ECDSA payload from the previous payload plus the validated
// pool contents and the tip's pending signature requests.
//
// Every decision is a pure function of (previous payload, validated
// pool contents, tip request list), so all correct replicas observing
// the same finalized history compute byte-identical payloads.
type PayloadBuilder struct {
	crypto crypto.Service
	params Params
	log    *logrus.Entry
}

// NewPayloadBuilder builds a payload builder.
func NewPayloadBuilder(svc crypto.Service, params Params, log *logrus.Entry) *PayloadBuilder {
	if params.TargetQuadruples <= 0 {
		params = DefaultParams()
	}
	return &PayloadBuilder{
		crypto: svc,
		params: params,
		log:    log.WithField("component", "payload_builder"),
	}
}

// Next computes the payload for the block extending the tip, together
// with the pool mutations (newly aggregated signatures) that should
// accompany it.
func (b *PayloadBuilder) Next(tip *chain.Tip, validated artifact.Section) (*types.Payload, artifact.ChangeSet, error) {
	if tip == nil || tip.Payload == nil {
		return nil, nil, fmt.Errorf("tecdsa: payload builder needs a finalized tip")
	}
	next := tip.Payload.Copy()
	next.Height = tip.Height + 1
	requests := tip.RequestSet()
	pool := indexValidated(validated)

	// 1. Drop pairings whose request left the replicated state. The
	// consumed tuple is not returned; its secrets may have leaked into
	// the aborted signing attempt.
	for _, reqID := range next.OngoingIDs() {
		if _, ok := requests[reqID]; !ok {
			delete(next.Ongoing, reqID)
		}
	}

	// 2.-4. Fold completed transcripts into the in-creation tuples and
	// issue the follow-up configs their presence unlocks.
	b.completeTranscripts(tip, next, validated)
	b.advanceQuadruples(tip, next)

	// 5. Graduate tuples holding all four terminal transcripts.
	for _, id := range next.InCreationIDs() {
		q := next.InCreation[id]
		if q.Done() {
			next.Available[id] = q.Quadruple()
			delete(next.InCreation, id)
			b.log.WithField("quadruple", id).Debug("quadruple complete")
		}
	}

	// 6. Pair unmatched requests with available tuples,
	// oldest-available-first: ascending quadruple ID, requests in
	// ascending request-ID order.
	for _, req := range sortedRequests(requests) {
		if _, ok := next.Ongoing[req.ID]; ok {
			continue
		}
		if pool.hasSignature(req.ID) {
			continue // already answered, awaiting removal upstream
		}
		avail := next.AvailableIDs()
		if len(avail) == 0 {
			break
		}
		qid := avail[0]
		next.Ongoing[req.ID] = &types.OngoingSigning{
			Request:     *req,
			QuadrupleID: qid,
			Quadruple:   *next.Available[qid],
		}
		delete(next.Available, qid)
	}

	// 7. Aggregate requests holding enough distinct-signer shares.
	cs := b.aggregate(next, validated, pool)

	// 8. Keep the pipeline full.
	for len(next.InCreation)+len(next.Available) < b.params.TargetQuadruples {
		id := types.QuadrupleID(next.NextQuadrupleSeq)
		next.NextQuadrupleSeq++
		next.InCreation[id] = &types.QuadrupleInCreation{
			KappaConfig:  b.newConfig(tip, next, types.RandomMasked, nil),
			LambdaConfig: b.newConfig(tip, next, types.RandomMasked, nil),
		}
	}

	sort.Slice(next.Signatures, func(i, j int) bool {
		return next.Signatures[i].RequestID < next.Signatures[j].RequestID
	})
	return next, cs, nil
}

// Validate checks a proposed payload by recomputing it from the same
// inputs and comparing canonical bytes.
func (b *PayloadBuilder) Validate(tip *chain.Tip, validated artifact.Section, proposed *types.Payload) error {
	recomputed, _, err := b.Next(tip, validated)
	if err != nil {
		return err
	}
	want, err := recomputed.MarshalCanonical()
	if err != nil {
		return err
	}
	got, err := proposed.MarshalCanonical()
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("tecdsa: proposed payload at height %d diverges from recomputation", proposed.Height)
	}
	return nil
}

// PoolChanges returns only the pool-side effect of payload
// construction: newly aggregatable signatures. It lets the facade
// publish signatures as soon as enough shares are validated, without
// waiting for the block maker to run.
func (b *PayloadBuilder) PoolChanges(tip *chain.Tip, validated artifact.Section) artifact.ChangeSet {
	if tip == nil || tip.Payload == nil {
		return nil
	}
	_, cs, err := b.Next(tip, validated)
	if err != nil {
		b.log.WithError(err).Warn("payload recomputation failed")
		return nil
	}
	return cs
}

// completeTranscripts builds the transcript of every pending config
// for which the validated pool holds enough supported dealings.
func (b *PayloadBuilder) completeTranscripts(tip *chain.Tip, next *types.Payload, validated artifact.Section) {
	dealings := validated.Dealings()
	supports := validated.Supports()

	supporters := make(map[dealingKey]int)
	for _, s := range supports {
		supporters[dealingKey{s.ConfigID, s.Dealer}]++
	}

	build := func(cfg *types.TranscriptConfig) *types.Transcript {
		var ds []*types.Dealing
		var ss []*types.DealingSupport
		for _, d := range dealings {
			if d.ConfigID != cfg.ID || !cfg.Dealers.Contains(d.Dealer) {
				continue
			}
			if supporters[dealingKey{d.ConfigID, d.Dealer}] < cfg.Threshold {
				continue
			}
			ds = append(ds, d)
		}
		if len(ds) < cfg.Threshold {
			return nil
		}
		for _, s := range supports {
			if s.ConfigID == cfg.ID {
				ss = append(ss, s)
			}
		}
		tr, err := b.crypto.CreateTranscript(cfg, ds, ss)
		if err != nil {
			// Operational; the dealings stay in the pool and the
			// transcript is retried at the next height.
			b.log.WithError(err).WithField("config", cfg.ID).Warn("create transcript failed")
			return nil
		}
		return tr
	}

	for _, id := range next.InCreationIDs() {
		q := next.InCreation[id]
		fill := func(cfg *types.TranscriptConfig, slot **types.Transcript) {
			if cfg == nil || *slot != nil {
				return
			}
			if tr := build(cfg); tr != nil {
				*slot = tr
			}
		}
		fill(q.KappaConfig, &q.KappaMasked)
		fill(q.LambdaConfig, &q.LambdaMasked)
		fill(q.UnmaskKappaConfig, &q.KappaUnmasked)
		fill(q.KeyTimesLambdaConfig, &q.KeyTimesLambda)
		fill(q.KappaTimesLambdaConfig, &q.KappaTimesLambda)
	}
}

// advanceQuadruples issues the follow-up configs that newly present
// transcripts unlock. Slots only ever fill; none is cleared.
func (b *PayloadBuilder) advanceQuadruples(tip *chain.Tip, next *types.Payload) {
	for _, id := range next.InCreationIDs() {
		q := next.InCreation[id]

		// kappa_masked -> reshare it to unmasked form.
		if q.KappaMasked != nil && q.UnmaskKappaConfig == nil {
			q.UnmaskKappaConfig = b.newConfig(tip, next, types.ReshareToUnmasked,
				[]types.ConfigID{q.KappaConfig.ID})
		}

		// lambda_masked -> multiply with the subnet signing key.
		if q.LambdaMasked != nil && q.KeyTimesLambdaConfig == nil && tip.Key != nil {
			q.KeyTimesLambdaConfig = b.newConfig(tip, next, types.MaskedMultiply,
				[]types.ConfigID{tip.Key.ConfigID, q.LambdaConfig.ID})
		}

		// kappa_unmasked and lambda_masked -> multiply them.
		if q.KappaUnmasked != nil && q.LambdaMasked != nil && q.KappaTimesLambdaConfig == nil {
			q.KappaTimesLambdaConfig = b.newConfig(tip, next, types.MaskedMultiply,
				[]types.ConfigID{q.UnmaskKappaConfig.ID, q.LambdaConfig.ID})
		}
	}
}

// aggregate combines shares into full signatures for every ongoing
// request that reached its threshold, records them for delivery and
// drops the pairing.
func (b *PayloadBuilder) aggregate(next *types.Payload, validated artifact.Section, pool *validatedIndex) artifact.ChangeSet {
	var cs artifact.ChangeSet
	shares := validated.Shares()
	for _, reqID := range next.OngoingIDs() {
		ongoing := next.Ongoing[reqID]
		req := &ongoing.Request

		if pool.hasSignature(reqID) {
			// A peer already aggregated; adopt its result.
			for _, sig := range validated.Signatures() {
				if sig.RequestID == reqID {
					next.Signatures = append(next.Signatures, *sig)
					break
				}
			}
			delete(next.Ongoing, reqID)
			continue
		}

		var reqShares []*types.SignatureShare
		signers := make(map[party.ID]bool)
		for _, s := range shares {
			if s.RequestID != reqID || !req.Signers.Contains(s.Signer) || signers[s.Signer] {
				continue
			}
			signers[s.Signer] = true
			reqShares = append(reqShares, s)
		}
		if len(reqShares) < req.Threshold {
			continue
		}
		sig, err := b.crypto.Aggregate(req, reqShares)
		if err != nil {
			b.log.WithError(err).WithField("request", reqID).Warn("aggregation failed")
			continue
		}
		// Full-signature validation before delivery is an open
		// extension point; upstream defines no check yet.
		next.Signatures = append(next.Signatures, *sig)
		delete(next.Ongoing, reqID)
		cs = cs.Add(artifact.NewSignature(sig))
		b.log.WithFields(logrus.Fields{"request": reqID, "shares": len(reqShares)}).Info("signature aggregated")
	}
	return cs
}

func (b *PayloadBuilder) newConfig(tip *chain.Tip, next *types.Payload, kind types.ConfigKind, sources []types.ConfigID) *types.TranscriptConfig {
	id := types.ConfigID{Height: next.Height, Seq: next.NextConfigSeq}
	next.NextConfigSeq++
	return &types.TranscriptConfig{
		ID:        id,
		Kind:      kind,
		Dealers:   tip.Nodes.Copy(),
		Threshold: tip.Threshold,
		Sources:   sources,
	}
}

func sortedRequests(requests map[types.RequestID]*types.SignatureRequest) []*types.SignatureRequest {
	out := make([]*types.SignatureRequest, 0, len(requests))
	for _, r := range requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
