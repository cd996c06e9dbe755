package tecdsa_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/tecdsa/internal/test"
	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/chain"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/pool"
	"github.com/luxfi/tecdsa/pkg/types"
	"github.com/luxfi/tecdsa/protocols/tecdsa"
)

func quietEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fixture drives a single node's pre-signer against a hand-built tip.
type fixture struct {
	t      *testing.T
	self   party.ID
	nodes  party.IDSlice
	tips   *chain.StaticTip
	crypto *test.Crypto
	ps     *tecdsa.PreSigner
	pool   *artifact.MemPool
}

func newFixture(t *testing.T, self party.ID, nodes ...party.ID) *fixture {
	key := test.SubnetKey("subnet-key")
	tip := &chain.Tip{
		Height:    1,
		Payload:   types.NewPayload(1),
		Nodes:     party.NewIDSlice(nodes),
		Threshold: 2,
		Key:       &types.Transcript{ConfigID: types.ConfigID{}, Raw: key.PubKey().SerializeCompressed()},
	}
	svc := test.NewCrypto(self, key)
	tips := chain.NewStaticTip(tip)
	return &fixture{
		t:      t,
		self:   self,
		nodes:  party.NewIDSlice(nodes),
		tips:   tips,
		crypto: svc,
		ps:     tecdsa.NewPreSigner(self, tips, svc, pool.NewPool(1), quietEntry()),
		pool:   artifact.NewMemPool(),
	}
}

// liveConfig issues a RandomMasked config into the tip payload as the
// kappa config of a fresh in-creation tuple, making it live.
func (f *fixture) liveConfig() *types.TranscriptConfig {
	tip := f.tips.FinalizedTip()
	p := tip.Payload
	cfg := &types.TranscriptConfig{
		ID:        types.ConfigID{Height: tip.Height, Seq: p.NextConfigSeq},
		Kind:      types.RandomMasked,
		Dealers:   f.nodes.Copy(),
		Threshold: tip.Threshold,
	}
	p.NextConfigSeq++
	qid := types.QuadrupleID(p.NextQuadrupleSeq)
	p.NextQuadrupleSeq++
	p.InCreation[qid] = &types.QuadrupleInCreation{KappaConfig: cfg}
	return cfg
}

// ongoing installs a signing pairing for req in the tip payload and,
// unless withdrawn is set, lists the request in the tip.
func (f *fixture) ongoing(req *types.SignatureRequest, withdrawn bool) {
	tip := f.tips.FinalizedTip()
	tip.Payload.Ongoing[req.ID] = &types.OngoingSigning{
		Request:     *req,
		QuadrupleID: 0,
		Quadruple:   dummyQuadruple(),
	}
	if !withdrawn {
		tip.Requests = append(tip.Requests, req)
	}
}

// advanceTip replaces the tip with an empty payload at the next
// height, making every previous config stale.
func (f *fixture) advanceTip() {
	old := f.tips.FinalizedTip()
	f.tips.SetTip(&chain.Tip{
		Height:    old.Height + 1,
		Payload:   types.NewPayload(old.Height + 1),
		Nodes:     old.Nodes,
		Threshold: old.Threshold,
		Key:       old.Key,
	})
}

// tick runs one on-state-change and applies the change set.
func (f *fixture) tick() artifact.ChangeSet {
	cs := f.ps.OnStateChange(f.pool)
	require.NoError(f.t, f.pool.Apply(cs))
	return cs
}

// settle ticks until the pre-signer reaches a fixed point.
func (f *fixture) settle() {
	for i := 0; i < 10; i++ {
		if len(f.tick()) == 0 {
			return
		}
	}
	f.t.Fatal("pre-signer did not reach a fixed point")
}

// peerDealing builds a valid dealing by the given peer.
func (f *fixture) peerDealing(cfg *types.TranscriptConfig, peer party.ID) *types.Dealing {
	d, err := test.NewCrypto(peer, test.SubnetKey("subnet-key")).CreateDealing(cfg)
	require.NoError(f.t, err)
	return d
}

// peerSupport builds a valid support by the given peer.
func (f *fixture) peerSupport(cfg *types.TranscriptConfig, d *types.Dealing, peer party.ID) *types.DealingSupport {
	s, err := test.NewCrypto(peer, test.SubnetKey("subnet-key")).CreateSupport(cfg, d)
	require.NoError(f.t, err)
	return s
}

// peerShare builds a valid signature share by the given peer.
func (f *fixture) peerShare(req *types.SignatureRequest, peer party.ID) *types.SignatureShare {
	quad := dummyQuadruple()
	s, err := test.NewCrypto(peer, test.SubnetKey("subnet-key")).CreateSignatureShare(req, &quad)
	require.NoError(f.t, err)
	s.Height = f.tips.FinalizedTip().Height
	return s
}

func dummyQuadruple() types.Quadruple {
	tr := func(seq uint64) types.Transcript {
		return types.Transcript{ConfigID: types.ConfigID{Height: 1, Seq: seq}, Raw: []byte{byte(seq)}}
	}
	return types.Quadruple{
		KappaUnmasked:    tr(100),
		LambdaMasked:     tr(101),
		KeyTimesLambda:   tr(102),
		KappaTimesLambda: tr(103),
	}
}

func validatedDealingKeys(p *artifact.MemPool) map[types.ConfigID]map[party.ID]int {
	out := make(map[types.ConfigID]map[party.ID]int)
	for _, d := range p.Validated().Dealings() {
		if out[d.ConfigID] == nil {
			out[d.ConfigID] = make(map[party.ID]int)
		}
		out[d.ConfigID][d.Dealer]++
	}
	return out
}
