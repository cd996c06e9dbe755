// Package test provides the deterministic fake crypto service and the
// in-memory multi-node harness used by the package tests and the CLI
// simulation.
package test

import (
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/zeebo/blake3"

	"github.com/luxfi/tecdsa/pkg/crypto"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
)

// SubnetKey derives a deterministic subnet signing key from a seed.
func SubnetKey(seed string) *secp256k1.PrivateKey {
	sum := blake3.Sum256([]byte(seed))
	priv := secp256k1.PrivKeyFromBytes(sum[:])
	return priv
}

// Crypto is a structural stand-in for the real threshold crypto
// backend. Artifacts are keyed hashes, so public and private checks
// are recomputations, and aggregation produces a real (non-threshold)
// ECDSA signature under the subnet key so end-to-end results are
// verifiable. All outputs are deterministic.
type Crypto struct {
	node party.ID
	key  *secp256k1.PrivateKey

	mu          sync.Mutex
	errs        map[string]error
	privInvalid map[string]bool
}

// NewCrypto builds a fake crypto service for one node. All nodes of a
// subnet share the same key so their transcripts and signatures agree.
func NewCrypto(node party.ID, key *secp256k1.PrivateKey) *Crypto {
	return &Crypto{
		node:        node,
		key:         key,
		errs:        make(map[string]error),
		privInvalid: make(map[string]bool),
	}
}

// FailWith makes the named operation ("create_dealing",
// "verify_dealing_public", ...) return err until cleared with a nil
// err. Used to exercise operational-failure paths.
func (c *Crypto) FailWith(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, op)
		return
	}
	c.errs[op] = err
}

// MarkPrivateInvalid makes private verification of the given dealing
// fail, emulating a dealer that encrypted a bad share to this node.
func (c *Crypto) MarkPrivateInvalid(cfg types.ConfigID, dealer party.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.privInvalid[cfg.String()+"/"+string(dealer)] = true
}

func (c *Crypto) injected(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[op]
}

func digest(parts ...[]byte) []byte {
	h := blake3.New()
	for _, p := range parts {
		// Length-prefix framing keeps adjacent fields unambiguous.
		h.Write([]byte{byte(len(p)), byte(len(p) >> 8)})
		h.Write(p)
	}
	return h.Sum(nil)
}

func configIDBytes(id types.ConfigID) []byte {
	raw, _ := types.MarshalCanonical(id)
	return raw
}

func dealingDigest(cfg types.ConfigID, dealer party.ID) []byte {
	return digest([]byte("dealing"), configIDBytes(cfg), []byte(dealer))
}

func supportDigest(cfg types.ConfigID, dealer, supporter party.ID) []byte {
	return digest([]byte("support"), configIDBytes(cfg), []byte(dealer), []byte(supporter))
}

func shareDigest(req *types.SignatureRequest, signer party.ID) []byte {
	return digest([]byte("share"), []byte(req.ID), req.MessageHash, []byte(signer))
}

// CreateDealing implements crypto.Service.
func (c *Crypto) CreateDealing(cfg *types.TranscriptConfig) (*types.Dealing, error) {
	if err := c.injected("create_dealing"); err != nil {
		return nil, err
	}
	return &types.Dealing{
		ConfigID: cfg.ID,
		Dealer:   c.node,
		Raw:      dealingDigest(cfg.ID, c.node),
	}, nil
}

// VerifyDealingPublic implements crypto.Service.
func (c *Crypto) VerifyDealingPublic(cfg *types.TranscriptConfig, d *types.Dealing) error {
	if err := c.injected("verify_dealing_public"); err != nil {
		return err
	}
	if string(d.Raw) != string(dealingDigest(d.ConfigID, d.Dealer)) {
		return crypto.Invalid("dealing digest mismatch for %s by %s", d.ConfigID, d.Dealer)
	}
	return nil
}

// VerifyDealingPrivate implements crypto.Service.
func (c *Crypto) VerifyDealingPrivate(cfg *types.TranscriptConfig, d *types.Dealing) error {
	if err := c.injected("verify_dealing_private"); err != nil {
		return err
	}
	c.mu.Lock()
	bad := c.privInvalid[d.ConfigID.String()+"/"+string(d.Dealer)]
	c.mu.Unlock()
	if bad {
		return crypto.Invalid("share for %s does not decrypt", c.node)
	}
	return c.VerifyDealingPublic(cfg, d)
}

// CreateSupport implements crypto.Service.
func (c *Crypto) CreateSupport(cfg *types.TranscriptConfig, d *types.Dealing) (*types.DealingSupport, error) {
	if err := c.injected("create_support"); err != nil {
		return nil, err
	}
	return &types.DealingSupport{
		ConfigID:  d.ConfigID,
		Dealer:    d.Dealer,
		Supporter: c.node,
		Raw:       supportDigest(d.ConfigID, d.Dealer, c.node),
	}, nil
}

// VerifySupport implements crypto.Service.
func (c *Crypto) VerifySupport(cfg *types.TranscriptConfig, s *types.DealingSupport) error {
	if err := c.injected("verify_support"); err != nil {
		return err
	}
	if string(s.Raw) != string(supportDigest(s.ConfigID, s.Dealer, s.Supporter)) {
		return crypto.Invalid("support digest mismatch for %s by %s", s.ConfigID, s.Supporter)
	}
	return nil
}

// CreateTranscript implements crypto.Service.
func (c *Crypto) CreateTranscript(cfg *types.TranscriptConfig, dealings []*types.Dealing, supports []*types.DealingSupport) (*types.Transcript, error) {
	if err := c.injected("create_transcript"); err != nil {
		return nil, err
	}
	if len(dealings) < cfg.Threshold {
		return nil, crypto.Invalid("%d dealings for threshold %d", len(dealings), cfg.Threshold)
	}
	parts := [][]byte{[]byte("transcript"), configIDBytes(cfg.ID)}
	for _, d := range dealings {
		parts = append(parts, d.Raw)
	}
	return &types.Transcript{ConfigID: cfg.ID, Raw: digest(parts...)}, nil
}

// CreateSignatureShare implements crypto.Service.
func (c *Crypto) CreateSignatureShare(req *types.SignatureRequest, quad *types.Quadruple) (*types.SignatureShare, error) {
	if err := c.injected("create_share"); err != nil {
		return nil, err
	}
	return &types.SignatureShare{
		RequestID: req.ID,
		Signer:    c.node,
		Raw:       shareDigest(req, c.node),
	}, nil
}

// VerifyShare implements crypto.Service.
func (c *Crypto) VerifyShare(req *types.SignatureRequest, share *types.SignatureShare) error {
	if err := c.injected("verify_share"); err != nil {
		return err
	}
	if string(share.Raw) != string(shareDigest(req, share.Signer)) {
		return crypto.Invalid("share digest mismatch for %s by %s", req.ID, share.Signer)
	}
	return nil
}

// Aggregate implements crypto.Service. Signing uses RFC 6979 nonces,
// so every replica aggregating the same request produces the same
// signature bytes.
func (c *Crypto) Aggregate(req *types.SignatureRequest, shares []*types.SignatureShare) (*types.Signature, error) {
	if err := c.injected("aggregate"); err != nil {
		return nil, err
	}
	signers := make(map[party.ID]bool)
	for _, s := range shares {
		if err := c.VerifyShare(req, s); err != nil {
			return nil, err
		}
		signers[s.Signer] = true
	}
	if len(signers) < req.Threshold {
		return nil, crypto.Invalid("%d distinct signers for threshold %d", len(signers), req.Threshold)
	}
	sig := secpecdsa.Sign(c.key, req.MessageHash)
	return &types.Signature{RequestID: req.ID, Raw: sig.Serialize()}, nil
}

// VerifySignature checks an aggregated signature against the subnet
// public key. Helper for tests and the CLI; the protocol itself leaves
// pre-delivery signature validation as an extension point.
func VerifySignature(pub *secp256k1.PublicKey, req *types.SignatureRequest, sig *types.Signature) bool {
	parsed, err := secpecdsa.ParseDERSignature(sig.Raw)
	if err != nil {
		return false
	}
	return parsed.Verify(req.MessageHash, pub)
}
