// Package crypto defines the interface to the threshold cryptography
// backend. The orchestration layer is crypto-library-agnostic: it only
// ever calls through Service, and the backend is injected at
// construction. All operations are synchronous.
package crypto

import (
	"errors"
	"fmt"

	"github.com/luxfi/tecdsa/pkg/types"
)

// Service exposes the cryptographic operations the orchestration
// layer depends on. Implementations must be deterministic for the
// operations the payload builder calls (CreateTranscript, Aggregate):
// the same inputs must yield the same bytes on every replica.
//
// Every operation distinguishes two failure modes: an
// InvalidArtifactError means the input artifact fails a cryptographic
// check and must be discarded permanently; any other error is
// operational (I/O, missing key material) and the caller retries on a
// later tick.
type Service interface {
	// CreateDealing constructs this node's dealing for the config.
	CreateDealing(cfg *types.TranscriptConfig) (*types.Dealing, error)

	// VerifyDealingPublic runs the publicly verifiable check on a
	// dealing. It cannot detect a bad encrypted share for a specific
	// recipient; that is VerifyDealingPrivate's job.
	VerifyDealingPublic(cfg *types.TranscriptConfig, d *types.Dealing) error

	// VerifyDealingPrivate decrypts and checks this node's own share
	// of the dealing.
	VerifyDealingPrivate(cfg *types.TranscriptConfig, d *types.Dealing) error

	// CreateSupport constructs this node's support attestation for a
	// privately verified dealing.
	CreateSupport(cfg *types.TranscriptConfig, d *types.Dealing) (*types.DealingSupport, error)

	// VerifySupport checks a peer's support attestation for a
	// validated dealing.
	VerifySupport(cfg *types.TranscriptConfig, s *types.DealingSupport) error

	// CreateTranscript combines validated dealings and their supports
	// into the config's transcript.
	CreateTranscript(cfg *types.TranscriptConfig, dealings []*types.Dealing, supports []*types.DealingSupport) (*types.Transcript, error)

	// CreateSignatureShare constructs this node's share for a request
	// using the 4-tuple paired with it.
	CreateSignatureShare(req *types.SignatureRequest, quad *types.Quadruple) (*types.SignatureShare, error)

	// VerifyShare checks a peer's signature share.
	VerifyShare(req *types.SignatureRequest, share *types.SignatureShare) error

	// Aggregate combines at least req.Threshold distinct-signer shares
	// into a full signature.
	Aggregate(req *types.SignatureRequest, shares []*types.SignatureShare) (*types.Signature, error)
}

// InvalidArtifactError marks an artifact that failed a cryptographic
// check. Artifacts rejected with this error are discarded permanently;
// any other error from a Service call leaves the artifact pending.
type InvalidArtifactError struct {
	Reason string
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("crypto: invalid artifact: %s", e.Reason)
}

// Invalid builds an InvalidArtifactError.
func Invalid(format string, args ...interface{}) error {
	return &InvalidArtifactError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err marks a permanently invalid artifact,
// as opposed to an operational failure.
func IsInvalid(err error) bool {
	var e *InvalidArtifactError
	return errors.As(err, &e)
}
