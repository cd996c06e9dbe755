// Package types defines the data model shared between the pre-signer,
// the payload builder and the artifact pool: transcript configs and
// transcripts, the per-signature artifacts exchanged between replicas,
// and the ECDSA block payload that crosses consensus rounds.
package types

import (
	"fmt"

	"github.com/luxfi/tecdsa/pkg/party"
)

// Height is the height of a finalized block.
type Height uint64

// ConfigID uniquely identifies one transcript config. The height is
// the height of the payload that issued the config; it drives the
// staleness rule for pool garbage collection. IDs order by height,
// then by sequence number.
type ConfigID struct {
	Height Height `cbor:"1,keyasint"`
	Seq    uint64 `cbor:"2,keyasint"`
}

// Less is the replica-agreed total order on config IDs.
func (c ConfigID) Less(o ConfigID) bool {
	if c.Height != o.Height {
		return c.Height < o.Height
	}
	return c.Seq < o.Seq
}

func (c ConfigID) String() string {
	return fmt.Sprintf("%d/%d", c.Height, c.Seq)
}

// ConfigKind tags the type of dealing round a config describes.
type ConfigKind uint8

const (
	// RandomMasked shares a fresh random value in masked form.
	RandomMasked ConfigKind = iota + 1
	// ReshareToUnmasked reshares a masked transcript into unmasked form.
	ReshareToUnmasked
	// MaskedMultiply shares the product of the two source transcripts.
	MaskedMultiply
)

func (k ConfigKind) String() string {
	switch k {
	case RandomMasked:
		return "random_masked"
	case ReshareToUnmasked:
		return "reshare_to_unmasked"
	case MaskedMultiply:
		return "masked_multiply"
	default:
		return fmt.Sprintf("config_kind(%d)", uint8(k))
	}
}

// TranscriptConfig describes one interactive dealing round. It is
// immutable once embedded in a finalized payload.
type TranscriptConfig struct {
	ID        ConfigID      `cbor:"1,keyasint"`
	Kind      ConfigKind    `cbor:"2,keyasint"`
	Dealers   party.IDSlice `cbor:"3,keyasint"`
	Threshold int           `cbor:"4,keyasint"`

	// Sources references the transcripts this config builds on:
	// empty for RandomMasked, the masked source for ReshareToUnmasked,
	// and the two factors (left, right) for MaskedMultiply.
	Sources []ConfigID `cbor:"5,keyasint,omitempty"`
}

// Transcript is the completed output of a config: an opaque
// cryptographic object owned by the payload state machine.
type Transcript struct {
	ConfigID ConfigID `cbor:"1,keyasint"`
	Raw      []byte   `cbor:"2,keyasint"`
}

// Dealing is one dealer's contribution toward a config.
// At most one validated dealing per (ConfigID, Dealer) may ever exist.
type Dealing struct {
	ConfigID ConfigID `cbor:"1,keyasint"`
	Dealer   party.ID `cbor:"2,keyasint"`
	Raw      []byte   `cbor:"3,keyasint"`
}

// DealingSupport is a supporter's attestation that a dealing decrypts
// correctly for its own share. At most one per
// (ConfigID, Dealer, Supporter).
type DealingSupport struct {
	ConfigID  ConfigID `cbor:"1,keyasint"`
	Dealer    party.ID `cbor:"2,keyasint"`
	Supporter party.ID `cbor:"3,keyasint"`
	Raw       []byte   `cbor:"4,keyasint"`
}

// RequestID identifies a pending signature request in replicated
// state. The external system guarantees uniqueness.
type RequestID string

// SignatureRequest is a pending ask for a signature over a message.
// It lives in replicated state; this module only reads it via the
// finalized tip.
type SignatureRequest struct {
	ID          RequestID     `cbor:"1,keyasint"`
	MessageHash []byte        `cbor:"2,keyasint"`
	Threshold   int           `cbor:"3,keyasint"`
	Signers     party.IDSlice `cbor:"4,keyasint"`
}

// SignatureShare is one signer's partial signature for an ongoing
// signing request. At most one validated share per (RequestID, Signer).
// Height is the finalized height at which the share was created and
// feeds the staleness rule.
type SignatureShare struct {
	RequestID RequestID `cbor:"1,keyasint"`
	Signer    party.ID  `cbor:"2,keyasint"`
	Height    Height    `cbor:"3,keyasint"`
	Raw       []byte    `cbor:"4,keyasint"`
}

// Signature is a fully aggregated threshold ECDSA signature.
type Signature struct {
	RequestID RequestID `cbor:"1,keyasint"`
	Raw       []byte    `cbor:"2,keyasint"`
}
