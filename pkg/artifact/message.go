// Package artifact defines the shared artifact pool the replicas
// gossip through: the message envelope, change sets, the pool
// interface, and an in-memory reference implementation.
//
// The pool is partitioned into validated and unvalidated sections.
// The orchestration core never mutates the pool directly; it proposes
// an ordered change set that the pool owner applies after the tick.
package artifact

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/luxfi/tecdsa/pkg/types"
)

// Kind discriminates the artifact kinds stored in the pool.
type Kind uint8

const (
	KindDealing Kind = iota + 1
	KindSupport
	KindShare
	KindSignature
)

func (k Kind) String() string {
	switch k {
	case KindDealing:
		return "dealing"
	case KindSupport:
		return "support"
	case KindShare:
		return "share"
	case KindSignature:
		return "signature"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MessageID is the content address of a pool message: the blake3 hash
// of its canonical encoding.
type MessageID [32]byte

func (id MessageID) String() string { return hex.EncodeToString(id[:8]) }

// Message is the envelope for one pool artifact. Exactly one of the
// payload fields is set, per Kind.
type Message struct {
	Kind Kind `cbor:"1,keyasint"`

	Dealing   *types.Dealing        `cbor:"2,keyasint,omitempty"`
	Support   *types.DealingSupport `cbor:"3,keyasint,omitempty"`
	Share     *types.SignatureShare `cbor:"4,keyasint,omitempty"`
	Signature *types.Signature      `cbor:"5,keyasint,omitempty"`
}

// NewDealing wraps a dealing in its envelope.
func NewDealing(d *types.Dealing) *Message {
	return &Message{Kind: KindDealing, Dealing: d}
}

// NewSupport wraps a dealing support in its envelope.
func NewSupport(s *types.DealingSupport) *Message {
	return &Message{Kind: KindSupport, Support: s}
}

// NewShare wraps a signature share in its envelope.
func NewShare(s *types.SignatureShare) *Message {
	return &Message{Kind: KindShare, Share: s}
}

// NewSignature wraps a full signature in its envelope.
func NewSignature(s *types.Signature) *Message {
	return &Message{Kind: KindSignature, Signature: s}
}

// ID returns the content address of the message.
func (m *Message) ID() (MessageID, error) {
	raw, err := types.MarshalCanonical(m)
	if err != nil {
		return MessageID{}, fmt.Errorf("artifact: hashing message: %w", err)
	}
	return MessageID(blake3.Sum256(raw)), nil
}

// MustID is ID for messages built by this process, where encoding
// cannot fail.
func (m *Message) MustID() MessageID {
	id, err := m.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Height returns the height the message's artifact is tied to, for
// staleness decisions. Full signatures have no height and return the
// zero value with ok=false.
func (m *Message) Height() (types.Height, bool) {
	switch m.Kind {
	case KindDealing:
		return m.Dealing.ConfigID.Height, true
	case KindSupport:
		return m.Support.ConfigID.Height, true
	case KindShare:
		return m.Share.Height, true
	default:
		return 0, false
	}
}

// Attribute is the lightweight description of a message advertised to
// peers before the message body is fetched.
type Attribute struct {
	Kind   Kind         `cbor:"1,keyasint"`
	Height types.Height `cbor:"2,keyasint"`
}

// Attribute derives the advertised attribute of the message.
func (m *Message) Attribute() Attribute {
	h, _ := m.Height()
	return Attribute{Kind: m.Kind, Height: h}
}
