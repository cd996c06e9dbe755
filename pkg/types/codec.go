package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The block payload must serialize into a canonical, replica-agreed
// byte form so that independent validators can recompute and compare
// payloads bit for bit. We use CBOR core deterministic encoding:
// map keys sorted, shortest-form integers, no indefinite lengths.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("types: building canonical encoder: %w", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Errorf("types: building decoder: %w", err))
	}
}

// MarshalCanonical encodes v in the canonical byte form.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// MarshalCanonical encodes the payload in its canonical byte form.
func (p *Payload) MarshalCanonical() ([]byte, error) {
	out, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("types: marshaling payload: %w", err)
	}
	return out, nil
}

// UnmarshalPayload decodes a canonical payload.
func UnmarshalPayload(data []byte) (*Payload, error) {
	p := NewPayload(0)
	if err := decMode.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("types: unmarshaling payload: %w", err)
	}
	if p.InCreation == nil {
		p.InCreation = make(map[QuadrupleID]*QuadrupleInCreation)
	}
	if p.Available == nil {
		p.Available = make(map[QuadrupleID]*Quadruple)
	}
	if p.Ongoing == nil {
		p.Ongoing = make(map[RequestID]*OngoingSigning)
	}
	return p, nil
}
