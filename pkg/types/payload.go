package types

import "sort"

// QuadrupleID is the creation sequence number of a 4-tuple. It is
// minted from Payload.NextQuadrupleSeq and never reused; ascending
// QuadrupleID is the replica-agreed order in which available tuples
// are consumed by signing requests.
type QuadrupleID uint64

// QuadrupleInCreation is a partially built 4-tuple. Each slot is
// either absent, "config issued, transcript pending" (config set,
// transcript nil), or "transcript present". Slots are monotonic: once
// filled they are never cleared except by removing the whole tuple.
type QuadrupleInCreation struct {
	KappaConfig *TranscriptConfig `cbor:"1,keyasint"`
	KappaMasked *Transcript       `cbor:"2,keyasint,omitempty"`

	LambdaConfig *TranscriptConfig `cbor:"3,keyasint"`
	LambdaMasked *Transcript       `cbor:"4,keyasint,omitempty"`

	UnmaskKappaConfig *TranscriptConfig `cbor:"5,keyasint,omitempty"`
	KappaUnmasked     *Transcript       `cbor:"6,keyasint,omitempty"`

	KeyTimesLambdaConfig *TranscriptConfig `cbor:"7,keyasint,omitempty"`
	KeyTimesLambda       *Transcript       `cbor:"8,keyasint,omitempty"`

	KappaTimesLambdaConfig *TranscriptConfig `cbor:"9,keyasint,omitempty"`
	KappaTimesLambda       *Transcript       `cbor:"10,keyasint,omitempty"`
}

// Done reports whether all four terminal transcripts are present.
func (q *QuadrupleInCreation) Done() bool {
	return q.KappaUnmasked != nil &&
		q.LambdaMasked != nil &&
		q.KeyTimesLambda != nil &&
		q.KappaTimesLambda != nil
}

// Quadruple extracts the completed 4-tuple. It must only be called
// when Done reports true.
func (q *QuadrupleInCreation) Quadruple() *Quadruple {
	return &Quadruple{
		KappaUnmasked:    *q.KappaUnmasked,
		LambdaMasked:     *q.LambdaMasked,
		KeyTimesLambda:   *q.KeyTimesLambda,
		KappaTimesLambda: *q.KappaTimesLambda,
	}
}

// PendingConfigs returns the configs that have been issued but whose
// transcript has not yet been produced.
func (q *QuadrupleInCreation) PendingConfigs() []*TranscriptConfig {
	var out []*TranscriptConfig
	add := func(cfg *TranscriptConfig, tr *Transcript) {
		if cfg != nil && tr == nil {
			out = append(out, cfg)
		}
	}
	add(q.KappaConfig, q.KappaMasked)
	add(q.LambdaConfig, q.LambdaMasked)
	add(q.UnmaskKappaConfig, q.KappaUnmasked)
	add(q.KeyTimesLambdaConfig, q.KeyTimesLambda)
	add(q.KappaTimesLambdaConfig, q.KappaTimesLambda)
	return out
}

// Quadruple is a complete 4-tuple: the four transcripts needed to
// produce one ECDSA signature. Immutable, consumed exactly once.
type Quadruple struct {
	KappaUnmasked    Transcript `cbor:"1,keyasint"`
	LambdaMasked     Transcript `cbor:"2,keyasint"`
	KeyTimesLambda   Transcript `cbor:"3,keyasint"`
	KappaTimesLambda Transcript `cbor:"4,keyasint"`
}

// OngoingSigning pairs a signature request with the complete 4-tuple
// consumed for it.
type OngoingSigning struct {
	Request     SignatureRequest `cbor:"1,keyasint"`
	QuadrupleID QuadrupleID      `cbor:"2,keyasint"`
	Quadruple   Quadruple        `cbor:"3,keyasint"`
}

// Payload is the ECDSA state snapshot embedded in each block. It is
// the only state that crosses consensus rounds; pool artifacts are
// reconstructible from it plus peer contributions.
type Payload struct {
	Height Height `cbor:"1,keyasint"`

	// Sequence counters for minting config and quadruple IDs.
	NextConfigSeq    uint64 `cbor:"2,keyasint"`
	NextQuadrupleSeq uint64 `cbor:"3,keyasint"`

	InCreation map[QuadrupleID]*QuadrupleInCreation `cbor:"4,keyasint"`
	Available  map[QuadrupleID]*Quadruple           `cbor:"5,keyasint"`
	Ongoing    map[RequestID]*OngoingSigning        `cbor:"6,keyasint"`

	// Signatures finished in this payload, to be delivered upstream.
	// Sorted by request ID.
	Signatures []Signature `cbor:"7,keyasint,omitempty"`
}

// NewPayload returns an empty payload at the given height.
func NewPayload(h Height) *Payload {
	return &Payload{
		Height:     h,
		InCreation: make(map[QuadrupleID]*QuadrupleInCreation),
		Available:  make(map[QuadrupleID]*Quadruple),
		Ongoing:    make(map[RequestID]*OngoingSigning),
	}
}

// Copy returns a deep copy of the payload, with Signatures cleared:
// finished signatures are delivered with the block that records them
// and do not carry over.
func (p *Payload) Copy() *Payload {
	out := NewPayload(p.Height)
	out.NextConfigSeq = p.NextConfigSeq
	out.NextQuadrupleSeq = p.NextQuadrupleSeq
	for id, q := range p.InCreation {
		c := *q
		out.InCreation[id] = &c
	}
	for id, q := range p.Available {
		c := *q
		out.Available[id] = &c
	}
	for id, o := range p.Ongoing {
		c := *o
		out.Ongoing[id] = &c
	}
	return out
}

// Configs returns the live transcript configs: every issued config in
// an in-creation tuple whose transcript is still pending. Dealings and
// supports for any other config are stale.
func (p *Payload) Configs() map[ConfigID]*TranscriptConfig {
	out := make(map[ConfigID]*TranscriptConfig)
	for _, q := range p.InCreation {
		for _, cfg := range q.PendingConfigs() {
			out[cfg.ID] = cfg
		}
	}
	return out
}

// InCreationIDs returns the in-creation tuple IDs in ascending order.
func (p *Payload) InCreationIDs() []QuadrupleID {
	return sortedQuadrupleIDs(len(p.InCreation), func(f func(QuadrupleID)) {
		for id := range p.InCreation {
			f(id)
		}
	})
}

// AvailableIDs returns the available tuple IDs in ascending order.
func (p *Payload) AvailableIDs() []QuadrupleID {
	return sortedQuadrupleIDs(len(p.Available), func(f func(QuadrupleID)) {
		for id := range p.Available {
			f(id)
		}
	})
}

// OngoingIDs returns the ongoing request IDs in ascending order.
func (p *Payload) OngoingIDs() []RequestID {
	out := make([]RequestID, 0, len(p.Ongoing))
	for id := range p.Ongoing {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedQuadrupleIDs(n int, each func(func(QuadrupleID))) []QuadrupleID {
	out := make([]QuadrupleID, 0, n)
	each(func(id QuadrupleID) { out = append(out, id) })
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
