package artifact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/tecdsa/pkg/artifact"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
)

func dealing(seq uint64, dealer party.ID) *types.Dealing {
	return &types.Dealing{
		ConfigID: types.ConfigID{Height: 1, Seq: seq},
		Dealer:   dealer,
		Raw:      []byte("dealing-" + dealer),
	}
}

func TestMessageID(t *testing.T) {
	a := artifact.NewDealing(dealing(0, "alice"))
	b := artifact.NewDealing(dealing(0, "alice"))
	c := artifact.NewDealing(dealing(0, "bob"))

	assert.Equal(t, a.MustID(), b.MustID(), "identical content hashes identically")
	assert.NotEqual(t, a.MustID(), c.MustID())
}

func TestInsertAndPartitions(t *testing.T) {
	p := artifact.NewMemPool()
	msg := artifact.NewDealing(dealing(0, "alice"))
	require.NoError(t, p.Insert(msg))

	assert.Len(t, p.Unvalidated().Dealings(), 1)
	assert.Empty(t, p.Validated().Dealings())

	// Re-delivery is a no-op.
	require.NoError(t, p.Insert(msg))
	v, u := p.Len()
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, u)
}

func TestApplyMoveAndRemove(t *testing.T) {
	p := artifact.NewMemPool()
	good := artifact.NewDealing(dealing(0, "alice"))
	bad := artifact.NewDealing(dealing(0, "mallory"))
	require.NoError(t, p.Insert(good))
	require.NoError(t, p.Insert(bad))

	var cs artifact.ChangeSet
	cs = cs.Move(good)
	cs = cs.Discard(bad)
	require.NoError(t, p.Apply(cs))

	assert.Len(t, p.Validated().Dealings(), 1)
	assert.Empty(t, p.Unvalidated().Dealings())

	// Inserting an already validated message is a no-op.
	require.NoError(t, p.Insert(good))
	_, u := p.Len()
	assert.Equal(t, 0, u)

	require.NoError(t, p.Apply(artifact.ChangeSet{}.Purge(good)))
	v, _ := p.Len()
	assert.Equal(t, 0, v)
}

func TestAddValidated(t *testing.T) {
	p := artifact.NewMemPool()
	share := &types.SignatureShare{RequestID: "req", Signer: "alice", Height: 3, Raw: []byte("s")}
	require.NoError(t, p.Apply(artifact.ChangeSet{}.Add(artifact.NewShare(share))))
	assert.Len(t, p.Validated().Shares(), 1)
}

func TestSectionOrderingIsDeterministic(t *testing.T) {
	p := artifact.NewMemPool()
	var cs artifact.ChangeSet
	for _, d := range []*types.Dealing{dealing(1, "bob"), dealing(0, "bob"), dealing(0, "alice")} {
		cs = cs.Add(artifact.NewDealing(d))
	}
	sup := &types.DealingSupport{ConfigID: types.ConfigID{Height: 1, Seq: 0}, Dealer: "bob", Supporter: "alice", Raw: []byte("x")}
	cs = cs.Add(artifact.NewSupport(sup))
	require.NoError(t, p.Apply(cs))

	ds := p.Validated().Dealings()
	require.Len(t, ds, 3)
	assert.Equal(t, party.ID("alice"), ds[0].Dealer)
	assert.Equal(t, party.ID("bob"), ds[1].Dealer)
	assert.Equal(t, uint64(0), ds[1].ConfigID.Seq)
	assert.Equal(t, uint64(1), ds[2].ConfigID.Seq)

	assert.Len(t, p.Validated().Supports(), 1)
}

func TestAttribute(t *testing.T) {
	d := artifact.NewDealing(dealing(4, "alice"))
	attr := d.Attribute()
	assert.Equal(t, artifact.KindDealing, attr.Kind)
	assert.Equal(t, types.Height(1), attr.Height)

	sig := artifact.NewSignature(&types.Signature{RequestID: "req", Raw: []byte("s")})
	_, ok := sig.Height()
	assert.False(t, ok, "full signatures carry no height")
}
