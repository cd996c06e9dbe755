package party_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/luxfi/tecdsa/pkg/party"
)

func TestNewIDSlice(t *testing.T) {
	s := party.NewIDSlice([]party.ID{"charlie", "alice", "bob", "alice"})
	assert.Equal(t, party.IDSlice{"alice", "bob", "charlie"}, s)
}

func TestContains(t *testing.T) {
	s := party.NewIDSlice([]party.ID{"alice", "bob", "charlie"})
	assert.True(t, s.Contains("alice"))
	assert.True(t, s.Contains("bob", "charlie"))
	assert.False(t, s.Contains("dave"))
	assert.False(t, s.Contains("alice", "dave"))
	assert.True(t, s.Contains())
}

func TestRemove(t *testing.T) {
	s := party.NewIDSlice([]party.ID{"alice", "bob"})
	assert.Equal(t, party.IDSlice{"alice"}, s.Remove("bob"))
	assert.Equal(t, party.IDSlice{"alice", "bob"}, s, "Remove must not mutate the receiver")
}

func TestCopy(t *testing.T) {
	s := party.NewIDSlice([]party.ID{"alice", "bob"})
	c := s.Copy()
	c[0] = "zed"
	assert.Equal(t, party.ID("alice"), s[0])
}
