package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddValidatesNames(t *testing.T) {
	r := NewRegistry()

	p, err := r.Add("  Alice  ", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.RejoinCode)
	assert.NotEqual(t, p.ID, p.RejoinCode)

	_, err = r.Add("ALICE", "c2")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = r.Add("   ", "c3")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = r.Add(strings.Repeat("x", MaxNameLength+1), "c4")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = r.Add(strings.Repeat("é", MaxNameLength), "c5")
	assert.NoError(t, err)
}

func TestRegistryOwnership(t *testing.T) {
	r := NewRegistry()

	alice, err := r.Add("Alice", "c1")
	require.NoError(t, err)
	bob, err := r.Add("Bob", "c2")
	require.NoError(t, err)

	assert.True(t, alice.Owner)
	assert.False(t, bob.Owner)
	assert.Equal(t, alice.ID, r.OwnerID())

	removed, ok := r.Remove(alice.ID)
	require.True(t, ok)
	assert.True(t, removed.Owner)
	assert.Empty(t, r.OwnerID())
	assert.False(t, bob.Owner, "ownership is not handed to another player")

	carol, err := r.Add("Carol", "c3")
	require.NoError(t, err)
	assert.False(t, carol.Owner, "only the first player ever admitted can be owner")

	// A departed name becomes available again.
	_, err = r.Add("alice", "c4")
	assert.NoError(t, err)
}

func TestRegistryReconnect(t *testing.T) {
	r := NewRegistry()
	p, err := r.Add("Alice", "c1")
	require.NoError(t, err)
	p.Score = 4

	_, err = r.Reconnect(p.ID, "wrong", "c2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Reconnect("missing", p.RejoinCode, "c2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := r.Reconnect(p.ID, p.RejoinCode, "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ConnID())
	assert.Equal(t, 4, got.Score)
	assert.True(t, got.Owner)
}

func TestRegistryDisconnectIgnoresStaleConnection(t *testing.T) {
	r := NewRegistry()
	p, err := r.Add("Alice", "c1")
	require.NoError(t, err)

	_, err = r.Reconnect(p.ID, p.RejoinCode, "c2")
	require.NoError(t, err)

	assert.False(t, r.Disconnect(p.ID, "c1"))
	assert.Equal(t, 1, r.Live())

	assert.True(t, r.Disconnect(p.ID, "c2"))
	assert.Equal(t, 0, r.Live())
	assert.Equal(t, 1, r.Len())

	assert.False(t, r.Disconnect(p.ID, "c2"))
}

func TestRegistryKeepsAdmissionOrder(t *testing.T) {
	r := NewRegistry()
	var ids []string
	for _, name := range []string{"A", "B", "C", "D"} {
		p, err := r.Add(name, "conn-"+name)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	_, ok := r.Remove(ids[1])
	require.True(t, ok)

	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, r.IDs())
	views := r.Views()
	require.Len(t, views, 3)
	assert.Equal(t, "C", views[1].Name)
}
