package av

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/session"
)

func TestCallsActivateDeactivate(t *testing.T) {
	c := NewCalls(4)
	assert.Equal(t, 4, c.Len())

	require.NoError(t, c.Activate(2, 9))
	assert.True(t, c.Active(2))
	peer, ok := c.Peer(2)
	require.True(t, ok)
	assert.Equal(t, uint32(9), peer)
	assert.Equal(t, 1, c.ActiveCount())

	assert.True(t, c.Deactivate(2))
	assert.False(t, c.Deactivate(2), "second deactivate is a no-op")
	_, ok = c.Peer(2)
	assert.False(t, ok)
}

func TestCallsRange(t *testing.T) {
	c := NewCalls(2)
	tests := []session.CallID{-1, 2, 100}
	for _, id := range tests {
		assert.ErrorIs(t, c.Activate(id, 0), ErrSlotRange)
		assert.False(t, c.Active(id))
		assert.False(t, c.Deactivate(id))
	}
}

func TestCallsDeactivateAll(t *testing.T) {
	c := NewCalls(3)
	require.NoError(t, c.Activate(0, 1))
	require.NoError(t, c.Activate(2, 1))
	c.DeactivateAll()
	assert.Zero(t, c.ActiveCount())
}
