package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatNaming(t *testing.T) {
	c := NewChat(4)
	assert.Equal(t, "Groupchat #4", c.Name)
	assert.Equal(t, "0 users in chat", c.Topic)
}

func TestPeerRenameReplacesPlaceholder(t *testing.T) {
	c := NewChat(0)

	c.PeerJoined(2)
	name, ok := c.PeerName(2)
	require.True(t, ok)
	assert.Equal(t, UnknownPeerName, name)
	assert.Equal(t, "1 users in chat", c.Topic)

	c.PeerRenamed(2, "bob")
	name, _ = c.PeerName(2)
	assert.Equal(t, "bob", name)
	assert.Equal(t, 1, c.PeerCount(), "rename must not count the peer twice")
	assert.Equal(t, "1 users in chat", c.Topic)
}

func TestPeerRenameOfUnseenPeerInserts(t *testing.T) {
	c := NewChat(0)
	c.PeerRenamed(9, "carol")
	assert.Equal(t, 1, c.PeerCount())
	assert.Equal(t, "1 users in chat", c.Topic)
}

func TestPeerLeft(t *testing.T) {
	c := NewChat(0)
	c.PeerJoined(1)
	c.PeerJoined(2)
	assert.Equal(t, "2 users in chat", c.Topic)

	assert.True(t, c.PeerLeft(1))
	assert.False(t, c.PeerLeft(1), "leaving twice must not decrement again")
	assert.Equal(t, 1, c.PeerCount())
	assert.Equal(t, "1 users in chat", c.Topic)
}

func TestMessageAuthorFixedAtReceipt(t *testing.T) {
	c := NewChat(0)
	now := time.Now()

	c.AppendMessage(5, "before join", false, now)
	c.PeerRenamed(5, "dave")
	c.AppendMessage(5, "waves", true, now)
	c.PeerRenamed(5, "david")

	require.Len(t, c.Messages, 2)
	assert.Equal(t, UnknownPeerName, c.Messages[0].Author)
	assert.Equal(t, "dave", c.Messages[1].Author)
	assert.True(t, c.Messages[1].Action)
}

func TestSnapshotOrdersPeers(t *testing.T) {
	c := NewChat(1)
	c.PeerRenamed(3, "c")
	c.PeerRenamed(1, "a")
	c.PeerRenamed(2, "b")

	v := c.Snapshot()
	require.Len(t, v.Peers, 3)
	assert.Equal(t, []PeerView{{1, "a"}, {2, "b"}, {3, "c"}}, v.Peers)

	c.PeerLeft(1)
	assert.Len(t, v.Peers, 3, "view must not observe later changes")
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	d.Add(3)
	d.Add(1)

	assert.Equal(t, []uint32{1, 3}, d.IDs())
	c, ok := d.Get(3)
	require.True(t, ok)
	assert.Equal(t, "Groupchat #3", c.Name)

	assert.True(t, d.Remove(3))
	assert.False(t, d.Remove(3))
	assert.Equal(t, 1, d.Len())
	assert.Len(t, d.Snapshot(), 1)
}
