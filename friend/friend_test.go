package friend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/session"
)

type fixedTime struct{ t time.Time }

func (f *fixedTime) Now() time.Time { return f.t }

func keyOf(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestDisplayNameFallsBackToKey(t *testing.T) {
	f := New(1, keyOf(0xAB))
	assert.Equal(t, "ABABABAB", f.DisplayName())

	f.SetName("Alice")
	assert.Equal(t, "Alice", f.DisplayName())
}

func TestSetOnlineStampsLastSeen(t *testing.T) {
	clock := &fixedTime{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	f := NewWithTimeProvider(1, keyOf(1), clock)
	f.Typing = true

	f.SetOnline(true)
	assert.True(t, f.Online)
	assert.Equal(t, clock.t, f.LastSeen)

	clock.t = clock.t.Add(time.Hour)
	f.SetOnline(false)
	assert.False(t, f.Online)
	assert.False(t, f.Typing, "typing should reset when the friend goes offline")
	assert.Equal(t, clock.t, f.LastSeen)
}

func TestSetCallIdleClearsID(t *testing.T) {
	f := New(1, keyOf(1))
	f.SetCall(CallActive, 4)
	assert.Equal(t, session.CallID(4), f.CallID)

	f.SetCall(CallIdle, 4)
	assert.Equal(t, CallIdle, f.Call)
	assert.Equal(t, session.CallID(-1), f.CallID)
}

func TestSnapshotIsDetached(t *testing.T) {
	f := New(1, keyOf(1))
	f.AppendMessage(Message{Text: "one"})
	v := f.Snapshot()

	f.AppendMessage(Message{Text: "two"})
	f.Messages[0].Text = "changed"

	require.Len(t, v.Messages, 1)
	assert.Equal(t, "one", v.Messages[0].Text)
	assert.False(t, v.Messages[0].Time.IsZero())
}

func TestRoster(t *testing.T) {
	r := NewRoster()
	r.Add(7, keyOf(7))
	r.Add(2, keyOf(2))
	r.Add(5, keyOf(5))

	assert.Equal(t, []uint32{2, 5, 7}, r.IDs())
	assert.Equal(t, 3, r.Len())

	f, ok := r.FindByPublicKey(keyOf(5))
	require.True(t, ok)
	assert.Equal(t, uint32(5), f.ID)

	assert.True(t, r.Remove(5))
	assert.False(t, r.Remove(5))
	_, ok = r.Get(5)
	assert.False(t, ok)

	views := r.Snapshot()
	require.Len(t, views, 2)
	assert.Equal(t, uint32(2), views[0].ID)
	assert.Equal(t, uint32(7), views[1].ID)
}

func TestCallStateString(t *testing.T) {
	tests := []struct {
		state CallState
		want  string
	}{
		{CallIdle, "idle"},
		{CallInvited, "incoming"},
		{CallRinging, "ringing"},
		{CallActive, "active"},
		{CallState(9), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
