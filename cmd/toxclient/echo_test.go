package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/savedata"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/simnet"
)

type collector struct {
	events []session.Event
}

func (c *collector) HandleEvent(ev session.Event) { c.events = append(c.events, ev) }

func (c *collector) take() []session.Event {
	out := c.events
	c.events = nil
	return out
}

// round steps the user node and the echo peer n times.
func round(user *simnet.Node, echo *echoPeer, c *collector, n int) {
	for i := 0; i < n; i++ {
		user.Iterate(c)
		echo.step()
	}
	user.Iterate(c)
}

func newEchoFixture(t *testing.T) (*simnet.Node, *echoPeer, *collector, *savedata.Store) {
	t.Helper()
	hub := simnet.NewHub()
	store := &savedata.Store{Path: filepath.Join(t.TempDir(), "echo_save")}
	echo, err := newEchoPeer(hub, store)
	require.NoError(t, err)

	user, err := hub.NewNode()
	require.NoError(t, err)
	require.NoError(t, user.Bootstrap(session.DefaultBootstrapNodes[0]))

	c := &collector{}
	_, err = user.AddFriend(echo.Address(), "hello echo")
	require.NoError(t, err)
	round(user, echo, c, 3)
	require.Contains(t, c.take(), session.FriendConnection{Friend: 0, Online: true})
	return user, echo, c, store
}

func TestEchoPeerRepeatsMessages(t *testing.T) {
	user, echo, c, _ := newEchoFixture(t)

	_, err := user.SendMessage(0, session.MessageAction, "waves")
	require.NoError(t, err)
	round(user, echo, c, 2)

	assert.Contains(t, c.take(), session.FriendMessage{Friend: 0, Kind: session.MessageAction, Message: "waves"})
}

func TestEchoPeerRefusesFiles(t *testing.T) {
	user, echo, c, _ := newEchoFixture(t)

	file, err := user.FileSend(0, 42, "notes.txt")
	require.NoError(t, err)
	round(user, echo, c, 2)

	assert.Contains(t, c.take(), session.FileControlReceived{Friend: 0, File: file, Outgoing: true, Control: session.FileControlKill})
}

func TestEchoPeerPlaysAudioBack(t *testing.T) {
	user, echo, c, _ := newEchoFixture(t)
	uav, err := user.NewAV(1)
	require.NoError(t, err)

	id, err := uav.Call(0)
	require.NoError(t, err)
	round(user, echo, c, 2)
	require.Contains(t, c.take(), session.CallStart{Call: id, Friend: 0})

	pcm := []int16{5, -5, 1000, -1000}
	frame, err := uav.PrepareAudioFrame(id, pcm)
	require.NoError(t, err)
	require.NoError(t, uav.SendAudio(id, frame))
	round(user, echo, c, 1)

	out := make([]int16, 960)
	n, err := uav.ReceiveAudio(id, out)
	require.NoError(t, err)
	assert.Equal(t, pcm, out[:n])
}

func TestEchoPeerKeepsIdentityAcrossRestarts(t *testing.T) {
	user, echo, _, store := newEchoFixture(t)
	addr := echo.Address()

	ctx, cancel := context.WithCancel(context.Background())
	go echo.Run(ctx)
	cancel()
	<-echo.Done()

	data, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	again, err := newEchoPeer(simnet.NewHub(), store)
	require.NoError(t, err)
	assert.Equal(t, addr[:64], again.Address()[:64], "same public key")

	key, err := user.FriendPublicKey(0)
	require.NoError(t, err)
	assert.Equal(t, echo.node.PublicKey(), key)
}
