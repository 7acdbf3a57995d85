package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/savedata"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/simnet"
)

const (
	echoName      = "Echo"
	echoStatus    = "I repeat whatever you say"
	echoMaxCalls  = 4
	echoSaveEvery = 30 * time.Second
)

// echoPeer is a second node on the simulated network. It accepts every
// friend request and group invite, repeats friend messages, refuses files,
// and answers calls by playing the caller's audio back.
type echoPeer struct {
	node  *simnet.Node
	av    session.AV
	store *savedata.Store

	calls    map[session.CallID]bool
	pcm      []int16
	lastSave time.Time
	done     chan struct{}
}

func newEchoPeer(hub *simnet.Hub, store *savedata.Store) (*echoPeer, error) {
	node, err := hub.NewNode()
	if err != nil {
		return nil, fmt.Errorf("failed to create echo node: %w", err)
	}

	fresh := true
	if store != nil {
		data, err := store.Load()
		switch {
		case err == nil:
			if err := node.Load(data); err != nil {
				node.Close()
				return nil, fmt.Errorf("failed to load echo peer: %w", err)
			}
			fresh = false
		case !errors.Is(err, savedata.ErrNoSave):
			node.Close()
			return nil, err
		}
	}
	if fresh {
		if err := node.SetName(echoName); err != nil {
			node.Close()
			return nil, err
		}
		if err := node.SetStatusMessage(echoStatus); err != nil {
			node.Close()
			return nil, err
		}
	}
	if err := node.Bootstrap(session.DefaultBootstrapNodes[0]); err != nil {
		node.Close()
		return nil, err
	}

	avs, err := node.NewAV(echoMaxCalls)
	if err != nil {
		node.Close()
		return nil, err
	}

	return &echoPeer{
		node:     node,
		av:       avs,
		store:    store,
		calls:    make(map[session.CallID]bool),
		pcm:      make([]int16, session.FrameSamples(session.DefaultSampleRate, session.DefaultFrameDuration)),
		lastSave: time.Now(),
		done:     make(chan struct{}),
	}, nil
}

// Address is the Tox address to befriend.
func (e *echoPeer) Address() string {
	return e.node.SelfAddress()
}

// Run steps the node until ctx ends, then saves and closes it.
func (e *echoPeer) Run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.node.IterationInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.save()
			e.av.Close()
			e.node.Close()
			return
		case now := <-ticker.C:
			e.step()
			if now.Sub(e.lastSave) >= echoSaveEvery {
				e.save()
				e.lastSave = now
			}
		}
	}
}

// Done is closed when Run has returned.
func (e *echoPeer) Done() <-chan struct{} {
	return e.done
}

func (e *echoPeer) step() {
	e.node.Iterate(e)
	for id, live := range e.calls {
		if live {
			e.echoAudio(id)
		}
	}
}

func (e *echoPeer) echoAudio(id session.CallID) {
	for {
		n, err := e.av.ReceiveAudio(id, e.pcm)
		if err != nil || n == 0 {
			return
		}
		frame, err := e.av.PrepareAudioFrame(id, e.pcm[:n])
		if err == nil {
			err = e.av.SendAudio(id, frame)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "echoPeer.echoAudio",
				"call_id":  id,
				"error":    err.Error(),
			}).Debug("Dropping echoed frame")
			return
		}
	}
}

// HandleEvent implements session.EventHandler.
func (e *echoPeer) HandleEvent(ev session.Event) {
	switch ev := ev.(type) {
	case session.FriendRequest:
		if _, err := e.node.AddFriendNoRequest(ev.PublicKey); err != nil {
			e.logError("accept friend request", err)
			return
		}
		e.save()
	case session.FriendMessage:
		if _, err := e.node.SendMessage(ev.Friend, ev.Kind, ev.Message); err != nil {
			e.logError("echo message", err)
		}
	case session.FileSendRequest:
		if err := e.node.FileControl(ev.Friend, ev.File, false, session.FileControlKill); err != nil {
			e.logError("refuse file", err)
		}
	case session.GroupInvite:
		if _, err := e.node.JoinGroup(ev.Friend, ev.Cookie); err != nil {
			e.logError("join group", err)
		}
	case session.CallInvite:
		if err := e.av.Answer(ev.Call); err != nil {
			e.logError("answer call", err)
			return
		}
		e.calls[ev.Call] = false
	case session.CallStart:
		e.calls[ev.Call] = true
	case session.CallEnd:
		delete(e.calls, ev.Call)
	}
}

func (e *echoPeer) save() {
	if e.store == nil {
		return
	}
	data, err := e.node.Save()
	if err == nil {
		err = e.store.Save(data)
	}
	if err != nil {
		e.logError("save", err)
	}
}

func (e *echoPeer) logError(op string, err error) {
	logrus.WithFields(logrus.Fields{
		"function":  "echoPeer.HandleEvent",
		"operation": op,
		"error":     err.Error(),
	}).Warn("Echo peer operation failed")
}
