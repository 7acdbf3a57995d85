// Package dispatch applies inbound session events to the application model.
//
// The Dispatcher is the session.EventHandler passed to Session.Iterate. It
// runs on the network goroutine, mutates the Model, drives the transfer
// manager and the call table, logs messages to history and reports every
// visible change to a notify.Sink.
//
// Two policies live here. Every incoming file offer is accepted and written
// to the download directory. A call invite from a friend that already has a
// call in progress is rejected.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/av"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/group"
	"github.com/opd-ai/toxclient/history"
	"github.com/opd-ai/toxclient/notify"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/transfer"
)

// FileController sends file control signals to a peer.
type FileController interface {
	FileControl(friend, file uint32, outgoing bool, control session.FileControl) error
}

// CallController ends calls.
type CallController interface {
	Hangup(call session.CallID) error
}

// Recorder persists chat messages. *history.Store implements it.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Config wires a Dispatcher. Sink, Recorder and Now are optional.
type Config struct {
	Model     *Model
	Files     FileController
	Calls     CallController
	CallTable *av.Calls
	Transfers *transfer.Manager
	Sink      notify.Sink
	Recorder  Recorder
	Now       func() time.Time
}

// Dispatcher handles session events.
type Dispatcher struct {
	model     *Model
	files     FileController
	calls     CallController
	callTable *av.Calls
	transfers *transfer.Manager
	sink      notify.Sink
	recorder  Recorder
	now       func() time.Time
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Sink == nil {
		cfg.Sink = notify.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		model:     cfg.Model,
		files:     cfg.Files,
		calls:     cfg.Calls,
		callTable: cfg.CallTable,
		transfers: cfg.Transfers,
		sink:      cfg.Sink,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
}

// HandleEvent implements session.EventHandler.
func (d *Dispatcher) HandleEvent(ev session.Event) {
	switch e := ev.(type) {
	case session.FriendRequest:
		d.friendRequest(e)
	case session.FriendMessage:
		d.friendMessage(e)
	case session.FriendName:
		d.updateFriend(e.Friend, func(f *friend.Friend) { f.SetName(e.Name) })
	case session.FriendStatusMessage:
		d.updateFriend(e.Friend, func(f *friend.Friend) { f.StatusMessage = e.Message })
	case session.FriendUserStatus:
		d.updateFriend(e.Friend, func(f *friend.Friend) { f.Status = e.Status })
	case session.FriendTyping:
		d.updateFriend(e.Friend, func(f *friend.Friend) { f.Typing = e.Typing })
	case session.FriendConnection:
		d.updateFriend(e.Friend, func(f *friend.Friend) { f.SetOnline(e.Online) })
	case session.FriendReadReceipt:
		d.sink.Notify(notify.Notification{Kind: notify.FriendReceipt, Friend: e.Friend, Receipt: e.Receipt})
	case session.GroupInvite:
		d.groupInvite(e)
	case session.GroupMessage:
		d.groupMessage(e)
	case session.GroupPeerJoin:
		d.groupPeer(e.Group, e.Peer, func() { d.chat(e.Group).PeerJoined(e.Peer) })
	case session.GroupPeerName:
		d.groupPeer(e.Group, e.Peer, func() { d.chat(e.Group).PeerRenamed(e.Peer, e.Name) })
	case session.GroupPeerLeave:
		d.groupPeer(e.Group, e.Peer, func() { d.chat(e.Group).PeerLeft(e.Peer) })
	case session.FileSendRequest:
		d.fileSendRequest(e)
	case session.FileControlReceived:
		d.fileControl(e)
	case session.FileData:
		d.fileData(e)
	case session.CallInvite:
		d.callInvite(e)
	case session.CallRinging:
		d.callRinging(e)
	case session.CallStart:
		d.callStart(e)
	case session.CallEnd:
		d.callEnd(e)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Dispatcher.HandleEvent",
			"event":    ev,
		}).Warn("Unhandled session event")
		return
	}
	d.model.MarkDirty()
}

func (d *Dispatcher) friendRequest(e session.FriendRequest) {
	id := d.model.AddRequest(e.PublicKey, e.Message)

	logrus.WithFields(logrus.Fields{
		"function":   "Dispatcher.friendRequest",
		"request":    id,
		"public_key": e.PublicKey[:8],
	}).Info("Friend request received")

	d.sink.Notify(notify.Notification{Kind: notify.FriendRequest, Request: id, Text: e.Message})
}

func (d *Dispatcher) friendMessage(e session.FriendMessage) {
	f, ok := d.lookupFriend("Dispatcher.friendMessage", e.Friend)
	if !ok {
		return
	}
	action := e.Kind == session.MessageAction
	m := friend.Message{Action: action, Text: e.Message, Time: d.now()}
	f.AppendMessage(m)
	d.Record(f, m)
	d.sink.Notify(notify.Notification{Kind: notify.FriendMessage, Friend: e.Friend, Text: e.Message, Action: action})
}

func (d *Dispatcher) updateFriend(id uint32, apply func(*friend.Friend)) {
	f, ok := d.lookupFriend("Dispatcher.updateFriend", id)
	if !ok {
		return
	}
	apply(f)
	d.sink.Notify(notify.Notification{Kind: notify.FriendUpdated, Friend: id, Connected: f.Online})
}

func (d *Dispatcher) lookupFriend(fn string, id uint32) (*friend.Friend, bool) {
	f, ok := d.model.Friends.Get(id)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":  fn,
			"friend_id": id,
		}).Warn("Event for unknown friend ignored")
	}
	return f, ok
}

// Record logs m with f to history. Failures are logged.
func (d *Dispatcher) Record(f *friend.Friend, m friend.Message) {
	if d.recorder == nil {
		return
	}
	_, err := d.recorder.Append(context.Background(), history.Entry{
		PeerKey:  f.PublicKey,
		Outgoing: m.Outgoing,
		Action:   m.Action,
		Text:     m.Text,
		Time:     m.Time,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Dispatcher.Record",
			"friend_id": f.ID,
			"error":     err.Error(),
		}).Warn("Recording message failed")
	}
}

func (d *Dispatcher) groupInvite(e session.GroupInvite) {
	id := d.model.AddInvite(e.Friend, e.Cookie)
	d.sink.Notify(notify.Notification{Kind: notify.GroupInvite, Friend: e.Friend, Invite: id})
}

// chat returns the group, creating it if the session reports a group the
// model has not seen.
func (d *Dispatcher) chat(id uint32) *group.Chat {
	c, ok := d.model.Groups.Get(id)
	if !ok {
		c = d.model.Groups.Add(id)
		d.sink.Notify(notify.Notification{Kind: notify.GroupAdd, Group: id})
	}
	return c
}

func (d *Dispatcher) groupMessage(e session.GroupMessage) {
	c := d.chat(e.Group)
	action := e.Kind == session.MessageAction
	m := c.AppendMessage(e.Peer, e.Message, action, d.now())
	d.sink.Notify(notify.Notification{
		Kind:   notify.GroupMessage,
		Group:  e.Group,
		Peer:   e.Peer,
		Text:   m.Author + ": " + m.Text,
		Action: action,
	})
}

func (d *Dispatcher) groupPeer(groupID, peer uint32, apply func()) {
	apply()
	d.sink.Notify(notify.Notification{Kind: notify.GroupUpdated, Group: groupID, Peer: peer})
}

func (d *Dispatcher) fileSendRequest(e session.FileSendRequest) {
	fields := logrus.Fields{
		"function":  "Dispatcher.fileSendRequest",
		"friend_id": e.Friend,
		"file":      e.File,
		"file_name": e.Name,
		"file_size": e.Size,
	}

	if err := d.files.FileControl(e.Friend, e.File, false, session.FileControlAccept); err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Accepting file failed")
		d.sink.Notify(notify.Notification{Kind: notify.FileBeginRecv, Friend: e.Friend, File: e.File, Text: e.Name, Failed: true, Err: err})
		return
	}

	if _, err := d.transfers.Receive(e.Friend, e.File, e.Name, e.Size); err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Opening incoming file failed, cancelling")
		if kerr := d.files.FileControl(e.Friend, e.File, false, session.FileControlKill); kerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Dispatcher.fileSendRequest",
				"error":    kerr.Error(),
			}).Debug("Cancelling file failed")
		}
		d.sink.Notify(notify.Notification{Kind: notify.FileBeginRecv, Friend: e.Friend, File: e.File, Text: e.Name, Failed: true, Err: err})
		return
	}

	logrus.WithFields(fields).Info("Receiving file")
	d.sink.Notify(notify.Notification{Kind: notify.FileBeginRecv, Friend: e.Friend, File: e.File, Text: e.Name})
}

func (d *Dispatcher) fileControl(e session.FileControlReceived) {
	key := transfer.Key{Friend: e.Friend, File: e.File, Outgoing: e.Outgoing}
	v, err := d.transfers.HandleControl(key, e.Control)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dispatcher.fileControl",
			"transfer": key.String(),
			"control":  e.Control.String(),
		}).Debug("Control for unknown transfer ignored")
		return
	}
	kind := notify.FileUpdated
	if v.Status.Terminal() {
		kind = notify.FileDone
	}
	d.sink.Notify(notify.Notification{Kind: kind, Friend: e.Friend, File: e.File, Text: v.Status.String(), Failed: v.Status == transfer.Killed})
}

func (d *Dispatcher) fileData(e session.FileData) {
	err := d.transfers.Write(e.Friend, e.File, e.Data)
	if err == nil {
		return
	}
	if errors.Is(err, transfer.ErrNotFound) || errors.Is(err, transfer.ErrNotReceiving) {
		logrus.WithFields(logrus.Fields{
			"function":  "Dispatcher.fileData",
			"friend_id": e.Friend,
			"file":      e.File,
			"error":     err.Error(),
		}).Debug("File data ignored")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Dispatcher.fileData",
		"friend_id": e.Friend,
		"file":      e.File,
		"error":     err.Error(),
	}).Warn("Writing file data failed, cancelling")
	d.transfers.Kill(transfer.Key{Friend: e.Friend, File: e.File})
	if kerr := d.files.FileControl(e.Friend, e.File, false, session.FileControlKill); kerr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dispatcher.fileData",
			"error":    kerr.Error(),
		}).Debug("Cancelling file failed")
	}
	d.sink.Notify(notify.Notification{Kind: notify.FileDone, Friend: e.Friend, File: e.File, Text: transfer.Killed.String(), Failed: true, Err: err})
}

func (d *Dispatcher) callInvite(e session.CallInvite) {
	f, ok := d.lookupFriend("Dispatcher.callInvite", e.Friend)
	if !ok {
		return
	}
	if f.Call != friend.CallIdle {
		logrus.WithFields(logrus.Fields{
			"function":  "Dispatcher.callInvite",
			"friend_id": e.Friend,
			"call_id":   e.Call,
			"existing":  f.CallID,
		}).Info("Rejecting call invite, friend already in a call")
		if err := d.calls.Hangup(e.Call); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Dispatcher.callInvite",
				"call_id":  e.Call,
				"error":    err.Error(),
			}).Debug("Rejecting call failed")
		}
		return
	}
	d.callState(e.Friend, friend.CallInvited, e.Call, notify.CallInvite)
}

func (d *Dispatcher) callState(friendID uint32, state friend.CallState, call session.CallID, kind notify.Kind) {
	f, ok := d.lookupFriend("Dispatcher.callState", friendID)
	if !ok {
		return
	}
	f.SetCall(state, call)
	d.sink.Notify(notify.Notification{Kind: kind, Friend: friendID, Call: call})
}

// callRinging skips calls the client already shows as ringing.
func (d *Dispatcher) callRinging(e session.CallRinging) {
	if f, ok := d.model.Friends.Get(e.Friend); ok && f.Call == friend.CallRinging && f.CallID == e.Call {
		return
	}
	d.callState(e.Friend, friend.CallRinging, e.Call, notify.CallRing)
}

func (d *Dispatcher) callStart(e session.CallStart) {
	if err := d.callTable.Activate(e.Call, e.Friend); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dispatcher.callStart",
			"call_id":  e.Call,
			"error":    err.Error(),
		}).Warn("Activating call slot failed")
		return
	}
	d.callState(e.Friend, friend.CallActive, e.Call, notify.CallStart)
}

func (d *Dispatcher) callEnd(e session.CallEnd) {
	d.callTable.Deactivate(e.Call)
	f, ok := d.lookupFriend("Dispatcher.callEnd", e.Friend)
	if !ok {
		return
	}
	// A late end for a rejected second call must not clear the live one.
	if f.CallID != e.Call && f.Call != friend.CallIdle {
		return
	}
	f.SetCall(friend.CallIdle, -1)
	d.sink.Notify(notify.Notification{Kind: notify.CallEnd, Friend: e.Friend, Call: e.Call, Text: e.Reason.String()})
}
