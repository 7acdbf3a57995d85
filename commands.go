package toxclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/control"
	"github.com/opd-ai/toxclient/dispatch"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/notify"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/transfer"
)

// handle runs one command on the network goroutine.
func (c *Client) handle(cmd control.Command) {
	logrus.WithFields(logrus.Fields{
		"function": "Client.handle",
		"op":       cmd.Op(),
	}).Debug("Handling command")

	switch cmd := cmd.(type) {
	case control.SetName:
		c.updateSelf(cmd, c.sess.SetName(cmd.Name), func(s *dispatch.Self) { s.Name = cmd.Name })
	case control.SetStatusMessage:
		c.updateSelf(cmd, c.sess.SetStatusMessage(cmd.Message), func(s *dispatch.Self) { s.StatusMessage = cmd.Message })
	case control.SetStatus:
		c.updateSelf(cmd, c.sess.SetStatus(cmd.Status), func(s *dispatch.Self) { s.Status = cmd.Status })
	case control.AddFriend:
		c.addFriend(cmd)
	case control.DeleteFriend:
		c.deleteFriend(cmd)
	case control.AcceptFriend:
		c.acceptFriend(cmd)
	case control.SendMessage:
		c.sendMessage(cmd)
	case control.SendGroupMessage:
		if err := c.sess.SendGroupMessage(cmd.Group, cmd.Kind, cmd.Text); err != nil {
			c.fail(cmd, err)
		}
	case control.SetTyping:
		if err := c.sess.SetTyping(cmd.Friend, cmd.Typing); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Client.handle",
				"friend_id": cmd.Friend,
				"error":     err.Error(),
			}).Debug("Typing notification not sent")
		}
	case control.Call:
		c.call(cmd)
	case control.AcceptCall:
		if err := c.av.Answer(cmd.Call); err != nil {
			c.fail(cmd, err)
		}
	case control.Hangup:
		c.hangup(cmd)
	case control.NewGroup:
		c.newGroup(cmd)
	case control.LeaveGroup:
		c.leaveGroup(cmd)
	case control.InviteToGroup:
		if err := c.sess.InviteToGroup(cmd.Friend, cmd.Group); err != nil {
			c.fail(cmd, err)
		}
	case control.JoinGroup:
		c.joinGroup(cmd)
	case control.SendFile:
		c.sendFile(cmd)
	case control.ControlFile:
		c.controlFile(cmd)
	default:
		c.fail(cmd, fmt.Errorf("unsupported command %T", cmd))
		return
	}
	c.model.MarkDirty()
}

// fail reports a command that could not be carried out.
func (c *Client) fail(cmd control.Command, err error) {
	c.failAs(notify.CommandFailed, cmd, err, notify.Notification{})
}

// failAs reports a failed command with a specific notification kind. n
// carries the ids relevant to the kind.
func (c *Client) failAs(kind notify.Kind, cmd control.Command, err error, n notify.Notification) {
	logrus.WithFields(logrus.Fields{
		"function": "Client.fail",
		"op":       cmd.Op(),
		"error":    err.Error(),
	}).Warn("Command failed")

	n.Kind = kind
	n.Failed = true
	n.Err = err
	if n.Text == "" {
		n.Text = cmd.Op()
	}
	c.sink.Notify(n)
}

func (c *Client) updateSelf(cmd control.Command, err error, apply func(*dispatch.Self)) {
	if err != nil {
		c.failAs(notify.SelfUpdated, cmd, err, notify.Notification{})
		return
	}
	apply(&c.model.Self)
	c.sink.Notify(notify.Notification{Kind: notify.SelfUpdated, Text: cmd.Op()})
}

func (c *Client) addFriend(cmd control.AddFriend) {
	id, err := c.sess.AddFriend(cmd.Address, cmd.Message)
	if err != nil {
		c.failAs(notify.FriendAdd, cmd, err, notify.Notification{})
		return
	}
	key, err := c.sess.FriendPublicKey(id)
	if err != nil {
		c.failAs(notify.FriendAdd, cmd, err, notify.Notification{Friend: id})
		return
	}
	c.model.Friends.Add(id, key)

	logrus.WithFields(logrus.Fields{
		"function":  "Client.addFriend",
		"friend_id": id,
	}).Info("Friend request sent")
	c.sink.Notify(notify.Notification{Kind: notify.FriendAdd, Friend: id})
}

func (c *Client) deleteFriend(cmd control.DeleteFriend) {
	if err := c.sess.DeleteFriend(cmd.Friend); err != nil {
		c.failAs(notify.FriendDeleted, cmd, err, notify.Notification{Friend: cmd.Friend})
		return
	}
	if f, ok := c.model.Friends.Get(cmd.Friend); ok {
		if f.Call != friend.CallIdle {
			c.calls.Deactivate(f.CallID)
		}
		c.forget(f)
	}
	c.transfers.KillFriend(cmd.Friend)
	c.model.Friends.Remove(cmd.Friend)
	c.sink.Notify(notify.Notification{Kind: notify.FriendDeleted, Friend: cmd.Friend})
}

// forget drops the chat log of a deleted friend.
func (c *Client) forget(f *friend.Friend) {
	if c.history == nil {
		return
	}
	n, err := c.history.Forget(context.Background(), f.PublicKey)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Client.forget",
			"friend_id": f.ID,
			"error":     err.Error(),
		}).Warn("Deleting history failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Client.forget",
		"friend_id": f.ID,
		"messages":  n,
	}).Debug("History deleted")
}

func (c *Client) acceptFriend(cmd control.AcceptFriend) {
	key := cmd.PublicKey
	if req, ok := c.model.Request(cmd.Request); ok {
		key = req.PublicKey
	} else if key == ([32]byte{}) {
		c.failAs(notify.FriendAccept, cmd, fmt.Errorf("%w: %d", ErrUnknownRequest, cmd.Request), notify.Notification{Request: cmd.Request})
		return
	}
	if f, ok := c.model.Friends.FindByPublicKey(key); ok {
		c.model.RemoveRequest(cmd.Request)
		c.sink.Notify(notify.Notification{Kind: notify.FriendAccept, Friend: f.ID, Request: cmd.Request})
		return
	}
	id, err := c.sess.AddFriendNoRequest(key)
	if err != nil {
		c.failAs(notify.FriendAccept, cmd, err, notify.Notification{Request: cmd.Request})
		return
	}
	c.model.Friends.Add(id, key)
	c.model.RemoveRequest(cmd.Request)
	c.sink.Notify(notify.Notification{Kind: notify.FriendAccept, Friend: id, Request: cmd.Request})
}

func (c *Client) sendMessage(cmd control.SendMessage) {
	f, ok := c.model.Friends.Get(cmd.Friend)
	if !ok {
		c.fail(cmd, fmt.Errorf("%w: %d", session.ErrFriendNotFound, cmd.Friend))
		return
	}
	receipt, err := c.sess.SendMessage(cmd.Friend, cmd.Kind, cmd.Text)
	if err != nil {
		c.fail(cmd, err)
		return
	}
	m := friend.Message{
		Outgoing: true,
		Action:   cmd.Kind == session.MessageAction,
		Text:     cmd.Text,
		Time:     c.now(),
	}
	f.AppendMessage(m)
	c.dispatcher.Record(f, m)

	logrus.WithFields(logrus.Fields{
		"function":  "Client.sendMessage",
		"friend_id": cmd.Friend,
		"receipt":   receipt,
	}).Debug("Message sent")
}

func (c *Client) call(cmd control.Call) {
	f, ok := c.model.Friends.Get(cmd.Friend)
	if !ok {
		c.fail(cmd, fmt.Errorf("%w: %d", session.ErrFriendNotFound, cmd.Friend))
		return
	}
	id, err := c.av.Call(cmd.Friend)
	if err != nil {
		c.failAs(notify.CallRing, cmd, err, notify.Notification{Friend: cmd.Friend, Call: -1})
		return
	}
	f.SetCall(friend.CallRinging, id)
	c.sink.Notify(notify.Notification{Kind: notify.CallRing, Friend: cmd.Friend, Call: id})
}

// hangup clears the call slot before returning, so the audio goroutine stops
// sending on it by its next frame.
func (c *Client) hangup(cmd control.Hangup) {
	c.calls.Deactivate(cmd.Call)
	err := c.av.Hangup(cmd.Call)

	for _, id := range c.model.Friends.IDs() {
		f, _ := c.model.Friends.Get(id)
		if f.Call == friend.CallIdle || f.CallID != cmd.Call {
			continue
		}
		f.SetCall(friend.CallIdle, -1)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Client.hangup",
				"friend_id": id,
				"call_id":   cmd.Call,
				"error":     err.Error(),
			}).Warn("Hanging up failed, call ended locally")
		}
		c.sink.Notify(notify.Notification{Kind: notify.CallEnd, Friend: id, Call: cmd.Call, Text: session.CallEndHangup.String(), Err: err})
		return
	}
	if err != nil {
		c.fail(cmd, err)
	}
}

func (c *Client) newGroup(cmd control.NewGroup) {
	id, err := c.sess.NewGroup()
	if err != nil {
		c.failAs(notify.GroupAdd, cmd, err, notify.Notification{})
		return
	}
	if _, ok := c.model.Groups.Get(id); !ok {
		c.model.Groups.Add(id)
	}
	c.sink.Notify(notify.Notification{Kind: notify.GroupAdd, Group: id})
}

func (c *Client) leaveGroup(cmd control.LeaveGroup) {
	if err := c.sess.DeleteGroup(cmd.Group); err != nil {
		c.failAs(notify.GroupLeft, cmd, err, notify.Notification{Group: cmd.Group})
		return
	}
	c.model.Groups.Remove(cmd.Group)
	c.sink.Notify(notify.Notification{Kind: notify.GroupLeft, Group: cmd.Group})
}

func (c *Client) joinGroup(cmd control.JoinGroup) {
	friendID, cookie := cmd.Friend, cmd.Cookie
	if inv, ok := c.model.Invite(cmd.Invite); ok && cookie == nil {
		friendID, cookie = inv.Friend, inv.Cookie
	}
	id, err := c.sess.JoinGroup(friendID, cookie)
	if err != nil {
		c.failAs(notify.GroupAdd, cmd, err, notify.Notification{Friend: friendID, Invite: cmd.Invite})
		return
	}
	c.model.RemoveInvite(cmd.Invite)
	if _, ok := c.model.Groups.Get(id); !ok {
		c.model.Groups.Add(id)
	}
	c.sink.Notify(notify.Notification{Kind: notify.GroupAdd, Group: id, Friend: friendID})
}

func (c *Client) sendFile(cmd control.SendFile) {
	info, err := os.Stat(cmd.Path)
	if err == nil && !info.Mode().IsRegular() {
		err = fmt.Errorf("%s is not a regular file", cmd.Path)
	}
	if err != nil {
		c.failAs(notify.FileBeginSend, cmd, err, notify.Notification{Friend: cmd.Friend})
		return
	}
	name := filepath.Base(cmd.Path)
	size := uint64(info.Size())

	file, err := c.sess.FileSend(cmd.Friend, size, name)
	if err != nil {
		c.failAs(notify.FileBeginSend, cmd, err, notify.Notification{Friend: cmd.Friend, Text: name})
		return
	}
	if _, err := c.transfers.Send(cmd.Friend, file, cmd.Path, size, c.sess.FileDataSize(cmd.Friend)); err != nil {
		if kerr := c.sess.FileControl(cmd.Friend, file, true, session.FileControlKill); kerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.sendFile",
				"error":    kerr.Error(),
			}).Debug("Cancelling file failed")
		}
		c.failAs(notify.FileBeginSend, cmd, err, notify.Notification{Friend: cmd.Friend, File: file, Text: name})
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Client.sendFile",
		"friend_id": cmd.Friend,
		"file":      file,
		"file_name": name,
		"file_size": size,
	}).Info("Offering file")
	c.sink.Notify(notify.Notification{Kind: notify.FileBeginSend, Friend: cmd.Friend, File: file, Text: name})
}

// controlFile tells the peer and applies the signal locally. A kill is
// applied even when the peer cannot be told.
func (c *Client) controlFile(cmd control.ControlFile) {
	key := transfer.Key{Friend: cmd.Friend, File: cmd.File, Outgoing: cmd.Outgoing}
	if _, ok := c.transfers.Get(key); !ok {
		c.fail(cmd, fmt.Errorf("%w: %s", transfer.ErrNotFound, key))
		return
	}

	err := c.sess.FileControl(cmd.Friend, cmd.File, cmd.Outgoing, cmd.Control)
	if err != nil && cmd.Control != session.FileControlKill {
		c.fail(cmd, err)
		return
	}

	v, herr := c.transfers.HandleControl(key, cmd.Control)
	if herr != nil {
		c.fail(cmd, herr)
		return
	}
	kind := notify.FileUpdated
	if v.Status.Terminal() {
		kind = notify.FileDone
	}
	c.sink.Notify(notify.Notification{Kind: kind, Friend: cmd.Friend, File: cmd.File, Text: v.Status.String()})
}
