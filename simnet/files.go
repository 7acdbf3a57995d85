package simnet

import (
	"fmt"

	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

// FileSend implements session.Session.
func (n *Node) FileSend(friend uint32, size uint64, name string) (uint32, error) {
	if err := limits.ValidateFileName(name); err != nil {
		return 0, err
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return 0, err
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return 0, fmt.Errorf("send file to %d: %w", friend, session.ErrFriendOffline)
	}

	file := l.nextFile
	l.nextFile++
	st := &fileState{size: size, name: name}
	l.out[file] = st
	p.friends[back].in[file] = st
	p.inbox = append(p.inbox, envelope{ev: session.FileSendRequest{
		Friend: back, File: file, Size: size, Name: name,
	}})
	return file, nil
}

// FileControl implements session.Session. Kill and Finished forget the
// transfer on both ends.
func (n *Node) FileControl(friend, file uint32, outgoing bool, control session.FileControl) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return err
	}
	mine, theirs := l.in, func(pl *link) map[uint32]*fileState { return pl.out }
	if outgoing {
		mine, theirs = l.out, func(pl *link) map[uint32]*fileState { return pl.in }
	}
	if _, ok := mine[file]; !ok {
		return fmt.Errorf("%w: friend %d file %d", session.ErrFileNotFound, friend, file)
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return session.ErrFriendOffline
	}

	if control == session.FileControlKill || control == session.FileControlFinished {
		delete(mine, file)
		delete(theirs(p.friends[back]), file)
	}
	p.inbox = append(p.inbox, envelope{ev: session.FileControlReceived{
		Friend: back, File: file, Outgoing: !outgoing, Control: control,
	}})
	return nil
}

// FileSendData implements session.Session.
func (n *Node) FileSendData(friend, file uint32, data []byte) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return err
	}
	if _, ok := l.out[file]; !ok {
		return fmt.Errorf("%w: friend %d file %d", session.ErrFileNotFound, friend, file)
	}
	if len(data) > n.hub.ChunkSize {
		return fmt.Errorf("%w: chunk of %d bytes", limits.ErrTooLarge, len(data))
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return session.ErrFriendOffline
	}
	if l.inflight >= n.hub.FileWindow {
		return session.ErrBufferFull
	}
	l.inflight++
	p.inbox = append(p.inbox, envelope{
		ev:     session.FileData{Friend: back, File: file, Data: append([]byte(nil), data...)},
		from:   n,
		credit: true,
	})
	return nil
}

// FileDataSize implements session.Session.
func (n *Node) FileDataSize(friend uint32) int {
	return n.hub.ChunkSize
}
