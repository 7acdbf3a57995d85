package dispatch

import (
	"sort"

	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/group"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/transfer"
)

// Self is the local profile.
type Self struct {
	Name          string
	StatusMessage string
	Status        session.UserStatus
	Address       string
}

// Request is a pending friend request.
type Request struct {
	ID        int
	PublicKey [32]byte
	Message   string
}

// Invite is a pending group invitation.
type Invite struct {
	ID     int
	Friend uint32
	Cookie []byte
}

// Model is the application state. Only the network goroutine touches it.
type Model struct {
	Self      Self
	Friends   *friend.Roster
	Groups    *group.Directory
	Connected bool

	requests    map[int]Request
	nextRequest int
	invites     map[int]Invite
	nextInvite  int
	dirty       bool
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		Friends:  friend.NewRoster(),
		Groups:   group.NewDirectory(),
		requests: make(map[int]Request),
		invites:  make(map[int]Invite),
		dirty:    true,
	}
}

// AddRequest stores a friend request and returns its id.
func (m *Model) AddRequest(key [32]byte, message string) int {
	for _, r := range m.requests {
		if r.PublicKey == key {
			r.Message = message
			m.requests[r.ID] = r
			return r.ID
		}
	}
	id := m.nextRequest
	m.nextRequest++
	m.requests[id] = Request{ID: id, PublicKey: key, Message: message}
	return id
}

// Request returns a pending request.
func (m *Model) Request(id int) (Request, bool) {
	r, ok := m.requests[id]
	return r, ok
}

// RemoveRequest drops a request once handled.
func (m *Model) RemoveRequest(id int) {
	delete(m.requests, id)
}

// AddInvite stores a group invitation and returns its id.
func (m *Model) AddInvite(friendID uint32, cookie []byte) int {
	id := m.nextInvite
	m.nextInvite++
	m.invites[id] = Invite{ID: id, Friend: friendID, Cookie: append([]byte(nil), cookie...)}
	return id
}

// Invite returns a pending invitation.
func (m *Model) Invite(id int) (Invite, bool) {
	inv, ok := m.invites[id]
	return inv, ok
}

// RemoveInvite drops an invitation once handled.
func (m *Model) RemoveInvite(id int) {
	delete(m.invites, id)
}

// MarkDirty records that the UI should redraw.
func (m *Model) MarkDirty() { m.dirty = true }

// TakeDirty reports and clears the dirty flag.
func (m *Model) TakeDirty() bool {
	d := m.dirty
	m.dirty = false
	return d
}

// Snapshot is an immutable copy of the model for the UI.
type Snapshot struct {
	Self      Self
	Connected bool
	Friends   []friend.View
	Groups    []group.View
	Requests  []Request
	Invites   []Invite
	Transfers []transfer.View
}

// Friend returns the view of friend id.
func (s *Snapshot) Friend(id uint32) (friend.View, bool) {
	for _, f := range s.Friends {
		if f.ID == id {
			return f, true
		}
	}
	return friend.View{}, false
}

// Group returns the view of group id.
func (s *Snapshot) Group(id uint32) (group.View, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return group.View{}, false
}

// Snapshot copies the model. transfers is attached as given.
func (m *Model) Snapshot(transfers []transfer.View) *Snapshot {
	s := &Snapshot{
		Self:      m.Self,
		Connected: m.Connected,
		Friends:   m.Friends.Snapshot(),
		Groups:    m.Groups.Snapshot(),
		Transfers: transfers,
	}
	for _, r := range m.requests {
		s.Requests = append(s.Requests, r)
	}
	sort.Slice(s.Requests, func(i, j int) bool { return s.Requests[i].ID < s.Requests[j].ID })
	for _, inv := range m.invites {
		inv.Cookie = append([]byte(nil), inv.Cookie...)
		s.Invites = append(s.Invites, inv)
	}
	sort.Slice(s.Invites, func(i, j int) bool { return s.Invites[i].ID < s.Invites[j].ID })
	return s
}
