package group

import "sort"

// Directory indexes chats by session group number.
type Directory struct {
	chats map[uint32]*Chat
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{chats: make(map[uint32]*Chat)}
}

// Add creates and stores the chat for id.
func (d *Directory) Add(id uint32) *Chat {
	c := NewChat(id)
	d.chats[id] = c
	return c
}

// Get returns the chat for id.
func (d *Directory) Get(id uint32) (*Chat, bool) {
	c, ok := d.chats[id]
	return c, ok
}

// Remove deletes the chat for id.
func (d *Directory) Remove(id uint32) bool {
	if _, ok := d.chats[id]; !ok {
		return false
	}
	delete(d.chats, id)
	return true
}

// Len returns the number of chats.
func (d *Directory) Len() int { return len(d.chats) }

// IDs returns the group numbers in ascending order.
func (d *Directory) IDs() []uint32 {
	ids := make([]uint32, 0, len(d.chats))
	for id := range d.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns views of every chat ordered by group number.
func (d *Directory) Snapshot() []View {
	ids := d.IDs()
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.chats[id].Snapshot())
	}
	return out
}
