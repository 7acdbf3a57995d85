package friend

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Roster indexes friends by the handle the session assigned to them. Lookups
// are O(1); handles stay valid until Remove.
type Roster struct {
	friends map[uint32]*Friend
	tp      TimeProvider
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return NewRosterWithTimeProvider(defaultTimeProvider)
}

// NewRosterWithTimeProvider creates an empty roster whose records use tp.
func NewRosterWithTimeProvider(tp TimeProvider) *Roster {
	return &Roster{
		friends: make(map[uint32]*Friend),
		tp:      tp,
	}
}

// Add inserts a record for id, replacing any stale record under that handle.
func (r *Roster) Add(id uint32, publicKey [32]byte) *Friend {
	if old, ok := r.friends[id]; ok {
		logrus.WithFields(logrus.Fields{
			"function":  "Roster.Add",
			"friend_id": id,
			"old_key":   old.PublicKey[:8],
			"new_key":   publicKey[:8],
		}).Warn("Replacing existing friend record")
	}
	f := NewWithTimeProvider(id, publicKey, r.tp)
	r.friends[id] = f
	return f
}

// Get returns the friend with handle id.
func (r *Roster) Get(id uint32) (*Friend, bool) {
	f, ok := r.friends[id]
	return f, ok
}

// FindByPublicKey returns the friend with the given key.
func (r *Roster) FindByPublicKey(key [32]byte) (*Friend, bool) {
	for _, f := range r.friends {
		if f.PublicKey == key {
			return f, true
		}
	}
	return nil, false
}

// Remove deletes the record for id.
func (r *Roster) Remove(id uint32) bool {
	if _, ok := r.friends[id]; !ok {
		return false
	}
	delete(r.friends, id)
	return true
}

// Len returns the number of friends.
func (r *Roster) Len() int {
	return len(r.friends)
}

// IDs returns every handle in ascending order.
func (r *Roster) IDs() []uint32 {
	ids := make([]uint32, 0, len(r.friends))
	for id := range r.friends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns views of every friend ordered by handle.
func (r *Roster) Snapshot() []View {
	ids := r.IDs()
	views := make([]View, 0, len(ids))
	for _, id := range ids {
		views = append(views, r.friends[id].Snapshot())
	}
	return views
}
