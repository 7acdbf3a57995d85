package transfer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

var (
	// ErrNotFound is returned for a key the manager does not track.
	ErrNotFound = errors.New("transfer not found")
	// ErrExists is returned when a key is registered twice.
	ErrExists = errors.New("transfer already exists")
	// ErrNotReceiving is returned when data arrives for a transfer that is not
	// accepting it.
	ErrNotReceiving = errors.New("transfer not receiving")
)

// Sender is the part of the session the manager pushes data through.
type Sender interface {
	FileSendData(friend, file uint32, data []byte) error
	FileControl(friend, file uint32, outgoing bool, control session.FileControl) error
}

// Options tunes the manager's policy.
type Options struct {
	// ResumeOnAccept lets an Accept signal resume a paused transfer. By
	// default only the initial SendPending to Sending edge reacts to Accept.
	ResumeOnAccept bool

	TimeProvider TimeProvider
}

// Manager tracks the live transfers of a session.
type Manager struct {
	mu        sync.Mutex
	storage   Storage
	opts      Options
	transfers map[Key]*Transfer
	order     []Key
}

// NewManager creates a manager that opens files through storage.
func NewManager(storage Storage, opts Options) *Manager {
	if opts.TimeProvider == nil {
		opts.TimeProvider = defaultTimeProvider
	}

	logrus.WithFields(logrus.Fields{
		"function":         "NewManager",
		"resume_on_accept": opts.ResumeOnAccept,
	}).Info("Creating file transfer manager")

	return &Manager{
		storage:   storage,
		opts:      opts,
		transfers: make(map[Key]*Transfer),
	}
}

// Send registers an outgoing transfer of the file at path. chunk is the
// session's per-transfer data size; it is clamped to protocol limits. The
// first chunk is read before returning.
func (m *Manager) Send(friend, file uint32, path string, size uint64, chunk int) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{Friend: friend, File: file, Outgoing: true}
	if _, ok := m.transfers[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}

	r, err := m.storage.Open(path)
	if err != nil {
		return nil, err
	}

	t := &Transfer{
		key:     key,
		name:    filepath.Base(path),
		size:    size,
		status:  SendPending,
		started: m.opts.TimeProvider.Now(),
		reader:  r,
		buf:     make([]byte, limits.ClampChunk(chunk)),
	}
	if err := t.fill(); err != nil {
		t.release()
		return nil, err
	}
	m.add(t)

	logrus.WithFields(logrus.Fields{
		"function":  "Manager.Send",
		"transfer":  key.String(),
		"file_size": size,
		"chunk":     len(t.buf),
	}).Info("Outgoing transfer pending")

	return t, nil
}

// Receive registers an incoming transfer and creates its destination.
func (m *Manager) Receive(friend, file uint32, name string, size uint64) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{Friend: friend, File: file}
	if _, ok := m.transfers[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}

	w, err := m.storage.Create(name)
	if err != nil {
		return nil, err
	}

	t := &Transfer{
		key:     key,
		name:    name,
		size:    size,
		status:  Receiving,
		started: m.opts.TimeProvider.Now(),
		writer:  w,
	}
	m.add(t)

	logrus.WithFields(logrus.Fields{
		"function":  "Manager.Receive",
		"transfer":  key.String(),
		"file_name": name,
		"file_size": size,
	}).Info("Incoming transfer receiving")

	return t, nil
}

// Write appends data to an incoming transfer.
func (m *Manager) Write(friend, file uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[Key{Friend: friend, File: file}]
	if !ok {
		return ErrNotFound
	}
	if t.status != Receiving && t.status != ReceivePaused {
		return fmt.Errorf("%w: %s is %s", ErrNotReceiving, t.key, t.status)
	}
	n, err := t.writer.Write(data)
	t.transferred += uint64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", t.key, err)
	}
	return nil
}

// HandleControl applies a control signal to the transfer at key and returns
// its resulting state. Signals the current state does not expect are ignored.
func (m *Manager) HandleControl(key Key, ctrl session.FileControl) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[key]
	if !ok {
		return View{}, ErrNotFound
	}

	prev := t.status
	switch ctrl {
	case session.FileControlAccept:
		switch {
		case t.status == SendPending:
			t.status = Sending
		case m.opts.ResumeOnAccept:
			m.resume(t)
		}
	case session.FileControlResume:
		m.resume(t)
	case session.FileControlPause:
		switch t.status {
		case Sending:
			t.status = SendPaused
		case Receiving:
			t.status = ReceivePaused
		}
	case session.FileControlFinished:
		if !key.Outgoing && (t.status == Receiving || t.status == ReceivePaused) {
			m.finish(t)
		}
	case session.FileControlKill:
		m.kill(t)
	}

	if prev != t.status {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.HandleControl",
			"transfer": key.String(),
			"control":  ctrl.String(),
			"from":     prev.String(),
			"to":       t.status.String(),
		}).Debug("Transfer state changed")
	}

	return t.view(m.opts.TimeProvider), nil
}

// Kill cancels the transfer at key. Unknown or already-killed transfers are
// left alone; the result reports whether anything changed.
func (m *Manager) Kill(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[key]
	if !ok {
		return false
	}
	m.kill(t)
	return true
}

// KillFriend cancels every transfer with friend, e.g. when the friend is
// deleted.
func (m *Manager) KillFriend(friend uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	killed := 0
	for _, key := range append([]Key(nil), m.order...) {
		if key.Friend == friend {
			m.kill(m.transfers[key])
			killed++
		}
	}
	return killed
}

// Service pushes data for every Sending transfer until the sender pushes
// back. It returns the transfers that finished during the call and whether
// any transfer sent data or changed state.
func (m *Manager) Service(s Sender) (done []View, moved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range append([]Key(nil), m.order...) {
		t := m.transfers[key]
		if t == nil || t.status != Sending {
			continue
		}
		sent := t.transferred
		if m.pump(s, t) {
			done = append(done, t.view(m.opts.TimeProvider))
		}
		if t.transferred != sent || t.status != Sending {
			moved = true
		}
	}
	return done, moved
}

// pump sends chunks of t until the sender refuses one or the file ends. It
// reports whether t finished.
func (m *Manager) pump(s Sender, t *Transfer) bool {
	for {
		if t.n > 0 {
			if err := s.FileSendData(t.key.Friend, t.key.File, t.buf[:t.n]); err != nil {
				if !errors.Is(err, session.ErrBufferFull) {
					logrus.WithFields(logrus.Fields{
						"function": "Manager.pump",
						"transfer": t.key.String(),
						"error":    err.Error(),
					}).Warn("Sending file chunk failed")
				}
				return false
			}
			t.transferred += uint64(t.n)
			t.n = 0
		}

		if t.eof {
			if err := s.FileControl(t.key.Friend, t.key.File, true, session.FileControlFinished); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Manager.pump",
					"transfer": t.key.String(),
					"error":    err.Error(),
				}).Warn("Sending finished signal failed")
			}
			m.finish(t)
			return true
		}

		if err := t.fill(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Manager.pump",
				"transfer": t.key.String(),
				"error":    err.Error(),
			}).Error("Reading outgoing file failed, killing transfer")
			if cerr := s.FileControl(t.key.Friend, t.key.File, true, session.FileControlKill); cerr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Manager.pump",
					"transfer": t.key.String(),
					"error":    cerr.Error(),
				}).Debug("Sending kill signal failed")
			}
			m.kill(t)
			return false
		}
	}
}

// Get returns a view of the transfer at key.
func (m *Manager) Get(key Key) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[key]
	if !ok {
		return View{}, false
	}
	return t.view(m.opts.TimeProvider), true
}

// Len returns the number of live transfers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

// Views returns snapshots of all live transfers ordered by key.
func (m *Manager) Views() []View {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]View, 0, len(m.transfers))
	for _, t := range m.transfers {
		views = append(views, t.view(m.opts.TimeProvider))
	}
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Key, views[j].Key
		if a.Friend != b.Friend {
			return a.Friend < b.Friend
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return !a.Outgoing && b.Outgoing
	})
	return views
}

// Close kills every live transfer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range append([]Key(nil), m.order...) {
		m.kill(m.transfers[key])
	}
}

func (m *Manager) resume(t *Transfer) {
	switch t.status {
	case SendPaused:
		t.status = Sending
	case ReceivePaused:
		t.status = Receiving
	}
}

func (m *Manager) finish(t *Transfer) {
	t.status = Finished
	t.release()
	m.evict(t.key)

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.finish",
		"transfer":    t.key.String(),
		"transferred": t.transferred,
	}).Info("Transfer finished")
}

func (m *Manager) kill(t *Transfer) {
	if t.status == Killed {
		return
	}
	t.status = Killed
	t.release()
	m.evict(t.key)

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.kill",
		"transfer":    t.key.String(),
		"transferred": t.transferred,
	}).Info("Transfer killed")
}

func (m *Manager) add(t *Transfer) {
	m.transfers[t.key] = t
	m.order = append(m.order, t.key)
}

func (m *Manager) evict(key Key) {
	delete(m.transfers, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
