package transfer

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/session"
)

func TestOutgoingTenMegabytes(t *testing.T) {
	const size = 10 * 1024 * 1024
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	storage := newMemStorage()
	storage.files["/tmp/big.bin"] = data
	m := NewManager(storage, Options{})
	sender := &fakeSender{capacity: 64}

	tr, err := m.Send(1, 0, "/tmp/big.bin", size, 1024)
	require.NoError(t, err)
	assert.Equal(t, SendPending, tr.Status())

	// Nothing moves before the peer accepts.
	for i := 0; i < 5; i++ {
		sender.newRound()
		finished, moved := m.Service(sender)
		assert.Empty(t, finished)
		assert.False(t, moved)
	}
	assert.Equal(t, SendPending, tr.Status())
	assert.Zero(t, sender.chunks)

	v, err := m.HandleControl(tr.Key(), session.FileControlAccept)
	require.NoError(t, err)
	assert.Equal(t, Sending, v.Status)

	var done []View
	for rounds := 0; tr.Status() == Sending; rounds++ {
		require.Less(t, rounds, size/1024, "transfer did not make progress")
		sender.newRound()
		finished, moved := m.Service(sender)
		require.True(t, moved)
		done = append(done, finished...)
	}

	assert.Equal(t, Finished, tr.Status())
	assert.False(t, tr.Open())
	assert.Equal(t, 1, storage.closeCount())
	assert.Equal(t, 1, sender.count(session.FileControlFinished))
	assert.Equal(t, size/1024, sender.chunks)
	assert.True(t, bytes.Equal(data, sender.sent.Bytes()))
	assert.Equal(t, uint64(size), tr.Transferred())
	require.Len(t, done, 1)
	assert.Equal(t, Finished, done[0].Status)
	assert.Zero(t, m.Len(), "finished transfers are evicted")

	// Further servicing must not signal Finished again.
	sender.newRound()
	m.Service(sender)
	assert.Equal(t, 1, sender.count(session.FileControlFinished))
}

func TestServiceReportsNoProgressWhenBufferFull(t *testing.T) {
	storage := newMemStorage()
	storage.files["f"] = make([]byte, 4096)
	m := NewManager(storage, Options{})
	sender := &fakeSender{capacity: 0}

	tr, err := m.Send(0, 0, "f", 4096, 1024)
	require.NoError(t, err)
	_, err = m.HandleControl(tr.Key(), session.FileControlAccept)
	require.NoError(t, err)

	done, moved := m.Service(sender)
	assert.Empty(t, done)
	assert.False(t, moved, "a full send buffer is not progress")

	sender.capacity = 1
	sender.newRound()
	_, moved = m.Service(sender)
	assert.True(t, moved)
	assert.Equal(t, uint64(1024), tr.Transferred())
}

func TestOutgoingShortLastChunk(t *testing.T) {
	storage := newMemStorage()
	storage.files["a"] = bytes.Repeat([]byte{7}, 2500)
	m := NewManager(storage, Options{})
	sender := &fakeSender{capacity: 100}

	tr, err := m.Send(2, 3, "a", 2500, 1000)
	require.NoError(t, err)
	_, err = m.HandleControl(tr.Key(), session.FileControlAccept)
	require.NoError(t, err)

	m.Service(sender)
	assert.Equal(t, Finished, tr.Status())
	assert.Equal(t, 3, sender.chunks)
	assert.Equal(t, 2500, sender.sent.Len())
	assert.Equal(t, []controlCall{{2, 3, true, session.FileControlFinished}}, sender.controls)
}

func TestOutgoingEmptyFile(t *testing.T) {
	storage := newMemStorage()
	storage.files["empty"] = nil
	m := NewManager(storage, Options{})
	sender := &fakeSender{capacity: 1}

	tr, err := m.Send(0, 0, "empty", 0, 1024)
	require.NoError(t, err)
	_, err = m.HandleControl(tr.Key(), session.FileControlAccept)
	require.NoError(t, err)

	m.Service(sender)
	assert.Equal(t, Finished, tr.Status())
	assert.Zero(t, sender.chunks)
	assert.Equal(t, 1, sender.count(session.FileControlFinished))
}

func TestIncomingNotes(t *testing.T) {
	storage := newMemStorage()
	m := NewManager(storage, Options{})

	tr, err := m.Receive(4, 1, "notes.txt", 42)
	require.NoError(t, err)
	assert.Equal(t, Receiving, tr.Status())
	require.Contains(t, storage.created, "notes.txt")

	payload := []byte("the quick brown fox jumps over a lazy dog!")
	require.Len(t, payload, 42)
	for _, part := range [][]byte{payload[:10], payload[10:11], payload[11:40], payload[40:]} {
		require.NoError(t, m.Write(4, 1, part))
	}

	v, err := m.HandleControl(Key{Friend: 4, File: 1}, session.FileControlFinished)
	require.NoError(t, err)
	assert.Equal(t, Finished, v.Status)
	assert.Equal(t, uint64(42), v.Transferred)
	assert.Equal(t, payload, storage.created["notes.txt"].w.Bytes())
	assert.Equal(t, 1, storage.created["notes.txt"].closed)
	assert.False(t, tr.Open())

	assert.ErrorIs(t, m.Write(4, 1, []byte("late")), ErrNotFound)
}

func TestKillIsIdempotent(t *testing.T) {
	storage := newMemStorage()
	storage.files["f"] = make([]byte, 5000)
	m := NewManager(storage, Options{})

	tr, err := m.Send(1, 1, "f", 5000, 1024)
	require.NoError(t, err)

	assert.True(t, m.Kill(tr.Key()))
	assert.Equal(t, Killed, tr.Status())
	assert.False(t, tr.Open())
	assert.Equal(t, 1, storage.closeCount())

	assert.False(t, m.Kill(tr.Key()))
	_, err = m.HandleControl(tr.Key(), session.FileControlKill)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Killed, tr.Status())
	assert.Equal(t, 1, storage.closeCount(), "storage must be closed exactly once")
}

func TestStorageClosedOnTerminalStates(t *testing.T) {
	tests := []struct {
		name    string
		control session.FileControl
		want    Status
	}{
		{"finished", session.FileControlFinished, Finished},
		{"killed", session.FileControlKill, Killed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemStorage()
			m := NewManager(storage, Options{})
			tr, err := m.Receive(0, 0, "x", 1)
			require.NoError(t, err)
			assert.True(t, tr.Open())

			_, err = m.HandleControl(tr.Key(), tt.control)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Status())
			assert.False(t, tr.Open())
			assert.Equal(t, 1, storage.closeCount())
		})
	}
}

func TestPauseAndResume(t *testing.T) {
	tests := []struct {
		name           string
		resumeOnAccept bool
		resumeWith     session.FileControl
		want           Status
	}{
		{"resume signal", false, session.FileControlResume, Sending},
		{"accept ignored by default", false, session.FileControlAccept, SendPaused},
		{"accept resumes when enabled", true, session.FileControlAccept, Sending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemStorage()
			storage.files["f"] = make([]byte, 10)
			m := NewManager(storage, Options{ResumeOnAccept: tt.resumeOnAccept})
			tr, err := m.Send(0, 0, "f", 10, 1024)
			require.NoError(t, err)

			_, err = m.HandleControl(tr.Key(), session.FileControlAccept)
			require.NoError(t, err)
			_, err = m.HandleControl(tr.Key(), session.FileControlPause)
			require.NoError(t, err)
			assert.Equal(t, SendPaused, tr.Status())

			sender := &fakeSender{capacity: 10}
			_, moved := m.Service(sender)
			assert.False(t, moved)
			assert.Zero(t, sender.chunks, "paused transfers are not serviced")

			_, err = m.HandleControl(tr.Key(), tt.resumeWith)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Status())
		})
	}
}

func TestUnexpectedSignalsIgnored(t *testing.T) {
	storage := newMemStorage()
	storage.files["f"] = make([]byte, 10)
	m := NewManager(storage, Options{})

	out, err := m.Send(0, 0, "f", 10, 1024)
	require.NoError(t, err)
	in, err := m.Receive(0, 0, "g", 10)
	require.NoError(t, err)

	_, err = m.HandleControl(out.Key(), session.FileControlFinished)
	require.NoError(t, err)
	assert.Equal(t, SendPending, out.Status())

	_, err = m.HandleControl(in.Key(), session.FileControlAccept)
	require.NoError(t, err)
	assert.Equal(t, Receiving, in.Status())

	_, err = m.HandleControl(out.Key(), session.FileControlPause)
	require.NoError(t, err)
	assert.Equal(t, SendPending, out.Status())
}

func TestKillFriendAndViews(t *testing.T) {
	storage := newMemStorage()
	storage.files["f"] = make([]byte, 10)
	m := NewManager(storage, Options{})

	_, err := m.Send(1, 0, "f", 10, 1024)
	require.NoError(t, err)
	_, err = m.Receive(1, 0, "a", 10)
	require.NoError(t, err)
	_, err = m.Receive(2, 0, "b", 10)
	require.NoError(t, err)

	views := m.Views()
	require.Len(t, views, 3)
	assert.Equal(t, Key{Friend: 1, File: 0}, views[0].Key)
	assert.Equal(t, Key{Friend: 1, File: 0, Outgoing: true}, views[1].Key)

	assert.Equal(t, 2, m.KillFriend(1))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, storage.closeCount())
}

func TestDuplicateKeyRejected(t *testing.T) {
	m := NewManager(newMemStorage(), Options{})
	_, err := m.Receive(0, 0, "a", 1)
	require.NoError(t, err)
	_, err = m.Receive(0, 0, "b", 1)
	assert.ErrorIs(t, err, ErrExists)
}

func TestDiskStorage(t *testing.T) {
	dir := t.TempDir()
	s := DiskStorage{Dir: filepath.Join(dir, "downloads")}

	w, err := s.Create("../../etc/notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := os.ReadFile(filepath.Join(dir, "downloads", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))

	r, err := s.Open(filepath.Join(dir, "downloads", "notes.txt"))
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"notes.txt", "notes.txt", false},
		{"a/b/c.txt", "c.txt", false},
		{`..\..\win.ini`, "win.ini", false},
		{"..", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SafeName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewProgress(t *testing.T) {
	assert.Equal(t, 0.5, View{Size: 10, Transferred: 5}.Progress())
	assert.Equal(t, 1.0, View{Size: 0, Status: Finished}.Progress())
	assert.Equal(t, 0.0, View{Size: 0}.Progress())
}
