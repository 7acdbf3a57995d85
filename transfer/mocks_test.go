package transfer

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/opd-ai/toxclient/session"
)

// memStorage serves outgoing files from memory and records incoming ones.
type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	created map[string]*memFile
	closes  int
}

func newMemStorage() *memStorage {
	return &memStorage{
		files:   make(map[string][]byte),
		created: make(map[string]*memFile),
	}
}

func (s *memStorage) Open(path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return &memFile{storage: s, r: bytes.NewReader(data)}, nil
}

func (s *memStorage) Create(name string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &memFile{storage: s}
	s.created[name] = f
	return f, nil
}

func (s *memStorage) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type memFile struct {
	storage *memStorage
	r       *bytes.Reader
	w       bytes.Buffer
	closed  int
}

func (f *memFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed > 0 {
		return 0, errors.New("write on closed file")
	}
	return f.w.Write(p)
}

func (f *memFile) Close() error {
	f.closed++
	f.storage.mu.Lock()
	f.storage.closes++
	f.storage.mu.Unlock()
	return nil
}

type controlCall struct {
	friend, file uint32
	outgoing     bool
	control      session.FileControl
}

// fakeSender accepts up to capacity chunks per round.
type fakeSender struct {
	capacity int
	used     int
	sent     bytes.Buffer
	chunks   int
	controls []controlCall
}

func (s *fakeSender) newRound() { s.used = 0 }

func (s *fakeSender) FileSendData(friend, file uint32, data []byte) error {
	if s.used >= s.capacity {
		return session.ErrBufferFull
	}
	s.used++
	s.chunks++
	s.sent.Write(data)
	return nil
}

func (s *fakeSender) FileControl(friend, file uint32, outgoing bool, control session.FileControl) error {
	s.controls = append(s.controls, controlCall{friend, file, outgoing, control})
	return nil
}

func (s *fakeSender) count(c session.FileControl) int {
	n := 0
	for _, call := range s.controls {
		if call.control == c {
			n++
		}
	}
	return n
}
