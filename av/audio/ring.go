package audio

import "sync"

// ring is a bounded sample FIFO filled by a device callback. When full the
// oldest samples are dropped.
type ring struct {
	mu   sync.Mutex
	buf  []int16
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]int16, capacity)}
}

func (r *ring) write(p []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range p {
		tail := (r.head + r.size) % len(r.buf)
		r.buf[tail] = s
		if r.size == len(r.buf) {
			r.head = (r.head + 1) % len(r.buf)
		} else {
			r.size++
		}
	}
}

func (r *ring) read(p []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(p)
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		p[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n
}

func (r *ring) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
