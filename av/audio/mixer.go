package audio

import (
	"sync"
)

// Mixer is a Playback whose output is pulled by Mix. Devices call Mix from
// their data callback.
type Mixer struct {
	voices []*mixVoice
}

// NewMixer creates a mixer with n voices.
func NewMixer(n int) *Mixer {
	m := &Mixer{voices: make([]*mixVoice, n)}
	for i := range m.voices {
		m.voices[i] = &mixVoice{}
	}
	return m
}

// NumVoices implements Playback.
func (m *Mixer) NumVoices() int { return len(m.voices) }

// Voice implements Playback.
func (m *Mixer) Voice(i int) Voice { return m.voices[i] }

// Close implements Playback.
func (m *Mixer) Close() error { return nil }

// Mix fills out with the sum of all playing voices, saturating at the int16
// range. Silent voices contribute zero.
func (m *Mixer) Mix(out []int16) {
	acc := make([]int32, len(out))
	for _, v := range m.voices {
		v.mixInto(acc)
	}
	for i, s := range acc {
		switch {
		case s > 32767:
			out[i] = 32767
		case s < -32768:
			out[i] = -32768
		default:
			out[i] = int16(s)
		}
	}
}

type mixVoice struct {
	mu        sync.Mutex
	queue     [][]int16
	pos       int
	processed [][]int16
	playing   bool
}

func (v *mixVoice) Processed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.processed)
}

func (v *mixVoice) Unqueue() []int16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.processed) == 0 {
		return nil
	}
	buf := v.processed[0]
	v.processed = v.processed[1:]
	return buf
}

func (v *mixVoice) Queue(buf []int16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queue = append(v.queue, buf)
}

func (v *mixVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *mixVoice) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.queue) > 0 {
		v.playing = true
	}
}

// mixInto adds queued samples to acc. The voice stops when it runs dry and
// must be restarted with Play.
func (v *mixVoice) mixInto(acc []int32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return
	}
	i := 0
	for i < len(acc) && len(v.queue) > 0 {
		cur := v.queue[0]
		n := copy32(acc[i:], cur[v.pos:])
		i += n
		v.pos += n
		if v.pos == len(cur) {
			v.processed = append(v.processed, cur)
			v.queue = v.queue[1:]
			v.pos = 0
		}
	}
	if len(v.queue) == 0 {
		v.playing = false
	}
}

func copy32(dst []int32, src []int16) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] += int32(src[i])
	}
	return n
}
