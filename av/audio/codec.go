package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/session"
)

// Frame payload tags. The first byte of every frame names its encoding.
const (
	TagPCM  byte = 0x01
	TagOpus byte = 0x02
)

var (
	// ErrEmptyFrame is returned for a frame with no payload.
	ErrEmptyFrame = errors.New("empty audio frame")
	// ErrUnknownTag is returned for a frame whose encoding is not supported.
	ErrUnknownTag = errors.New("unknown audio frame encoding")
)

// opusFrame is the only frame duration the Opus decoder supports.
const opusFrame = 20 * time.Millisecond

// The decoder always writes 320 SILK samples upsampled three times.
const (
	opusUpsample   = 3
	opusScratch    = 320 * opusUpsample * 2
	opusMaxSamples = opusScratch / 2
)

// Codec turns PCM frames into wire frames and back. Outgoing frames are
// little-endian PCM; incoming frames may also be Opus, which is decoded and
// resampled to the codec's sample rate. Safe for concurrent use.
type Codec struct {
	rate int

	mu      sync.Mutex
	decoder opus.Decoder
	scratch []byte
	decoded []int16
}

// NewCodec creates a codec producing PCM at sampleRate Hz. A non-positive
// rate selects session.DefaultSampleRate.
func NewCodec(sampleRate int) *Codec {
	if sampleRate <= 0 {
		sampleRate = session.DefaultSampleRate
	}
	return &Codec{
		rate:    sampleRate,
		decoder: opus.NewDecoder(),
		scratch: make([]byte, opusScratch),
		decoded: make([]int16, opusMaxSamples),
	}
}

// SampleRate returns the rate of decoded PCM.
func (c *Codec) SampleRate() int { return c.rate }

// Encode returns the wire frame for pcm.
func (c *Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyFrame
	}
	out := make([]byte, 1+2*len(pcm))
	out[0] = TagPCM
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[1+2*i:], uint16(s))
	}
	return out, nil
}

// Decode writes the samples of frame into pcm and returns how many were
// written. Samples beyond len(pcm) are dropped.
func (c *Codec) Decode(frame []byte, pcm []int16) (int, error) {
	if len(frame) < 2 {
		return 0, ErrEmptyFrame
	}
	switch frame[0] {
	case TagPCM:
		return decodePCM(frame[1:], pcm), nil
	case TagOpus:
		return c.decodeOpus(frame[1:], pcm)
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, frame[0])
	}
}

func decodePCM(data []byte, pcm []int16) int {
	n := len(data) / 2
	if n > len(pcm) {
		n = len(pcm)
	}
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return n
}

// decodeOpus decodes one mono SILK frame. The decoder fills bandwidth/50
// samples and upsamples them three times, so the valid output is
// 3*bandwidth/50 samples at 3*bandwidth Hz.
func (c *Codec) decodeOpus(data []byte, pcm []int16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bandwidth, _, err := c.decoder.Decode(data, c.scratch)
	if err != nil {
		return 0, fmt.Errorf("opus decode: %w", err)
	}
	srcRate := bandwidth.SampleRate() * opusUpsample
	n := session.FrameSamples(srcRate, opusFrame)
	if n <= 0 || n > len(c.decoded) {
		return 0, fmt.Errorf("opus decode: unsupported bandwidth %s", bandwidth)
	}
	for i := 0; i < n; i++ {
		c.decoded[i] = int16(binary.LittleEndian.Uint16(c.scratch[2*i:]))
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Codec.decodeOpus",
		"bandwidth": bandwidth.String(),
		"samples":   n,
		"bytes":     len(data),
	}).Debug("Decoded opus frame")

	return resample(c.decoded[:n], srcRate, pcm, c.rate), nil
}

// resample converts src at srcRate into dst at dstRate by linear
// interpolation and returns the number of samples written. Output beyond
// len(dst) is dropped.
func resample(src []int16, srcRate int, dst []int16, dstRate int) int {
	if len(src) == 0 {
		return 0
	}
	if srcRate == dstRate {
		return copy(dst, src)
	}
	out := len(src) * dstRate / srcRate
	if out > len(dst) {
		out = len(dst)
	}
	step := float64(srcRate) / float64(dstRate)
	last := len(src) - 1
	for i := 0; i < out; i++ {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			dst[i] = src[last]
			continue
		}
		frac := pos - float64(j)
		dst[i] = int16(float64(src[j]) + frac*float64(int(src[j+1])-int(src[j])))
	}
	return out
}
