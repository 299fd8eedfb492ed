package audio

import (
	"io"
	"math"

	"github.com/hajimehoshi/oto/v2"
)

// Player is one running sound-producing node. Voice clips and the ambience
// renderer each get their own Player; the underlying device mixes them.
type Player interface {
	Play()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// Output is the shared audio output context. Exactly one Output exists per
// process; it is constructed explicitly and passed to every playback
// controller rather than held as a package-level global.
type Output interface {
	NewPlayer(r io.Reader) Player
}

type otoOutput struct {
	ctx *oto.Context
}

// NewOutput opens the system audio device at SampleRate, mono, 32-bit float
// samples, and blocks until the device is ready.
func NewOutput() (Output, error) {
	ctx, ready, err := oto.NewContext(SampleRate, 1, 0) // 0 = 32-bit float (oto.FormatFloat32LE)
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoOutput{ctx: ctx}, nil
}

func (o *otoOutput) NewPlayer(r io.Reader) Player {
	return o.ctx.NewPlayer(r)
}

// clipReader streams a Clip's samples as float32 little-endian bytes.
type clipReader struct {
	clip *Clip
	pos  int
}

// NewClipReader returns a reader that plays the clip once from time zero.
func NewClipReader(c *Clip) io.Reader {
	return &clipReader{clip: c}
}

func (r *clipReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.clip.Samples) {
		return 0, io.EOF
	}
	n := 0
	for r.pos < len(r.clip.Samples) && n+4 <= len(p) {
		PutFloat32(p[n:], r.clip.Samples[r.pos])
		r.pos++
		n += 4
	}
	return n, nil
}

// PutFloat32 writes a [-1,1] sample as float32 LE into buf.
func PutFloat32(buf []byte, sample float64) {
	v := math.Float32bits(float32(sample))
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}
