package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// SampleRate is the fixed output rate of the speech engine: 24 kHz mono,
// signed 16-bit little-endian PCM. It is not independently configurable.
const SampleRate = 24000

// ErrDecode wraps all PCM payload decoding failures.
var ErrDecode = errors.New("pcm decode failed")

// Clip is decoded speech audio: mono samples normalized to [-1, 1] at
// SampleRate. A Clip is owned by one playback controller and cached for
// replay until the segment text changes.
type Clip struct {
	Samples []float64
}

// DurationSeconds is the clip length derived from the sample count.
func (c *Clip) DurationSeconds() float64 {
	return float64(len(c.Samples)) / SampleRate
}

// Duration is DurationSeconds as a time.Duration.
func (c *Clip) Duration() time.Duration {
	return time.Duration(float64(time.Second) * c.DurationSeconds())
}

// DecodeBase64 converts a base64-encoded raw 16-bit little-endian mono PCM
// payload into a Clip. Each sample is normalized by dividing by 32768.
// Empty payloads and byte sequences that are not a whole number of 16-bit
// samples fail with an error wrapping ErrDecode.
func DecodeBase64(payload string) (*Clip, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrDecode, len(raw))
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float64(v) / 32768.0
	}

	return &Clip{Samples: samples}, nil
}
