package ambience

import (
	"io"
	"math"
	"sync"
	"time"

	"scriptcast/internal/audio"
	"scriptcast/internal/script"
)

const (
	// startRamp eases the layers in from silence so the bed has no onset click.
	startRamp = 100 * time.Millisecond
	// volumeRamp smooths SetVolume changes while sounding.
	volumeRamp = 100 * time.Millisecond
	// fadeOut is the linear fade applied by Stop before the layers are released.
	fadeOut = time.Second
)

// Synth builds tone-specific ambience beds on a shared audio output.
type Synth struct {
	out audio.Output
}

// NewSynth returns a Synth that plays through out.
func NewSynth(out audio.Output) *Synth {
	return &Synth{out: out}
}

// Start begins a continuous soundbed for the tone at the given master volume
// and returns its handle. The bed keeps sounding until Stop.
func (s *Synth) Start(tone script.Tone, volume float64) *Handle {
	r := newRenderer(ProfileFor(tone), clamp01(volume))
	p := s.out.NewPlayer(r)
	p.Play()
	return &Handle{renderer: r, player: p}
}

// Handle controls one running ambience bed.
type Handle struct {
	renderer *renderer
	player   audio.Player
	stopOnce sync.Once
}

// SetVolume ramps the master gain to v over ~100ms to avoid discontinuities.
func (h *Handle) SetVolume(v float64) {
	h.renderer.setTarget(clamp01(v), volumeRamp)
}

// Stop fades the master gain linearly to zero over one second, then silences
// and releases every oscillator layer. Calling Stop more than once is safe.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.renderer.beginFade(fadeOut)
		go func() {
			// The renderer ends its stream when the fade bottoms out; give
			// the device a moment to drain before releasing the player.
			time.Sleep(fadeOut + 250*time.Millisecond)
			_ = h.player.Close()
		}()
	})
}

// renderer synthesizes the layer stack sample by sample as a float32 LE
// mono stream. All oscillator layers pass through one master gain.
type renderer struct {
	mu     sync.Mutex
	layers []Layer
	phases []float64
	t      float64

	gain   float64
	target float64
	step   float64 // per-sample gain increment toward target
	fading bool
	done   bool
}

func newRenderer(layers []Layer, volume float64) *renderer {
	r := &renderer{
		layers: layers,
		phases: make([]float64, len(layers)),
	}
	r.setTargetLocked(volume, startRamp)
	return r
}

func (r *renderer) setTarget(v float64, ramp time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fading {
		return
	}
	r.setTargetLocked(v, ramp)
}

func (r *renderer) setTargetLocked(v float64, ramp time.Duration) {
	r.target = v
	samples := ramp.Seconds() * audio.SampleRate
	if samples < 1 {
		samples = 1
	}
	r.step = math.Abs(r.target-r.gain) / samples
}

func (r *renderer) beginFade(ramp time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setTargetLocked(0, ramp)
	r.fading = true
}

func (r *renderer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return 0, io.EOF
	}

	n := 0
	for n+4 <= len(p) {
		if r.done {
			break
		}
		audio.PutFloat32(p[n:], r.renderSampleLocked())
		n += 4
	}
	if n == 0 && r.done {
		return 0, io.EOF
	}
	return n, nil
}

func (r *renderer) renderSampleLocked() float64 {
	mix := 0.0
	for i, l := range r.layers {
		cents := l.DetuneCents
		if l.Wobble != nil {
			cents += l.Wobble.DepthCents * math.Sin(2*math.Pi*l.Wobble.RateHz*r.t)
		}
		freq := l.FreqHz * math.Pow(2, cents/1200.0)
		r.phases[i] += 2 * math.Pi * freq / audio.SampleRate
		mix += waveSample(l.Wave, r.phases[i]) * l.Gain
	}
	r.t += 1.0 / audio.SampleRate

	s := softSat(mix) * r.gain

	// Move the master gain toward its target one step per sample.
	switch {
	case r.gain < r.target:
		r.gain = math.Min(r.gain+r.step, r.target)
	case r.gain > r.target:
		r.gain = math.Max(r.gain-r.step, r.target)
	}
	if r.fading && r.gain <= 0 {
		r.done = true
	}
	return s
}

func waveSample(w Wave, phase float64) float64 {
	switch w {
	case WaveSawtooth:
		p := math.Mod(phase/(2*math.Pi), 1.0)
		return 2*p - 1
	case WaveTriangle:
		return (2.0 / math.Pi) * math.Asin(math.Sin(phase))
	default:
		return math.Sin(phase)
	}
}

// softSat applies gentle tanh-like saturation so stacked layers never clip hard.
func softSat(x float64) float64 {
	if x > 1.0 {
		return 1.0 - 0.5/x
	}
	if x < -1.0 {
		return -1.0 + 0.5/(-x)
	}
	return x - x*x*x/3.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
