package ambience

import "scriptcast/internal/script"

// Wave is an oscillator waveform shape.
type Wave int

const (
	WaveSine Wave = iota
	WaveSawtooth
	WaveTriangle
)

// Wobble is a slow low-frequency modulation applied to a layer's detune.
type Wobble struct {
	RateHz     float64
	DepthCents float64
}

// Layer is one oscillator in an ambience profile. Gains are kept low
// (0.02-0.15) so the soundbed never masks the foreground voice.
type Layer struct {
	Wave        Wave
	FreqHz      float64
	DetuneCents float64
	Gain        float64
	Wobble      *Wobble
}

// profiles maps each tone to its oscillator layer set. The table is static
// data consumed by one generic renderer; adding a tone is a data change.
var profiles = map[script.Tone][]Layer{
	// Two detuned low sawtooths with a slow wobble on the detune of each,
	// out of phase, producing a throbbing tension.
	script.ToneUrgent: {
		{Wave: WaveSawtooth, FreqHz: 55.0, Gain: 0.055, Wobble: &Wobble{RateHz: 4.0, DepthCents: 18}},
		{Wave: WaveSawtooth, FreqHz: 55.0, DetuneCents: 14, Gain: 0.055, Wobble: &Wobble{RateHz: 3.6, DepthCents: 14}},
	},
	// Two close sine fundamentals 4 Hz apart beat against each other over a
	// sub-octave layer.
	script.ToneCalm: {
		{Wave: WaveSine, FreqHz: 110.0, Gain: 0.08},
		{Wave: WaveSine, FreqHz: 114.0, Gain: 0.08},
		{Wave: WaveSine, FreqHz: 55.0, Gain: 0.05},
	},
	script.TonePersonal: {
		{Wave: WaveSine, FreqHz: 132.0, Gain: 0.07},
		{Wave: WaveSine, FreqHz: 136.0, Gain: 0.07},
		{Wave: WaveSine, FreqHz: 66.0, Gain: 0.045},
	},
	// Bright triadic triangle pads.
	script.ToneMotivational: {
		{Wave: WaveTriangle, FreqHz: 220.00, Gain: 0.05},
		{Wave: WaveTriangle, FreqHz: 277.18, Gain: 0.04},
		{Wave: WaveTriangle, FreqHz: 329.63, Gain: 0.04},
	},
	script.ToneHumorous: {
		{Wave: WaveTriangle, FreqHz: 261.63, Gain: 0.05},
		{Wave: WaveTriangle, FreqHz: 329.63, Gain: 0.04},
		{Wave: WaveTriangle, FreqHz: 392.00, Gain: 0.04},
	},
	// Deep sub-bass sine plus a quiet low harmonic.
	script.ToneAuthoritative: {
		{Wave: WaveSine, FreqHz: 41.2, Gain: 0.12},
		{Wave: WaveSine, FreqHz: 82.4, Gain: 0.03},
	},
	// Neutral warm two-layer pad, also the fallback for unknown tones.
	script.ToneStorytelling: {
		{Wave: WaveSine, FreqHz: 98.0, Gain: 0.07},
		{Wave: WaveTriangle, FreqHz: 147.0, Gain: 0.04},
	},
}

// ProfileFor returns the oscillator layer set for a tone. Unknown tones get
// the neutral storytelling pad.
func ProfileFor(tone script.Tone) []Layer {
	if layers, ok := profiles[tone.Normalize()]; ok {
		return layers
	}
	return profiles[script.ToneStorytelling]
}
