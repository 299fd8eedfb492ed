// Package playback owns the play/stop lifecycle of script segments: lazy
// speech generation and decoding, voice playback with an optional ambience
// bed, wall-clock progress tracking, and the process-wide rule that only one
// segment sounds at a time.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"scriptcast/internal/ambience"
	"scriptcast/internal/audio"
	"scriptcast/internal/script"
	"scriptcast/internal/subtitle"
)

// State is a controller's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
)

// DefaultTick is the progress loop interval used when Config.Tick is zero.
// It stands in for the browser's display-refresh cadence.
const DefaultTick = 33 * time.Millisecond

// ErrClosed is returned by Toggle after the controller has been torn down.
var ErrClosed = errors.New("playback controller closed")

// SpeechFunc requests speech audio for segment text and returns the raw
// base64 PCM payload. Implementations are expected to wrap upstream failures
// in generate.ErrGeneration.
type SpeechFunc func(ctx context.Context, text string) (string, error)

// Config assembles a Controller. Output, Coordinator, Synth, and Speech are
// required; the rest have working defaults.
type Config struct {
	Output      audio.Output
	Coordinator *Coordinator
	Synth       *ambience.Synth
	Speech      SpeechFunc

	Tone script.Tone
	Text string

	AmbienceEnabled bool
	AmbienceVolume  float64

	// Tick is the progress loop interval; Now is the wall clock. Both exist
	// for tests.
	Tick time.Duration
	Now  func() time.Time

	// OnNaturalEnd fires after a clip plays to completion (not on explicit stop).
	OnNaturalEnd func()
}

// Status is the observable playback state consumed by the UI layer.
type Status struct {
	IsPlaying            bool    `json:"is_playing"`
	IsLoading            bool    `json:"is_loading"`
	Progress             float64 `json:"progress"`
	DurationSeconds      float64 `json:"duration_seconds"`
	HighlightedWordIndex int     `json:"highlighted_word_index"`
	Error                string  `json:"error,omitempty"`
}

// session is the ephemeral state of one active playback. It is replaced, not
// mutated in place, on every play attempt; whoever detaches it from the
// controller owns its teardown.
type session struct {
	start  time.Time
	voice  audio.Player
	amb    *ambience.Handle
	cancel chan struct{}
}

// Controller drives one segment's playback. All mutation goes through its
// mutex; blocking external calls and the progress loop run outside it.
type Controller struct {
	out    audio.Output
	coord  *Coordinator
	synth  *ambience.Synth
	speech SpeechFunc
	tick   time.Duration
	now    func() time.Time
	onEnd  func()

	mu          sync.Mutex
	state       State
	gen         uint64 // play-attempt counter; a bump invalidates in-flight work
	text        string
	tone        script.Tone
	clip        *audio.Clip
	session     *session
	progress    float64
	ambienceOn  bool
	ambienceVol float64
	lastErr     error
	closed      bool
}

// NewController builds a controller for one segment.
func NewController(cfg Config) *Controller {
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		out:         cfg.Output,
		coord:       cfg.Coordinator,
		synth:       cfg.Synth,
		speech:      cfg.Speech,
		tick:        tick,
		now:         now,
		onEnd:       cfg.OnNaturalEnd,
		text:        cfg.Text,
		tone:        cfg.Tone,
		ambienceOn:  cfg.AmbienceEnabled,
		ambienceVol: clampVolume(cfg.AmbienceVolume),
	}
}

// Toggle stops playback when the controller is sounding or loading, and
// otherwise starts it: acquire the coordinator slot (silencing any other
// controller), generate and decode speech on first play, start the voice
// clip from time zero with ambience layered under it, and begin the progress
// loop. Generation and decode failures revert to Idle, release the slot, and
// are returned to the caller with no dangling players.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		c.Stop()
		return nil
	}
	c.state = StateLoading
	c.lastErr = nil
	c.progress = 0
	c.gen++
	gen := c.gen
	text := c.text
	clip := c.clip
	c.mu.Unlock()

	c.coord.Acquire(c)

	c.mu.Lock()
	if gen != c.gen || c.state != StateLoading {
		// A stop landed between releasing the lock and acquiring the
		// slot, so the slot was just taken for a dead attempt.
		c.mu.Unlock()
		c.releaseStale()
		return nil
	}
	c.mu.Unlock()

	if clip == nil {
		payload, err := c.speech(ctx, text)
		if err == nil {
			clip, err = audio.DecodeBase64(payload)
		}
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			if !stale {
				c.state = StateIdle
				c.lastErr = err
			}
			c.mu.Unlock()
			if stale {
				// A stop or newer attempt already superseded this one.
				c.releaseStale()
				return nil
			}
			c.coord.Release(c)
			return err
		}
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateLoading {
		// The user stopped or navigated away while generation was in
		// flight; the late result must not resurrect playback.
		c.mu.Unlock()
		c.releaseStale()
		return nil
	}
	c.clip = clip
	s := &session{
		start:  c.now(),
		voice:  c.out.NewPlayer(audio.NewClipReader(clip)),
		cancel: make(chan struct{}),
	}
	if c.ambienceOn {
		s.amb = c.synth.Start(c.tone, c.ambienceVol)
	}
	s.voice.Play()
	c.session = s
	c.state = StatePlaying
	dur := clip.Duration()
	c.mu.Unlock()

	go c.trackProgress(gen, s, dur)
	return nil
}

// trackProgress recomputes progress from elapsed wall-clock time on every
// tick. It only reads and derives; reaching the clip duration hands off to
// the natural-end transition and the loop does not re-arm.
func (c *Controller) trackProgress(gen uint64, s *session, dur time.Duration) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.cancel:
			return
		case <-ticker.C:
			elapsed := c.now().Sub(s.start)
			if elapsed >= dur {
				c.finish(gen)
				return
			}
			c.mu.Lock()
			if gen == c.gen {
				c.progress = elapsed.Seconds() / dur.Seconds()
			}
			c.mu.Unlock()
		}
	}
}

// finish is the natural-end transition: progress lands on exactly 1.0, the
// session is torn down (ambience fading over its usual second), and the
// coordinator slot is released without an explicit Stop call.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	s := c.session
	c.session = nil
	c.progress = 1.0
	c.state = StateIdle
	c.gen++
	c.mu.Unlock()

	c.releaseSession(s)
	c.coord.Release(c)
	if c.onEnd != nil {
		c.onEnd()
	}
}

// Stop halts the sounding clip, fades out ambience, cancels the progress
// loop, resets progress, and releases the coordinator slot. Stopping an idle
// controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle && c.session == nil {
		c.mu.Unlock()
		return
	}
	s := c.haltLocked()
	c.mu.Unlock()

	c.releaseSession(s)
	c.coord.Release(c)
}

// SetText replaces the segment text. A cached clip no longer corresponds to
// the new words, so it is discarded, and live playback stops immediately.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	if text == c.text {
		c.mu.Unlock()
		return
	}
	c.text = text
	c.clip = nil
	if c.state == StateIdle && c.session == nil {
		c.mu.Unlock()
		return
	}
	s := c.haltLocked()
	c.mu.Unlock()

	c.releaseSession(s)
	c.coord.Release(c)
}

// SetAmbienceEnabled toggles the soundbed independent of the voice track.
// Disabling mid-playback fades the bed without touching the voice; enabling
// starts a fresh bed at the current volume.
func (c *Controller) SetAmbienceEnabled(on bool) {
	c.mu.Lock()
	c.ambienceOn = on
	var fade *ambience.Handle
	if c.state == StatePlaying && c.session != nil {
		switch {
		case !on && c.session.amb != nil:
			fade = c.session.amb
			c.session.amb = nil
		case on && c.session.amb == nil:
			c.session.amb = c.synth.Start(c.tone, c.ambienceVol)
		}
	}
	c.mu.Unlock()

	if fade != nil {
		fade.Stop()
	}
}

// SetAmbienceVolume ramps the live soundbed to v and records it for future
// playback. Values are clamped to [0,1].
func (c *Controller) SetAmbienceVolume(v float64) {
	v = clampVolume(v)
	c.mu.Lock()
	c.ambienceVol = v
	amb := (*ambience.Handle)(nil)
	if c.session != nil {
		amb = c.session.amb
	}
	c.mu.Unlock()

	if amb != nil {
		amb.SetVolume(v)
	}
}

// Close tears the controller down for good: any sounding resources are
// released and further Toggle calls fail with ErrClosed. Safe to call more
// than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	s := c.haltLocked()
	c.mu.Unlock()

	c.releaseSession(s)
	c.coord.Release(c)
}

// Status returns the observable state for rendering.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		IsPlaying:            c.state == StatePlaying,
		IsLoading:            c.state == StateLoading,
		Progress:             c.progress,
		HighlightedWordIndex: subtitle.HighlightIndex(c.progress, wordCount(c.text)),
	}
	if c.clip != nil {
		st.DurationSeconds = c.clip.DurationSeconds()
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// haltLocked moves the controller to Idle, invalidates any in-flight
// generation, and detaches the session for the caller to tear down.
// Caller must hold c.mu.
func (c *Controller) haltLocked() *session {
	c.gen++
	s := c.session
	c.session = nil
	c.progress = 0
	c.state = StateIdle
	return s
}

// releaseSession is the single teardown path shared by stop, natural end,
// text changes, and Close. Stopping already-stopped players is swallowed.
func (c *Controller) releaseSession(s *session) {
	if s == nil {
		return
	}
	close(s.cancel)
	if s.voice != nil {
		_ = s.voice.Close()
	}
	if s.amb != nil {
		s.amb.Stop()
	}
}

// releaseStale frees the coordinator slot after a play attempt was discarded
// as stale. The slot is kept when the controller is loading or playing again,
// because then a newer attempt owns the registration.
func (c *Controller) releaseStale() {
	c.mu.Lock()
	idle := c.state == StateIdle && c.session == nil
	c.mu.Unlock()
	if idle {
		c.coord.Release(c)
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
