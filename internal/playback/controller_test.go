package playback

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"scriptcast/internal/ambience"
	"scriptcast/internal/audio"
	"scriptcast/internal/script"
)

type fakePlayer struct {
	mu      sync.Mutex
	playing bool
	closed  int
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) SetVolume(float64) {}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.closed++
	return nil
}

type fakeOutput struct {
	mu      sync.Mutex
	players []*fakePlayer
}

func (o *fakeOutput) NewPlayer(r io.Reader) audio.Player {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePlayer{}
	o.players = append(o.players, p)
	return p
}

func (o *fakeOutput) playerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.players)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// pcmPayload is silence of the given sample count in the speech engine's
// wire form.
func pcmPayload(samples int) string {
	raw := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], 0)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// countingSpeech returns a SpeechFunc that serves payload and counts calls.
func countingSpeech(payload string, calls *int, mu *sync.Mutex) SpeechFunc {
	return func(ctx context.Context, text string) (string, error) {
		mu.Lock()
		*calls++
		mu.Unlock()
		return payload, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestController(out *fakeOutput, coord *Coordinator, clock *fakeClock, speech SpeechFunc) *Controller {
	return NewController(Config{
		Output:      out,
		Coordinator: coord,
		Synth:       ambience.NewSynth(out),
		Speech:      speech,
		Tone:        script.ToneStorytelling,
		Text:        "one two three four five",
		Tick:        time.Millisecond,
		Now:         clock.Now,
	})
}

func TestController_toggle_starts_playback(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if c.State() != StatePlaying {
		t.Fatalf("expected playing, got %v", c.State())
	}
	if !coord.Occupied() {
		t.Error("expected coordinator slot held")
	}

	st := c.Status()
	if !st.IsPlaying || st.IsLoading {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.DurationSeconds != 1.0 {
		t.Errorf("expected 1s duration, got %f", st.DurationSeconds)
	}
	if out.playerCount() != 1 { // ambience disabled by default in this config
		t.Errorf("expected 1 player, got %d", out.playerCount())
	}

	c.Close()
}

func TestController_toggle_again_stops(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("second toggle: %v", err)
	}

	if c.State() != StateIdle {
		t.Fatalf("expected idle after toggle, got %v", c.State())
	}
	if coord.Occupied() {
		t.Error("expected coordinator slot released")
	}
	st := c.Status()
	if st.Progress != 0 {
		t.Errorf("expected progress reset to 0, got %f", st.Progress)
	}
	out.mu.Lock()
	closed := out.players[0].closed
	out.mu.Unlock()
	if closed == 0 {
		t.Error("expected voice player closed on stop")
	}
}

func TestController_single_active_playback(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	speech := countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu)

	a := newTestController(out, coord, clock, speech)
	b := newTestController(out, coord, clock, speech)

	if err := a.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle a: %v", err)
	}
	if err := b.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle b: %v", err)
	}

	if a.State() != StateIdle {
		t.Errorf("expected a silenced when b started, got %v", a.State())
	}
	if b.State() != StatePlaying {
		t.Errorf("expected b playing, got %v", b.State())
	}
	if !coord.Occupied() {
		t.Error("expected slot held by b")
	}

	b.Close()
}

func TestController_natural_end(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex

	ended := make(chan struct{})
	c := NewController(Config{
		Output:       out,
		Coordinator:  coord,
		Synth:        ambience.NewSynth(out),
		Speech:       countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu),
		Tone:         script.ToneCalm,
		Text:         "short test text",
		Tick:         time.Millisecond,
		Now:          clock.Now,
		OnNaturalEnd: func() { close(ended) },
	})

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	clock.Advance(2 * time.Second) // past the 1s clip
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("natural end callback never fired")
	}

	waitFor(t, time.Second, func() bool { return c.State() == StateIdle })
	st := c.Status()
	if st.Progress != 1.0 {
		t.Errorf("expected progress exactly 1.0 at natural end, got %f", st.Progress)
	}
	if coord.Occupied() {
		t.Error("expected slot free after natural end")
	}
}

func TestController_generation_failure(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	genErr := errors.New("upstream rejected request")

	c := NewController(Config{
		Output:      out,
		Coordinator: coord,
		Synth:       ambience.NewSynth(out),
		Speech: func(ctx context.Context, text string) (string, error) {
			return "", genErr
		},
		Tone: script.ToneCalm,
		Text: "text",
		Tick: time.Millisecond,
		Now:  clock.Now,
	})

	err := c.Toggle(context.Background())
	if !errors.Is(err, genErr) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("expected idle after failure, got %v", c.State())
	}
	if coord.Occupied() {
		t.Error("expected slot released after failure")
	}
	if out.playerCount() != 0 {
		t.Errorf("expected no players, got %d", out.playerCount())
	}
	if st := c.Status(); st.Error == "" {
		t.Error("expected status to carry the error")
	}
}

func TestController_decode_failure(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()

	c := newTestController(out, coord, clock, func(ctx context.Context, text string) (string, error) {
		return "not base64 at all!!!", nil
	})

	err := c.Toggle(context.Background())
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("expected idle after decode failure, got %v", c.State())
	}
	if coord.Occupied() {
		t.Error("expected slot released after decode failure")
	}
}

func TestController_stale_generation_discarded(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()

	release := make(chan struct{})
	started := make(chan struct{})
	c := newTestController(out, coord, clock, func(ctx context.Context, text string) (string, error) {
		close(started)
		<-release
		return pcmPayload(audio.SampleRate), nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Toggle(context.Background()) }()

	<-started
	c.Stop() // user gives up while generation is in flight
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("stale toggle should return nil, got %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("expected idle, got %v", c.State())
	}
	if out.playerCount() != 0 {
		t.Errorf("late result must not start playback, got %d players", out.playerCount())
	}
	if coord.Occupied() {
		t.Error("expected slot free")
	}
}

func TestController_stop_racing_slot_acquisition_frees_slot(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	c := newTestController(out, coord, clock, func(ctx context.Context, text string) (string, error) {
		return pcmPayload(audio.SampleRate), nil
	})

	// Interleaving where a stop lands after Toggle marks the attempt but
	// before its slot acquisition: the stop's release finds nothing to
	// free, the acquisition then registers a dead attempt, and the discard
	// path must hand the slot back.
	c.mu.Lock()
	c.state = StateLoading
	c.gen++
	c.mu.Unlock()
	c.Stop()
	c.coord.Acquire(c)

	c.releaseStale()
	if coord.Occupied() {
		t.Error("expected slot free after discarding the dead attempt")
	}
	if c.State() != StateIdle {
		t.Errorf("expected idle, got %v", c.State())
	}

	// The next toggle must work normally with the slot clean.
	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle after discard: %v", err)
	}
	if !coord.Occupied() {
		t.Error("expected slot held while playing")
	}
}

func TestController_stale_release_keeps_slot_of_newer_attempt(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	c := newTestController(out, coord, clock, func(ctx context.Context, text string) (string, error) {
		return pcmPayload(audio.SampleRate), nil
	})

	// A newer attempt is already loading and holds the slot; the stale
	// discard must not release it out from under the newer attempt.
	c.mu.Lock()
	c.state = StateLoading
	c.gen++
	c.mu.Unlock()
	c.coord.Acquire(c)

	c.releaseStale()
	if !coord.Occupied() {
		t.Error("expected slot kept while a newer attempt is loading")
	}
}

func TestController_set_text_invalidates_cached_clip(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))
	ctx := context.Background()

	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("first play: %v", err)
	}
	c.Stop()
	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("replay: %v", err)
	}
	mu.Lock()
	afterReplay := calls
	mu.Unlock()
	if afterReplay != 1 {
		t.Fatalf("replay must reuse the cached clip, got %d speech calls", afterReplay)
	}

	c.SetText("completely different words now")
	if c.State() != StateIdle {
		t.Error("expected text change to stop playback")
	}

	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("play after edit: %v", err)
	}
	mu.Lock()
	afterEdit := calls
	mu.Unlock()
	if afterEdit != 2 {
		t.Errorf("expected regeneration after text change, got %d speech calls", afterEdit)
	}

	c.Close()
}

func TestController_set_text_same_text_keeps_cache(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))
	ctx := context.Background()

	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.SetText("one two three four five") // unchanged
	if c.State() != StatePlaying {
		t.Error("expected unchanged text to leave playback running")
	}

	c.Close()
}

func TestController_stop_idle_is_noop(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(100), &calls, &mu))

	c.Stop()
	c.Stop()
	if c.State() != StateIdle {
		t.Errorf("expected idle, got %v", c.State())
	}
}

func TestController_ambience_layered_under_voice(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex

	c := NewController(Config{
		Output:          out,
		Coordinator:     coord,
		Synth:           ambience.NewSynth(out),
		Speech:          countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu),
		Tone:            script.ToneUrgent,
		Text:            "text",
		AmbienceEnabled: true,
		AmbienceVolume:  0.3,
		Tick:            time.Millisecond,
		Now:             clock.Now,
	})

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if out.playerCount() != 2 {
		t.Fatalf("expected voice and ambience players, got %d", out.playerCount())
	}

	// Disabling mid-play fades the bed; the voice keeps sounding.
	c.SetAmbienceEnabled(false)
	if c.State() != StatePlaying {
		t.Error("expected voice unaffected by ambience toggle")
	}

	// Re-enabling starts a fresh bed.
	c.SetAmbienceEnabled(true)
	if out.playerCount() != 3 {
		t.Errorf("expected a new ambience player, got %d total", out.playerCount())
	}

	c.Close()
}

func TestController_close(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	c.Close()
	c.Close() // idempotent

	if coord.Occupied() {
		t.Error("expected slot released on close")
	}
	if err := c.Toggle(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestController_progress_tracks_wall_clock(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	// 3 seconds of audio.
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(3*audio.SampleRate), &calls, &mu))

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if st := c.Status(); st.DurationSeconds != 3.0 {
		t.Fatalf("expected 3s clip, got %f", st.DurationSeconds)
	}

	clock.Advance(1500 * time.Millisecond)
	waitFor(t, time.Second, func() bool {
		p := c.Status().Progress
		return p > 0.49 && p < 0.51
	})

	c.Close()
}

func TestController_status_highlight_tracks_progress(t *testing.T) {
	out := &fakeOutput{}
	coord := NewCoordinator()
	clock := newFakeClock()
	var calls int
	var mu sync.Mutex
	// 5-word text over a 1s clip.
	c := newTestController(out, coord, clock, countingSpeech(pcmPayload(audio.SampleRate), &calls, &mu))

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	clock.Advance(410 * time.Millisecond)
	waitFor(t, time.Second, func() bool {
		return c.Status().Progress > 0.40 && c.Status().Progress < 0.42
	})
	if idx := c.Status().HighlightedWordIndex; idx != 2 {
		t.Errorf("expected word 2 highlighted at 41%%, got %d", idx)
	}

	c.Close()
}
