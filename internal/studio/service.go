// Package studio ties script generation, storage, and audio playback into the
// operations the HTTP surface exposes: generate and edit scripts, toggle
// segment playback, tune the ambience bed, and analyze voice samples.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scriptcast/internal/ambience"
	"scriptcast/internal/audio"
	"scriptcast/internal/generate"
	"scriptcast/internal/platform/metrics"
	"scriptcast/internal/playback"
	"scriptcast/internal/script"
)

const (
	// DefaultScriptDuration is used when a generation request leaves the
	// target duration blank.
	DefaultScriptDuration = 45

	// DefaultAmbienceVolume is the soundbed level for fresh controllers.
	DefaultAmbienceVolume = 0.3
)

// ErrEmptyTopic is returned when a generation request has no topic.
var ErrEmptyTopic = errors.New("topic must not be empty")

// Generators bundles the external AI operations the service depends on. In
// production all four are the same Gemini client; tests substitute fakes
// per operation.
type Generators struct {
	Script generate.ScriptGenerator
	Speech generate.SpeechGenerator
	Image  generate.ImageGenerator
	Voice  generate.VoiceAnalyzer
}

// Settings are the playback defaults applied to every fresh controller.
type Settings struct {
	AmbienceEnabled bool
	AmbienceVolume  float64       // <= 0 selects DefaultAmbienceVolume
	Tick            time.Duration // <= 0 selects the playback default
}

// Service owns the studio's business logic. Playback controllers are created
// lazily per segment and live until their script is deleted or its text
// edited; the shared coordinator keeps at most one of them sounding.
type Service struct {
	repo     *Repository
	gen      Generators
	out      audio.Output
	synth    *ambience.Synth
	coord    *playback.Coordinator
	settings Settings
	// metrics may be nil to disable metric recording (e.g. in tests).
	metrics *metrics.Metrics

	mu          sync.Mutex
	controllers map[string]*playback.Controller
	profile     *script.VoiceProfile
}

// NewService assembles the studio service. Metrics may be nil.
func NewService(repo *Repository, gen Generators, out audio.Output, m *metrics.Metrics, settings Settings) *Service {
	if settings.AmbienceVolume <= 0 {
		settings.AmbienceVolume = DefaultAmbienceVolume
	}
	return &Service{
		repo:        repo,
		gen:         gen,
		out:         out,
		synth:       ambience.NewSynth(out),
		coord:       playback.NewCoordinator(),
		settings:    settings,
		metrics:     m,
		controllers: make(map[string]*playback.Controller),
	}
}

// Coordinator exposes the playback slot for gauge scraping.
func (s *Service) Coordinator() *playback.Coordinator {
	return s.coord
}

// Generate produces a script for the topic, persists it, and returns it.
func (s *Service) Generate(ctx context.Context, topic string, tone script.Tone, durationSeconds int, useSearch bool) (*script.Script, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	tone = tone.Normalize()
	if durationSeconds <= 0 {
		durationSeconds = DefaultScriptDuration
	}

	res, err := s.gen.Script.GenerateScript(ctx, generate.ScriptRequest{
		Topic:           topic,
		Tone:            tone,
		DurationSeconds: durationSeconds,
		UseSearch:       useSearch,
	})
	if err != nil {
		s.countError(err)
		return nil, err
	}

	sc := script.New(topic, tone, durationSeconds, res.Segments, res.Sources)
	if err := s.repo.Save(ctx, sc); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncScriptsGenerated()
	}
	return sc, nil
}

// GetScript returns one stored script.
func (s *Service) GetScript(ctx context.Context, id string) (*script.Script, error) {
	return s.repo.Get(ctx, id)
}

// ListScripts returns all stored scripts, newest first.
func (s *Service) ListScripts(ctx context.Context) ([]*script.Script, error) {
	return s.repo.List(ctx)
}

// DeleteScript removes a script and tears down any controllers built for its
// segments.
func (s *Service) DeleteScript(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	prefix := id + "/"
	s.mu.Lock()
	var doomed []*playback.Controller
	for key, ctrl := range s.controllers {
		if strings.HasPrefix(key, prefix) {
			doomed = append(doomed, ctrl)
			delete(s.controllers, key)
		}
	}
	s.mu.Unlock()

	for _, ctrl := range doomed {
		ctrl.Close()
	}
	return nil
}

// UpdateSegment edits a segment's text and visual description. The segment's
// controller, if any, drops its cached audio so the next play regenerates
// speech for the new words.
func (s *Service) UpdateSegment(ctx context.Context, id string, index int, text, visual string) (*script.Script, error) {
	sc, err := s.repo.UpdateSegment(ctx, id, index, text, visual)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ctrl := s.controllers[controllerKey(id, index)]
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.SetText(text)
	}
	return sc, nil
}

// Toggle starts or stops playback of one segment and returns the resulting
// status. The first play of a segment generates and decodes its speech.
func (s *Service) Toggle(ctx context.Context, id string, index int) (playback.Status, error) {
	ctrl, err := s.controllerFor(ctx, id, index)
	if err != nil {
		return playback.Status{}, err
	}

	wasIdle := ctrl.State() == playback.StateIdle
	if err := ctrl.Toggle(ctx); err != nil {
		s.countError(err)
		return ctrl.Status(), err
	}
	if wasIdle && s.metrics != nil {
		s.metrics.IncPlaybacksStarted()
	}
	return ctrl.Status(), nil
}

// StopSegment halts playback of one segment. Stopping a segment that never
// played is a no-op, but the script and index are still validated.
func (s *Service) StopSegment(ctx context.Context, id string, index int) error {
	if err := s.validateSegment(ctx, id, index); err != nil {
		return err
	}

	s.mu.Lock()
	ctrl := s.controllers[controllerKey(id, index)]
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Stop()
	}
	return nil
}

// SetAmbience updates the soundbed toggle and volume of one segment's
// controller, creating it if the segment has not played yet so the settings
// take effect on first play.
func (s *Service) SetAmbience(ctx context.Context, id string, index int, enabled bool, volume float64) (playback.Status, error) {
	ctrl, err := s.controllerFor(ctx, id, index)
	if err != nil {
		return playback.Status{}, err
	}
	ctrl.SetAmbienceVolume(volume)
	ctrl.SetAmbienceEnabled(enabled)
	return ctrl.Status(), nil
}

// PlaybackStatus reports the observable playback state of one segment.
// Segments that never played report an idle status.
func (s *Service) PlaybackStatus(ctx context.Context, id string, index int) (playback.Status, error) {
	if err := s.validateSegment(ctx, id, index); err != nil {
		return playback.Status{}, err
	}

	s.mu.Lock()
	ctrl := s.controllers[controllerKey(id, index)]
	s.mu.Unlock()
	if ctrl == nil {
		return playback.Status{HighlightedWordIndex: -1}, nil
	}
	return ctrl.Status(), nil
}

// GenerateSegmentImage renders the segment's visual description into a data
// URI. Segments without a visual description fall back to the spoken text.
func (s *Service) GenerateSegmentImage(ctx context.Context, id string, index int) (string, error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(sc.Segments) {
		return "", fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(sc.Segments))
	}

	prompt := sc.Segments[index].Visual
	if strings.TrimSpace(prompt) == "" {
		prompt = sc.Segments[index].Text
	}
	uri, err := s.gen.Image.GenerateImage(ctx, prompt)
	if err != nil {
		s.countError(err)
		return "", err
	}
	return uri, nil
}

// AnalyzeVoice matches a voice sample to a provider voice and stores the
// result; subsequent speech generation uses the matched voice instead of the
// tone mapping.
func (s *Service) AnalyzeVoice(ctx context.Context, base64Audio string) (*script.VoiceProfile, error) {
	profile, err := s.gen.Voice.AnalyzeVoice(ctx, base64Audio)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	return profile, nil
}

// VoiceProfile returns the stored voice analysis, or nil when none exists.
func (s *Service) VoiceProfile() *script.VoiceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Close stops all playback and releases every controller. Called on shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	ctrls := make([]*playback.Controller, 0, len(s.controllers))
	for _, ctrl := range s.controllers {
		ctrls = append(ctrls, ctrl)
	}
	s.controllers = make(map[string]*playback.Controller)
	s.mu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.Close()
	}
}

// controllerFor returns the segment's controller, building one on first use.
func (s *Service) controllerFor(ctx context.Context, id string, index int) (*playback.Controller, error) {
	key := controllerKey(id, index)

	s.mu.Lock()
	if ctrl, ok := s.controllers[key]; ok {
		s.mu.Unlock()
		return ctrl, nil
	}
	s.mu.Unlock()

	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sc.Segments) {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(sc.Segments))
	}

	tone := sc.Tone
	ctrl := playback.NewController(playback.Config{
		Output:      s.out,
		Coordinator: s.coord,
		Synth:       s.synth,
		Speech: func(ctx context.Context, text string) (string, error) {
			return s.gen.Speech.GenerateSpeech(ctx, text, tone, s.voiceOverride())
		},
		Tone:            tone,
		Text:            sc.Segments[index].Text,
		AmbienceEnabled: s.settings.AmbienceEnabled,
		AmbienceVolume:  s.settings.AmbienceVolume,
		Tick:            s.settings.Tick,
		OnNaturalEnd: func() {
			if s.metrics != nil {
				s.metrics.IncPlaybacksCompleted()
			}
		},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have built the controller while we read the script.
	if existing, ok := s.controllers[key]; ok {
		return existing, nil
	}
	s.controllers[key] = ctrl
	return ctrl, nil
}

func (s *Service) voiceOverride() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return ""
	}
	return s.profile.VoiceName
}

func (s *Service) validateSegment(ctx context.Context, id string, index int) error {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(sc.Segments) {
		return fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(sc.Segments))
	}
	return nil
}

func (s *Service) countError(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, generate.ErrGeneration):
		s.metrics.IncGenerationErrors()
	case errors.Is(err, audio.ErrDecode):
		s.metrics.IncDecodeErrors()
	}
}

func controllerKey(id string, index int) string {
	return fmt.Sprintf("%s/%d", id, index)
}
