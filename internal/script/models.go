package script

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tone selects both the speech delivery and the ambience soundscape of a script.
type Tone string

const (
	ToneUrgent        Tone = "urgent"
	ToneCalm          Tone = "calm"
	TonePersonal      Tone = "personal"
	ToneMotivational  Tone = "motivational"
	ToneHumorous      Tone = "humorous"
	ToneAuthoritative Tone = "authoritative"
	ToneStorytelling  Tone = "storytelling"
)

// DefaultTone is used when a request leaves the tone blank or names an
// unknown one.
const DefaultTone = ToneStorytelling

// Known reports whether t is one of the defined tones.
func (t Tone) Known() bool {
	switch t {
	case ToneUrgent, ToneCalm, TonePersonal, ToneMotivational,
		ToneHumorous, ToneAuthoritative, ToneStorytelling:
		return true
	}
	return false
}

// Normalize lowercases t and falls back to DefaultTone for unknown values.
func (t Tone) Normalize() Tone {
	n := Tone(strings.ToLower(strings.TrimSpace(string(t))))
	if !n.Known() {
		return DefaultTone
	}
	return n
}

// Well-known segment labels. The label field is enum-like but free-form
// labels from the generator pass through unvalidated.
const (
	LabelHook          = "HOOK"
	LabelProblem       = "PROBLEM"
	LabelSolution      = "SOLUTION"
	LabelDemonstration = "DEMONSTRATION"
	LabelCTA           = "CTA"
)

var (
	// ErrInvalidSegment is returned for segments with bad timing or empty text.
	ErrInvalidSegment = errors.New("invalid segment")
)

// Segment is one labeled, time-boxed unit of a generated script.
// Segments are immutable once generated; a new generation replaces the set.
type Segment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Label     string  `json:"label"`
	Text      string  `json:"text"`
	Visual    string  `json:"visual"`
}

// Validate checks the segment invariants: non-negative start, end after
// start, non-empty spoken text.
func (s Segment) Validate() error {
	if s.StartTime < 0 {
		return fmt.Errorf("%w: negative start time %.2f", ErrInvalidSegment, s.StartTime)
	}
	if s.EndTime <= s.StartTime {
		return fmt.Errorf("%w: end %.2f not after start %.2f", ErrInvalidSegment, s.EndTime, s.StartTime)
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidSegment)
	}
	return nil
}

// WordCount returns the number of whitespace-separated words in the spoken text.
func (s Segment) WordCount() int {
	return len(strings.Fields(s.Text))
}

// Source is a grounding citation attached to a generated script.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Script is a generated script with its segments and optional sources.
type Script struct {
	ID              string    `json:"id"`
	Topic           string    `json:"topic"`
	Tone            Tone      `json:"tone"`
	DurationSeconds int       `json:"duration_seconds"`
	Segments        []Segment `json:"segments"`
	Sources         []Source  `json:"sources,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// New assembles a Script with a fresh ID and creation timestamp.
func New(topic string, tone Tone, durationSeconds int, segments []Segment, sources []Source) *Script {
	return &Script{
		ID:              uuid.NewString(),
		Topic:           topic,
		Tone:            tone,
		DurationSeconds: durationSeconds,
		Segments:        segments,
		Sources:         sources,
		CreatedAt:       time.Now().UTC(),
	}
}

// VoiceProfile is the result of analyzing a user-provided voice sample.
// When set, VoiceName overrides the tone-to-voice mapping for speech generation.
type VoiceProfile struct {
	VoiceName string `json:"voice_name"`
	Analysis  string `json:"analysis"`
}
