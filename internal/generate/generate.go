// Package generate is the boundary to the hosted generative AI provider:
// structured script generation, speech audio, images, and voice-sample
// analysis. The playback core consumes these operations as opaque calls.
package generate

import (
	"context"
	"errors"

	"scriptcast/internal/script"
)

// ErrGeneration wraps every external generation failure: transport errors,
// rejected requests, and responses missing the expected part. Callers revert
// cleanly and surface it; nothing retries automatically.
var ErrGeneration = errors.New("generation failed")

// ScriptRequest describes one script generation call.
type ScriptRequest struct {
	Topic           string
	Tone            script.Tone
	DurationSeconds int
	UseSearch       bool
}

// ScriptResult is the structured script returned by the provider.
type ScriptResult struct {
	Segments []script.Segment
	Sources  []script.Source
}

// ScriptGenerator produces a structured script for a topic.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error)
}

// SpeechGenerator synthesizes segment text into base64-encoded raw 16-bit
// PCM at 24 kHz mono. A non-empty voiceOverride replaces the tone-to-voice
// mapping.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, text string, tone script.Tone, voiceOverride string) (string, error)
}

// ImageGenerator renders a visual description into a data URI.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// VoiceAnalyzer labels a base64 voice sample with a provider voice name and
// a free-text description.
type VoiceAnalyzer interface {
	AnalyzeVoice(ctx context.Context, base64Audio string) (*script.VoiceProfile, error)
}
