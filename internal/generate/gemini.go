package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"scriptcast/internal/script"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// toneVoices maps each tone to a prebuilt speech-engine voice. A stored
// VoiceProfile override takes precedence over this table.
var toneVoices = map[script.Tone]string{
	script.ToneUrgent:        "Fenrir",
	script.ToneCalm:          "Callirrhoe",
	script.TonePersonal:      "Aoede",
	script.ToneMotivational:  "Puck",
	script.ToneHumorous:      "Laomedeia",
	script.ToneAuthoritative: "Kore",
	script.ToneStorytelling:  "Charon",
}

// toneDelivery prefixes the spoken text with a delivery instruction so the
// speech engine matches the script's tone.
var toneDelivery = map[script.Tone]string{
	script.ToneUrgent:        "Say with urgent, breathless energy",
	script.ToneCalm:          "Say slowly and soothingly",
	script.TonePersonal:      "Say warmly, like talking to a close friend",
	script.ToneMotivational:  "Say with rising, inspiring energy",
	script.ToneHumorous:      "Say playfully, with a smile",
	script.ToneAuthoritative: "Say with calm, firm authority",
	script.ToneStorytelling:  "Narrate with an engaging storytelling cadence",
}

// GeminiConfig configures the Gemini-backed client.
type GeminiConfig struct {
	APIKey      string
	ScriptModel string // default gemini-2.5-flash
	TTSModel    string // default gemini-2.5-flash-preview-tts
	ImageModel  string // default gemini-2.0-flash-preview-image-generation
	BaseURL     string // REST endpoint override, used by tests
	HTTPClient  *http.Client
}

// Gemini implements ScriptGenerator, SpeechGenerator, ImageGenerator, and
// VoiceAnalyzer against the Gemini API. Script generation, speech, and image
// use the REST endpoint directly because the genai SDK does not expose the
// search-grounding tool, response modalities, or speech config; voice
// analysis goes through the SDK for its multimodal blob input.
type Gemini struct {
	client      *genai.Client
	httpc       *http.Client
	apiKey      string
	baseURL     string
	scriptModel string
	ttsModel    string
	imageModel  string
}

// NewGemini opens a Gemini client with the given config.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 120 * time.Second}
	}
	g := &Gemini{
		client:      client,
		httpc:       httpc,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		scriptModel: cfg.ScriptModel,
		ttsModel:    cfg.TTSModel,
		imageModel:  cfg.ImageModel,
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.scriptModel == "" {
		g.scriptModel = "gemini-2.5-flash"
	}
	if g.ttsModel == "" {
		g.ttsModel = "gemini-2.5-flash-preview-tts"
	}
	if g.imageModel == "" {
		g.imageModel = "gemini-2.0-flash-preview-image-generation"
	}
	return g, nil
}

// Close releases the underlying SDK client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// scriptSchema constrains script generation to a JSON array of segment
// objects. Expressed in the REST schema format because the request goes over
// the REST endpoint.
var scriptSchema = map[string]any{
	"type": "ARRAY",
	"items": map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"start_time": map[string]any{"type": "NUMBER", "description": "segment start in seconds"},
			"end_time":   map[string]any{"type": "NUMBER", "description": "segment end in seconds"},
			"label":      map[string]any{"type": "STRING", "description": "HOOK, PROBLEM, SOLUTION, DEMONSTRATION, or CTA"},
			"text":       map[string]any{"type": "STRING", "description": "the spoken line"},
			"visual":     map[string]any{"type": "STRING", "description": "what is shown on screen"},
		},
		"required": []string{"start_time", "end_time", "label", "text", "visual"},
	},
}

// GenerateScript asks the script model for a labeled, time-boxed segment
// list. With UseSearch the google_search_retrieval tool is attached and the
// JSON is parsed leniently from the text response, since the API does not
// combine search grounding with a response schema.
func (g *Gemini) GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error) {
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{{"text": scriptPrompt(req)}},
		}},
	}
	if req.UseSearch {
		body["tools"] = []map[string]any{{"google_search_retrieval": map[string]any{}}}
	} else {
		body["generationConfig"] = map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   scriptSchema,
		}
	}

	resp, err := g.post(ctx, g.scriptModel, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: script response has no candidates", ErrGeneration)
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}

	var segments []script.Segment
	if err := json.Unmarshal([]byte(stripFences(text.String())), &segments); err != nil {
		return nil, fmt.Errorf("%w: script response is not valid JSON: %v", ErrGeneration, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: script response has no segments", ErrGeneration)
	}
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}
	}

	var sources []script.Source
	if cand.CitationMetadata != nil {
		for _, cs := range cand.CitationMetadata.CitationSources {
			if cs.URI != "" {
				sources = append(sources, script.Source{URI: cs.URI})
			}
		}
	}

	return &ScriptResult{Segments: segments, Sources: sources}, nil
}

func scriptPrompt(req ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d-second short-form video script about %q in a %s tone. ",
		req.DurationSeconds, req.Topic, req.Tone)
	b.WriteString("Split it into consecutive segments labeled HOOK, PROBLEM, SOLUTION, DEMONSTRATION, and CTA as appropriate. ")
	b.WriteString("Each segment needs start_time and end_time in seconds, the spoken text, and a visual description. ")
	b.WriteString("Segments must cover the full duration with no gaps.")
	if req.UseSearch {
		b.WriteString(" Ground factual claims in current search results.")
		b.WriteString(" Respond with only a JSON array of segment objects with keys start_time, end_time, label, text, visual.")
	}
	return b.String()
}

// stripFences removes a ```json ... ``` wrapper the model sometimes adds
// when no response schema is enforced.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// restPart and friends model the REST generateContent response shape.
type restPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData,omitempty"`
}

type restResponse struct {
	Candidates []struct {
		Content struct {
			Parts []restPart `json:"parts"`
		} `json:"content"`
		CitationMetadata *struct {
			CitationSources []struct {
				URI string `json:"uri"`
			} `json:"citationSources"`
		} `json:"citationMetadata"`
	} `json:"candidates"`
}

// GenerateSpeech synthesizes text into base64 raw 16-bit PCM at 24 kHz mono.
// The inline data arrives base64-encoded and is passed through untouched, so
// decoding happens exactly once, in the PCM decoder.
func (g *Gemini) GenerateSpeech(ctx context.Context, text string, tone script.Tone, voiceOverride string) (string, error) {
	voice := voiceOverride
	if voice == "" {
		voice = toneVoices[tone.Normalize()]
	}
	delivery := toneDelivery[tone.Normalize()]

	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{{"text": delivery + ": " + text}},
		}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{"voiceName": voice},
				},
			},
		},
	}

	resp, err := g.post(ctx, g.ttsModel, body)
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				if part.InlineData.Data == "" {
					return "", fmt.Errorf("%w: speech response has empty audio", ErrGeneration)
				}
				return part.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("%w: speech response has no audio part", ErrGeneration)
}

// GenerateImage renders a visual description and returns it as a data URI.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{{"text": prompt}},
		}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}

	resp, err := g.post(ctx, g.imageModel, body)
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				return "data:" + part.InlineData.MIMEType + ";base64," + part.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("%w: image response has no image part", ErrGeneration)
}

var voiceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"voice_name": {Type: genai.TypeString, Description: "closest prebuilt voice name"},
		"analysis":   {Type: genai.TypeString, Description: "one-paragraph description of the voice style"},
	},
	Required: []string{"voice_name", "analysis"},
}

// AnalyzeVoice labels a voice sample with the closest prebuilt voice and a
// style description. The result overrides the tone-to-voice mapping.
func (g *Gemini) AnalyzeVoice(ctx context.Context, base64Audio string) (*script.VoiceProfile, error) {
	data, err := base64.StdEncoding.DecodeString(base64Audio)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: voice sample is not valid base64", ErrGeneration)
	}

	model := g.client.GenerativeModel(g.scriptModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = voiceSchema

	prompt := "Listen to this voice sample. Pick the closest prebuilt voice from: " +
		strings.Join(voiceNames(), ", ") +
		". Describe the speaker's pacing, pitch, and energy in one paragraph."
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: "audio/wav", Data: data},
		genai.Text(prompt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: voice analysis request: %v", ErrGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: voice analysis has no candidates", ErrGeneration)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	var profile script.VoiceProfile
	if err := json.Unmarshal([]byte(stripFences(text.String())), &profile); err != nil {
		return nil, fmt.Errorf("%w: voice analysis is not valid JSON: %v", ErrGeneration, err)
	}
	if profile.VoiceName == "" {
		return nil, fmt.Errorf("%w: voice analysis has no voice name", ErrGeneration)
	}
	return &profile, nil
}

func voiceNames() []string {
	names := make([]string, 0, len(toneVoices))
	for _, v := range toneVoices {
		names = append(names, v)
	}
	return names
}

// post sends a REST generateContent request and decodes the response.
func (g *Gemini) post(ctx context.Context, model string, body any) (*restResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGeneration, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrGeneration, model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out restResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	return &out, nil
}
