// Package narration turns story text into speech with the ElevenLabs API.
package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("narration is not configured")

// APIError is a non-2xx answer from the speech service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech service returned %d: %s", e.StatusCode, e.Body)
}

// Voice is a voice offered by the speech service.
type Voice struct {
	ID          string `json:"voice_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// RecommendedVoice is a curated storytelling voice.
type RecommendedVoice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var recommended = []RecommendedVoice{
	{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Description: "Warm, engaging storytelling voice for folklore"},
	{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Description: "Deep, authoritative voice for epic tales"},
	{ID: "VR6AewLTigWG4xSOukaG", Name: "Arnold", Description: "Crisp, clear narration for educational content"},
	{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Description: "Versatile, natural voice for all story types"},
	{ID: "Xb7hH8MSUJpSbSDYk0k2", Name: "Alice", Description: "Gentle, soothing voice for children's stories"},
}

// Settings are the voice parameters sent with a synthesis request.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

var (
	DefaultSettings = Settings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0, UseSpeakerBoost: true}
	StorySettings   = Settings{Stability: 0.6, SimilarityBoost: 0.8, Style: 0.2, UseSpeakerBoost: true}
)

// Request describes one synthesis. Empty VoiceID and Model use the client defaults.
type Request struct {
	Text     string
	VoiceID  string
	Model    string
	Settings Settings
}

// Config holds client settings.
type Config struct {
	APIKey   string
	VoiceID  string
	Model    string
	BaseURL  string
	RetryMax int
	Timeout  time.Duration
}

// Client talks to the speech service.
type Client struct {
	cfg   Config
	http  *retryablehttp.Client
	voice string
}

// NewClient creates a new Client. A client without an API key is valid but
// reports Configured() == false and refuses every call.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = recommended[0].ID
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_multilingual_v2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = slog.Default()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, http: rc, voice: cfg.VoiceID}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// DefaultVoice returns the voice used when a request names none.
func (c *Client) DefaultVoice() string { return c.voice }

// Model returns the synthesis model.
func (c *Client) Model() string { return c.cfg.Model }

// RecommendedVoices returns the curated storytelling voices.
func (c *Client) RecommendedVoices() []RecommendedVoice {
	out := make([]RecommendedVoice, len(recommended))
	copy(out, recommended)
	return out
}

// ListVoices fetches the voices available to the account. Transient
// failures are retried.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("building voices request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching voices: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding voices: %w", err)
	}
	if body.Voices == nil {
		body.Voices = []Voice{}
	}
	return body.Voices, nil
}

// Generate synthesizes r.Text and returns MP3 audio. It is attempted once.
func (c *Client) Generate(ctx context.Context, r Request) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(r.Text) == "" {
		return nil, errors.New("narration text is empty")
	}

	voice := r.VoiceID
	if voice == "" {
		voice = c.voice
	}
	model := r.Model
	if model == "" {
		model = c.cfg.Model
	}

	payload, err := json.Marshal(map[string]any{
		"text":           r.Text,
		"model_id":       model,
		"voice_settings": r.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/text-to-speech/"+voice, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting synthesis: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	return audio, nil
}

// GenerateStory prepares text for speech and synthesizes it with settings
// tuned for storytelling.
func (c *Client) GenerateStory(ctx context.Context, text, voiceID string) ([]byte, error) {
	return c.Generate(ctx, Request{
		Text:     PrepareText(text),
		VoiceID:  voiceID,
		Settings: StorySettings,
	})
}

var (
	sentenceGap  = regexp.MustCompile(`\.\s+`)
	exclaimGap   = regexp.MustCompile(`!\s+`)
	questionGap  = regexp.MustCompile(`\?\s+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// PrepareText normalizes pacing for speech: one space after sentence ends,
// paragraph breaks become a long pause, runs of whitespace collapse.
func PrepareText(text string) string {
	text = sentenceGap.ReplaceAllString(text, ". ")
	text = exclaimGap.ReplaceAllString(text, "! ")
	text = questionGap.ReplaceAllString(text, "? ")
	text = strings.ReplaceAll(text, "\n\n", "... ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
