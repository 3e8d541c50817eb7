package tts

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
)

// Synthesizer turns reply text into speech. Implementations return
// fault.SynthesisUnavailable when synthesis is not configured and
// fault.Synthesis for every other failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Payload, error)
}

const (
	DefaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"

	TransportREST = "rest"
	TransportWS   = "ws"
)

type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
}

var DefaultSettings = VoiceSettings{Stability: 0.5, SimilarityBoost: 0.8}

type Config struct {
	APIKey       string
	BaseURL      string
	WSBaseURL    string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Transport    string
	// Settings are sent as given after clamping to [0,1]. Nil means
	// DefaultSettings.
	Settings   *VoiceSettings
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.VoiceID == "" {
		c.VoiceID = DefaultVoiceID
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutputFormat
	}
	s := DefaultSettings
	if c.Settings != nil {
		s = *c.Settings
	}
	s.Stability = clamp01(s.Stability)
	s.SimilarityBoost = clamp01(s.SimilarityBoost)
	c.Settings = &s
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New picks the synthesizer for cfg. Without an API key synthesis is
// treated as absent.
func New(cfg Config) Synthesizer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Disabled{}
	}
	if strings.EqualFold(cfg.Transport, TransportWS) {
		return NewElevenLabsStream(cfg)
	}
	return NewElevenLabs(cfg)
}

// Available reports whether s can ever produce audio.
func Available(s Synthesizer) bool {
	_, off := s.(Disabled)
	return s != nil && !off
}

type Disabled struct{}

func (Disabled) Synthesize(context.Context, string) (audio.Payload, error) {
	return audio.Payload{}, fault.Newf(fault.SynthesisUnavailable, "tts", "no synthesis credential configured")
}

func formatOf(outputFormat string) audio.Format {
	if strings.HasPrefix(outputFormat, "opus") {
		return audio.OggOpus
	}
	return audio.MP3
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
