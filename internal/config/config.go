// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type Config struct {
	Telegram   Telegram
	OpenAI     OpenAI
	ElevenLabs ElevenLabs
	Relay      Relay

	MiniAppURL       string
	HTTPAddr         string
	MetricsNamespace string
}

type Telegram struct {
	Token          string
	BaseURL        string
	Mode           string
	WebhookURL     string
	WebhookSecret  string
	PollTimeout    time.Duration
	MaxConcurrency int
	MaxVoiceBytes  int64
}

type OpenAI struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	Temperature        float64
}

// ElevenLabs is optional. An empty APIKey disables speech replies.
type ElevenLabs struct {
	APIKey          string
	BaseURL         string
	WSBaseURL       string
	VoiceID         string
	ModelID         string
	OutputFormat    string
	Transport       string
	Stability       float64
	SimilarityBoost float64
}

type Relay struct {
	Language       string
	AdapterTimeout time.Duration
	StagingDir     string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		Telegram: Telegram{
			Token:         stringsTrimSpace("TELEGRAM_BOT_TOKEN"),
			BaseURL:       envOrDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			Mode:          strings.ToLower(envOrDefault("TELEGRAM_MODE", ModePolling)),
			WebhookURL:    stringsTrimSpace("TELEGRAM_WEBHOOK_URL"),
			WebhookSecret: stringsTrimSpace("TELEGRAM_WEBHOOK_SECRET"),
		},
		OpenAI: OpenAI{
			APIKey:             stringsTrimSpace("OPENAI_API_KEY"),
			BaseURL:            stringsTrimSpace("OPENAI_BASE_URL"),
			ChatModel:          envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			TranscriptionModel: envOrDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
		},
		ElevenLabs: ElevenLabs{
			APIKey:       stringsTrimSpace("ELEVENLABS_API_KEY"),
			BaseURL:      envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
			WSBaseURL:    envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
			VoiceID:      envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			ModelID:      envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			OutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "mp3_44100_128"),
			Transport:    strings.ToLower(envOrDefault("ELEVENLABS_TRANSPORT", "rest")),
		},
		Relay: Relay{
			Language:   envOrDefault("RELAY_LANGUAGE", "he"),
			StagingDir: stringsTrimSpace("RELAY_STAGING_DIR"),
		},
		MiniAppURL:       stringsTrimSpace("MINI_APP_URL"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("METRICS_NAMESPACE", "ulpan"),
	}

	var err error
	if cfg.Telegram.PollTimeout, err = durationFromEnv("TELEGRAM_POLL_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Telegram.MaxConcurrency, err = intFromEnv("TELEGRAM_MAX_CONCURRENCY", 8); err != nil {
		return Config{}, err
	}
	maxVoice, err := intFromEnv("TELEGRAM_MAX_VOICE_BYTES", 20<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.Telegram.MaxVoiceBytes = int64(maxVoice)
	if cfg.OpenAI.Temperature, err = floatFromEnv("OPENAI_TEMPERATURE", 0.7); err != nil {
		return Config{}, err
	}
	if cfg.ElevenLabs.Stability, err = floatFromEnv("ELEVENLABS_STABILITY", 0.5); err != nil {
		return Config{}, err
	}
	if cfg.ElevenLabs.SimilarityBoost, err = floatFromEnv("ELEVENLABS_SIMILARITY_BOOST", 0.8); err != nil {
		return Config{}, err
	}
	if cfg.Relay.AdapterTimeout, err = durationFromEnv("RELAY_ADAPTER_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN not set"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY not set"))
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, errors.New("TELEGRAM_WEBHOOK_URL is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEGRAM_MODE must be %q or %q", ModePolling, ModeWebhook))
	}
	if c.Telegram.PollTimeout < time.Second {
		errs = append(errs, errors.New("TELEGRAM_POLL_TIMEOUT must be at least 1s"))
	}
	if c.Telegram.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("TELEGRAM_MAX_CONCURRENCY must be positive"))
	}
	if c.Telegram.MaxVoiceBytes <= 0 {
		errs = append(errs, errors.New("TELEGRAM_MAX_VOICE_BYTES must be positive"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, errors.New("OPENAI_TEMPERATURE must be within [0, 2]"))
	}
	if c.ElevenLabs.Transport != "rest" && c.ElevenLabs.Transport != "ws" {
		errs = append(errs, errors.New(`ELEVENLABS_TRANSPORT must be "rest" or "ws"`))
	}
	for key, v := range map[string]float64{
		"ELEVENLABS_STABILITY":        c.ElevenLabs.Stability,
		"ELEVENLABS_SIMILARITY_BOOST": c.ElevenLabs.SimilarityBoost,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1]", key))
		}
	}
	if c.Relay.AdapterTimeout <= 0 {
		errs = append(errs, errors.New("RELAY_ADAPTER_TIMEOUT must be positive"))
	}
	if c.MiniAppURL != "" {
		if u, err := url.Parse(c.MiniAppURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, errors.New("MINI_APP_URL must be an absolute URL"))
		}
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
