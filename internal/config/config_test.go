package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, 8, cfg.Telegram.MaxConcurrency)
	assert.EqualValues(t, 20<<20, cfg.Telegram.MaxVoiceBytes)
	assert.Equal(t, "whisper-1", cfg.OpenAI.TranscriptionModel)
	assert.Equal(t, 0.7, cfg.OpenAI.Temperature)
	assert.Equal(t, "21m00Tcm4TlvDq8ikWAM", cfg.ElevenLabs.VoiceID)
	assert.Equal(t, 0.5, cfg.ElevenLabs.Stability)
	assert.Equal(t, 0.8, cfg.ElevenLabs.SimilarityBoost)
	assert.Equal(t, "he", cfg.Relay.Language)
	assert.Equal(t, 30*time.Second, cfg.Relay.AdapterTimeout)
	assert.Empty(t, cfg.ElevenLabs.APIKey)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ELEVENLABS_API_KEY", " xi-key ")
	t.Setenv("ELEVENLABS_TRANSPORT", "WS")
	t.Setenv("RELAY_ADAPTER_TIMEOUT", "5s")
	t.Setenv("TELEGRAM_MODE", "webhook")
	t.Setenv("TELEGRAM_WEBHOOK_URL", "https://bot.example/telegram/webhook")
	t.Setenv("MINI_APP_URL", "https://dict.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "xi-key", cfg.ElevenLabs.APIKey)
	assert.Equal(t, "ws", cfg.ElevenLabs.Transport)
	assert.Equal(t, 5*time.Second, cfg.Relay.AdapterTimeout)
	assert.Equal(t, ModeWebhook, cfg.Telegram.Mode)
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_TEMPERATURE", "0")
	t.Setenv("ELEVENLABS_STABILITY", "0")
	t.Setenv("ELEVENLABS_SIMILARITY_BOOST", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.OpenAI.Temperature)
	assert.Zero(t, cfg.ElevenLabs.Stability)
	assert.Zero(t, cfg.ElevenLabs.SimilarityBoost)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"RELAY_ADAPTER_TIMEOUT":    "soon",
		"OPENAI_TEMPERATURE":       "warm",
		"TELEGRAM_MAX_CONCURRENCY": "many",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	setRequired(t)
	base, err := Load()
	require.NoError(t, err)

	c := base
	c.Telegram.Mode = ModeWebhook
	assert.ErrorContains(t, c.Validate(), "TELEGRAM_WEBHOOK_URL")

	c = base
	c.ElevenLabs.Stability = 1.5
	assert.ErrorContains(t, c.Validate(), "ELEVENLABS_STABILITY")

	c = base
	c.MiniAppURL = "not a url"
	assert.ErrorContains(t, c.Validate(), "MINI_APP_URL")

	c = base
	c.Telegram.Mode = "push"
	assert.ErrorContains(t, c.Validate(), "TELEGRAM_MODE")
}
