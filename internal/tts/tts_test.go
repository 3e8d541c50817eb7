package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
)

func TestNewWithoutKeyIsDisabled(t *testing.T) {
	s := New(Config{})
	assert.False(t, Available(s))

	_, err := s.Synthesize(context.Background(), "שלום")
	assert.ErrorIs(t, err, fault.ErrSynthesisUnavailable)
	assert.Equal(t, fault.SynthesisUnavailable, fault.KindOf(err))
}

func TestNewPicksTransport(t *testing.T) {
	assert.IsType(t, &ElevenLabs{}, New(Config{APIKey: "k"}))
	assert.IsType(t, &ElevenLabsStream{}, New(Config{APIKey: "k", Transport: "ws"}))
	assert.True(t, Available(New(Config{APIKey: "k"})))
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+DefaultVoiceID, r.URL.Path)
		assert.Equal(t, DefaultOutputFormat, r.URL.Query().Get("output_format"))
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))

		var body struct {
			Text          string `json:"text"`
			ModelID       string `json:"model_id"`
			VoiceSettings struct {
				Stability       float64 `json:"stability"`
				SimilarityBoost float64 `json:"similarity_boost"`
			} `json:"voice_settings"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "השעה היא שלוש", body.Text)
		assert.Equal(t, DefaultModelID, body.ModelID)
		assert.Equal(t, 0.5, body.VoiceSettings.Stability)
		assert.Equal(t, 0.8, body.VoiceSettings.SimilarityBoost)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3-mp3-bytes")
	}))
	defer srv.Close()

	s := NewElevenLabs(Config{APIKey: "secret", BaseURL: srv.URL, ModelID: DefaultModelID})
	p, err := s.Synthesize(context.Background(), "השעה היא שלוש")
	require.NoError(t, err)
	assert.Equal(t, "ID3-mp3-bytes", string(p.Data))
	assert.Equal(t, audio.MP3, p.Format)
}

func TestElevenLabsErrorIsSynthesisKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`)
	}))
	defer srv.Close()

	s := NewElevenLabs(Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := s.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrSynthesis)
	assert.Contains(t, err.Error(), "http 401: invalid_api_key: Invalid API key")
}

func TestElevenLabsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := NewElevenLabs(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := s.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, fault.Synthesis, fault.KindOf(err))

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Timeout)
}

func TestElevenLabsStreamAssemblesChunks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1/stream-input", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("xi-api-key"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var texts []string
		for i := 0; i < 3; i++ {
			var m map[string]any
			if !assert.NoError(t, conn.ReadJSON(&m)) {
				return
			}
			texts = append(texts, m["text"].(string))
		}
		assert.Equal(t, []string{" ", "שלום ", ""}, texts)

		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("ab"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("cd")), "isFinal": true})
	}))
	defer srv.Close()

	s := NewElevenLabsStream(Config{
		APIKey:    "k",
		VoiceID:   "voice-1",
		WSBaseURL: "ws://" + strings.TrimPrefix(srv.URL, "http://"),
	})
	p, err := s.Synthesize(context.Background(), "שלום")
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p.Data))
}

func TestElevenLabsStreamServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var m map[string]any
		_ = conn.ReadJSON(&m)
		_ = conn.WriteJSON(map[string]any{"message_type": "quota_exceeded", "error": "out of credits"})
	}))
	defer srv.Close()

	s := NewElevenLabsStream(Config{APIKey: "k", WSBaseURL: "ws://" + strings.TrimPrefix(srv.URL, "http://")})
	_, err := s.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrSynthesis)
	assert.Contains(t, err.Error(), "out of credits")
}

func TestApplyDefaultsClampsSettings(t *testing.T) {
	in := &VoiceSettings{Stability: 1.7, SimilarityBoost: -1}
	cfg := Config{Settings: in}
	cfg.applyDefaults()
	assert.Equal(t, 1.0, cfg.Settings.Stability)
	assert.Equal(t, 0.0, cfg.Settings.SimilarityBoost)
	assert.Equal(t, 1.7, in.Stability, "caller settings are not modified")
	assert.Equal(t, DefaultVoiceID, cfg.VoiceID)
}

func TestApplyDefaultsKeepsExplicitZeroSettings(t *testing.T) {
	cfg := Config{Settings: &VoiceSettings{}}
	cfg.applyDefaults()
	assert.Equal(t, VoiceSettings{}, *cfg.Settings)

	cfg = Config{}
	cfg.applyDefaults()
	assert.Equal(t, DefaultSettings, *cfg.Settings)
}
