package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
)

const elevenLabsWSBaseURL = "wss://api.elevenlabs.io"

// ElevenLabsStream synthesizes over the stream-input websocket and
// assembles the audio chunks into a single payload.
type ElevenLabsStream struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewElevenLabsStream(cfg Config) *ElevenLabsStream {
	cfg.applyDefaults()
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = elevenLabsWSBaseURL
	}
	cfg.WSBaseURL = strings.TrimRight(cfg.WSBaseURL, "/")

	dialer := *websocket.DefaultDialer
	if t, ok := cfg.HTTPClient.Transport.(*http.Transport); ok && t.DialContext != nil {
		dialer.NetDialContext = t.DialContext
	}
	return &ElevenLabsStream{
		cfg:    cfg,
		dialer: &dialer,
		logger: cfg.Logger.With("component", "tts.elevenlabs_ws"),
	}
}

type streamChunk struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

func (s *ElevenLabsStream) Synthesize(ctx context.Context, text string) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Payload{}, fault.Newf(fault.Synthesis, "tts.elevenlabs_ws", "empty text")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.stream(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs_ws", err)
	}
	return audio.Payload{Data: data, Format: formatOf(s.cfg.OutputFormat)}, nil
}

func (s *ElevenLabsStream) stream(ctx context.Context, text string) ([]byte, error) {
	u, err := url.Parse(s.cfg.WSBaseURL + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	msgs := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Settings.Stability,
				"similarity_boost": s.cfg.Settings.SimilarityBoost,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			return nil, fmt.Errorf("write: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && buf.Len() > 0 {
				break
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		var chunk streamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("%s: %s", chunk.MessageType, chunk.Error)
		}
		if chunk.Audio != "" {
			b, err := base64.StdEncoding.DecodeString(chunk.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode chunk: %w", err)
			}
			buf.Write(b)
		}
		if chunk.IsFinal {
			break
		}
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty audio")
	}
	s.logger.Debug("streamed", "chars", len(text), "bytes", buf.Len())
	return buf.Bytes(), nil
}
