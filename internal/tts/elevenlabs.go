package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// ElevenLabs synthesizes with one REST call per reply.
type ElevenLabs struct {
	cfg    Config
	logger *slog.Logger
}

func NewElevenLabs(cfg Config) *ElevenLabs {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ElevenLabs{cfg: cfg, logger: cfg.Logger.With("component", "tts.elevenlabs")}
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Payload{}, fault.Newf(fault.Synthesis, "tts.elevenlabs", "empty text")
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	start := time.Now()

	body, err := json.Marshal(e.payload(text))
	if err != nil {
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs", err)
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		e.cfg.BaseURL, url.PathEscape(e.cfg.VoiceID), url.QueryEscape(e.cfg.OutputFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs", parseError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Payload{}, fault.New(fault.Synthesis, "tts.elevenlabs", fmt.Errorf("read response: %w", err))
	}
	if len(data) == 0 {
		return audio.Payload{}, fault.Newf(fault.Synthesis, "tts.elevenlabs", "empty audio")
	}

	e.logger.Debug("synthesized", "chars", len(text), "bytes", len(data), "latency", time.Since(start))
	return audio.Payload{Data: data, Format: formatOf(e.cfg.OutputFormat)}, nil
}

func (e *ElevenLabs) payload(text string) map[string]any {
	p := map[string]any{
		"text": text,
		"voice_settings": map[string]any{
			"stability":        e.cfg.Settings.Stability,
			"similarity_boost": e.cfg.Settings.SimilarityBoost,
		},
	}
	if e.cfg.ModelID != "" {
		p["model_id"] = e.cfg.ModelID
	}
	return p
}

func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var body struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Detail.Message != "" {
		msg = body.Detail.Message
		if body.Detail.Status != "" {
			msg = body.Detail.Status + ": " + msg
		}
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, msg)
}
