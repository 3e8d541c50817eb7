// Package stt turns staged voice clips into text with the OpenAI
// transcription endpoint.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
)

const op = "stt.openai"

type Options struct {
	Model   string        // defaults to whisper-1
	Timeout time.Duration // per call, defaults to 30s
	Logger  *slog.Logger
}

type Transcriber struct {
	client  openai.Client
	model   openai.AudioModel
	timeout time.Duration
	logger  *slog.Logger
}

func NewTranscriber(client openai.Client, opt Options) *Transcriber {
	model := openai.AudioModelWhisper1
	if opt.Model != "" {
		model = openai.AudioModel(opt.Model)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Transcriber{
		client:  client,
		model:   model,
		timeout: opt.Timeout,
		logger:  opt.Logger.With("component", op),
	}
}

// Transcribe makes a single attempt at recognizing the clip in language.
// Every failure, including an empty result, is a fault.Transcription.
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if clip.Path == "" {
		return "", fault.Newf(fault.Transcription, op, "no audio")
	}
	f, err := os.Open(clip.Path)
	if err != nil {
		return "", fault.New(fault.Transcription, op, fmt.Errorf("open clip: %w", err))
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		return "", fault.Newf(fault.Transcription, op, "empty audio")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	start := time.Now()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: t.model,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params, option.WithMaxRetries(0))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return "", fault.New(fault.Transcription, op, err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fault.Newf(fault.Transcription, op, "nothing recognized")
	}
	t.logger.Debug("transcribed", "chars", len(text), "latency", time.Since(start))
	return text, nil
}
