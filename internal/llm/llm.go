// Package llm produces replies from a chat model under a fixed persona.
package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ulpan/internal/fault"
)

const op = "llm.openai"

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

// TeacherPersona keeps replies in simple Hebrew.
const TeacherPersona = "אתה מורה לעברית. ענה בעברית בצורה ברורה ופשוטה."

type Options struct {
	Model   string
	Persona string
	// Temperature is sent as given, zero included. Nil means DefaultTemperature.
	Temperature *float64
	Timeout     time.Duration
	Logger      *log.Logger
}

type Completer struct {
	client      openai.Client
	model       openai.ChatModel
	persona     string
	temperature float64
	timeout     time.Duration
	logger      *log.Logger
}

func NewCompleter(client openai.Client, opt Options) *Completer {
	if opt.Model == "" {
		opt.Model = DefaultModel
	}
	if opt.Persona == "" {
		opt.Persona = TeacherPersona
	}
	temperature := DefaultTemperature
	if opt.Temperature != nil {
		temperature = *opt.Temperature
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.Logger == nil {
		opt.Logger = log.Default()
	}
	return &Completer{
		client:      client,
		model:       openai.ChatModel(opt.Model),
		persona:     opt.Persona,
		temperature: temperature,
		timeout:     opt.Timeout,
		logger:      opt.Logger.With("component", op),
	}
}

// Complete sends prompt verbatim after the persona and returns the first
// choice. Any failure is a fault.Completion.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.persona),
			openai.UserMessage(prompt),
		},
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
	}, option.WithMaxRetries(0))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return "", fault.New(fault.Completion, op, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fault.Newf(fault.Completion, op, "no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fault.Newf(fault.Completion, op, "empty message content")
	}

	c.logger.Debug("completed", "model", c.model, "chars", len(content), "latency", time.Since(start))
	return content, nil
}
