// Package bot routes Telegram updates to commands, the help callback and
// the voice pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"

	"ulpan/internal/metrics"
	"ulpan/internal/relay"
	"ulpan/pkg/telegram"
)

type Gateway interface {
	SendMessage(ctx context.Context, m telegram.TextMessage) error
	EditMessageText(ctx context.Context, m telegram.EditMessageText) error
	AnswerCallbackQuery(ctx context.Context, id, text string) error
}

type VoiceHandler interface {
	HandleVoice(ctx context.Context, ev relay.VoiceEvent) (relay.Result, error)
}

type Replier interface {
	Deliver(ctx context.Context, chatID int64, text, caption string) (relay.DeliveryKind, error)
}

const DefaultMaxConcurrency = 8

type Config struct {
	Gateway        Gateway
	Voice          VoiceHandler
	Replier        Replier
	Keyboard       relay.Keyboard
	MaxConcurrency int
	Metrics        *metrics.Metrics
	Logger         *log.Logger
}

type Bot struct {
	gw       Gateway
	voice    VoiceHandler
	replier  Replier
	keyboard relay.Keyboard
	sem      chan struct{}
	wg       sync.WaitGroup
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func New(cfg Config) *Bot {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Bot{
		gw:       cfg.Gateway,
		voice:    cfg.Voice,
		replier:  cfg.Replier,
		keyboard: cfg.Keyboard,
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "bot"),
	}
}

// Handle processes u on its own goroutine. It blocks while the concurrency
// limit is reached and drops the update if ctx ends first.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		b.logger.Warn("Dropping update on shutdown", "update_id", u.UpdateID)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()
		if err := b.Dispatch(ctx, u); err != nil {
			b.logger.Error("Update failed", "update_id", u.UpdateID, "err", err)
		}
	}()
}

// Wait blocks until every handler started by Handle has returned.
func (b *Bot) Wait() { b.wg.Wait() }

// Dispatch handles u on the calling goroutine.
func (b *Bot) Dispatch(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		b.count("callback")
		return b.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Voice != nil:
		b.count("voice")
		m := u.Message
		_, err := b.voice.HandleVoice(ctx, relay.VoiceEvent{
			ChatID:   m.ChatID(),
			FileID:   m.Voice.FileID,
			Duration: m.Voice.Duration,
		})
		return err
	case u.Message != nil && u.Message.Text != "":
		switch command(u.Message.Text) {
		case "start":
			b.count("start")
			return b.onStart(ctx, u.Message.ChatID())
		case "help":
			b.count("help")
			return b.onHelp(ctx, u.Message.ChatID())
		}
	}
	b.count("ignored")
	b.logger.Debug("Ignoring update", "update_id", u.UpdateID)
	return nil
}

func (b *Bot) onStart(ctx context.Context, chatID int64) error {
	if err := b.gw.SendMessage(ctx, telegram.TextMessage{
		ChatID:      chatID,
		Text:        relay.Welcome,
		ReplyMarkup: b.keyboard.For(relay.Greeting),
	}); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if _, err := b.replier.Deliver(ctx, chatID, relay.Greeting, relay.GreetingCaption); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	return nil
}

func (b *Bot) onHelp(ctx context.Context, chatID int64) error {
	return b.gw.SendMessage(ctx, telegram.TextMessage{
		ChatID:      chatID,
		Text:        relay.HelpText,
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: b.keyboard.For(relay.HelpText),
	})
}

// onCallback answers the help button by replacing the message with the
// help text. Repeated presses produce the same result.
func (b *Bot) onCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if err := b.gw.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		b.logger.Warn("Failed to answer callback", "id", q.ID, "err", err)
	}
	if q.Data != relay.HelpCallback || q.Message == nil {
		return nil
	}

	chatID := q.Message.ChatID()
	err := b.gw.EditMessageText(ctx, telegram.EditMessageText{
		ChatID:      chatID,
		MessageID:   q.Message.MessageID,
		Text:        relay.HelpText,
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: b.keyboard.For(relay.HelpText),
	})
	switch {
	case err == nil, isNotModified(err):
		return nil
	case isNoText(err):
		// voice replies carry a caption, not text
		return b.onHelp(ctx, chatID)
	default:
		return fmt.Errorf("edit help: %w", err)
	}
}

func (b *Bot) count(kind string) {
	if b.metrics != nil {
		b.metrics.Updates.WithLabelValues(kind).Inc()
	}
}

// command returns the bot command in text without slash, mention or
// arguments, or "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func isNotModified(err error) bool {
	var apiErr *telegram.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

func isNoText(err error) bool {
	var apiErr *telegram.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "no text in the message")
}
