// Package notify keeps a chat presence indicator alive while a reply is
// being produced.
package notify

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

// Telegram clears a chat action after about five seconds.
const DefaultInterval = 4 * time.Second

type ActionSender interface {
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Presence sends action to chatID right away and then every interval until
// the returned stop func is called or ctx ends. Sending happens on its own
// goroutine and each call is bounded by interval, so a slow or failing
// gateway never holds up the caller. Failures are only logged. stop is
// idempotent and does not wait for a send in flight.
func Presence(ctx context.Context, sender ActionSender, chatID int64, action string, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)

	send := func() {
		sctx, scancel := context.WithTimeout(ctx, interval)
		defer scancel()
		if err := sender.SendChatAction(sctx, chatID, action); err != nil && ctx.Err() == nil {
			log.Warn("Failed to send chat action", "chat_id", chatID, "action", action, "err", err)
		}
	}

	go func() {
		send()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				send()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}
