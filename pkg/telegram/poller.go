package telegram

import (
	"context"
	"log/slog"
	"time"
)

// Poller drives GetUpdates until its context is cancelled.
type Poller struct {
	Client  *Client
	Timeout time.Duration
	Logger  *slog.Logger
}

func (p *Poller) Run(ctx context.Context, handle func(context.Context, Update)) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		offset  int64
		backoff = time.Second
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, next, err := p.Client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("getUpdates failed", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		offset = next
		for _, u := range updates {
			handle(ctx, u)
		}
	}
}
