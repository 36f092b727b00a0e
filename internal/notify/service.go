// Package notify is the single send path to the messaging destination.
// It paces sends so a burst of new proposals can't trip Telegram's
// per-chat flood limits.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	lim     *rate.Limiter
}

func New(adapter kit.Adapter, ratePerSec int, log logx.Logger) *Service {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		log:     log,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		lim: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Text sends a plain-text message to the destination.
func (s *Service) Text(ctx context.Context, to kit.ChatTarget, text string) error {
	if err := s.lim.Wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		s.log.Warn("text send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
	return err
}

// Card sends a formatted notification to the destination.
func (s *Service) Card(ctx context.Context, to kit.ChatTarget, c kit.Card) error {
	if err := s.lim.Wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendCard(ctx, to, c)
	if err != nil {
		s.log.Warn("card send failed", logx.Int64("chat_id", to.ChatID), logx.String("title", c.Title), logx.Err(err))
	} else {
		s.log.Debug("card sent", logx.Int64("chat_id", to.ChatID), logx.String("title", c.Title))
	}
	return err
}
