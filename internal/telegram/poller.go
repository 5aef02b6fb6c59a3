package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/bot"
	"github.com/ent0n29/speakbot/internal/identity"
	"github.com/ent0n29/speakbot/internal/reliability"
)

const (
	reconnectBase = time.Second
	reconnectCap  = time.Minute
)

// Poller long-polls getUpdates and hands each message to a dispatch
// function. Dispatch must not block; it is called in update order.
type Poller struct {
	client  *Client
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewPoller(client *Client, pollTimeout time.Duration, logger *zap.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{client: client, timeout: pollTimeout, logger: logger, now: time.Now}
}

// Run polls until ctx is done. Polling failures are retried with capped
// exponential backoff.
func (p *Poller) Run(ctx context.Context, dispatch func(context.Context, bot.Request)) error {
	p.client.http.bind(ctx)
	defer p.client.http.bind(nil)

	offset := 0
	attempt := 0
	for ctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = int(p.timeout / time.Second)
		cfg.AllowedUpdates = []string{"message"}

		updates, err := p.client.api.GetUpdates(cfg)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wait := reliability.ExponentialBackoff(attempt, reconnectBase, reconnectCap)
			var apiErr *apiError
			if errors.As(wrapError(err), &apiErr) && apiErr.retryAfter > 0 {
				wait = time.Duration(apiErr.retryAfter) * time.Second
			}
			attempt++
			p.logger.Warn("telegram polling failed", zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
			if err := reliability.Sleep(ctx, wait); err != nil {
				break
			}
			continue
		}
		attempt = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			req, ok := requestFromUpdate(u, p.now())
			if !ok {
				continue
			}
			dispatch(ctx, req)
		}
	}
	p.logger.Info("telegram polling stopped")
	return nil
}

// requestFromUpdate keeps text and voice messages from users; everything
// else is ignored.
func requestFromUpdate(u tgbotapi.Update, now time.Time) (bot.Request, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return bot.Request{}, false
	}
	req := bot.Request{
		UpdateID:   u.UpdateID,
		UserID:     msg.From.ID,
		UserKey:    identity.Key(msg.From.ID),
		Username:   msg.From.UserName,
		ChatID:     msg.Chat.ID,
		ChatKind:   bot.ChatKind(msg.Chat.Type),
		MessageID:  msg.MessageID,
		ReceivedAt: now,
	}
	switch {
	case msg.Voice != nil:
		req.Source = bot.SourceVoice
		req.VoiceFileID = msg.Voice.FileID
	case msg.Text != "":
		req.Source = bot.SourceText
		req.Text = msg.Text
	default:
		return bot.Request{}, false
	}
	return req, true
}
