// Package telegram is the Bot API transport: long polling for updates and
// rate-limited outbound calls.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ent0n29/speakbot/internal/bot"
)

// Telegram rejects longer texts.
const maxMessageRunes = 4096

type Config struct {
	Token string
	// APIEndpoint overrides the Bot API URL template, for local Bot API
	// servers. It must contain two %s verbs: token and method.
	APIEndpoint string
	PollTimeout time.Duration
	SendRate    float64
}

// Client implements bot.Transport.
type Client struct {
	api          *tgbotapi.BotAPI
	http         *pollingClient
	fileEndpoint string
	limiter      *rate.Limiter
	logger       *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60 * time.Second
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 30
	}
	endpoint := strings.TrimSpace(cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	fileEndpoint := tgbotapi.FileEndpoint
	if endpoint != tgbotapi.APIEndpoint {
		fileEndpoint = strings.Replace(endpoint, "/bot%s/%s", "/file/bot%s/%s", 1)
	}

	hc := &pollingClient{client: &http.Client{Timeout: cfg.PollTimeout + 15*time.Second}}
	_ = tgbotapi.SetLogger(zap.NewStdLog(logger.Named("tgbotapi")))
	api, err := tgbotapi.NewBotAPIWithClient(strings.TrimSpace(cfg.Token), endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", wrapError(err))
	}
	logger.Info("telegram bot connected", zap.String("username", api.Self.UserName))

	return &Client{
		api:          api,
		http:         hc,
		fileEndpoint: fileEndpoint,
		limiter:      rate.NewLimiter(rate.Limit(cfg.SendRate), int(math.Ceil(cfg.SendRate))),
		logger:       logger,
	}, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) error {
	for _, chunk := range splitMessage(text, maxMessageRunes) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ReplyToMessageID = replyTo
		if _, err := c.api.Send(msg); err != nil {
			return fmt.Errorf("send message: %w", wrapError(err))
		}
	}
	return nil
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, path string, replyTo int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(path))
	voice.ReplyToMessageID = replyTo
	if _, err := c.api.Send(voice); err != nil {
		return fmt.Errorf("send voice: %w", wrapError(err))
	}
	return nil
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action bot.ChatAction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, string(action))); err != nil {
		return fmt.Errorf("send chat action: %w", wrapError(err))
	}
	return nil
}

// DownloadFile resolves fileID and stores its content at dst.
func (c *Client) DownloadFile(ctx context.Context, fileID, dst string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", wrapError(err))
	}

	url := fmt.Sprintf(c.fileEndpoint, c.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	res, err := c.http.client.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: status %d", res.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return f.Close()
}

// pollingClient binds getUpdates calls to the poller's context so that a
// pending long poll ends on shutdown. Other calls are left alone so in-flight
// replies can finish.
type pollingClient struct {
	client *http.Client

	mu      sync.Mutex
	pollCtx context.Context
}

func (p *pollingClient) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/getUpdates") {
		p.mu.Lock()
		ctx := p.pollCtx
		p.mu.Unlock()
		if ctx != nil {
			req = req.WithContext(ctx)
		}
	}
	return p.client.Do(req)
}

func (p *pollingClient) bind(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollCtx = ctx
}

// apiError carries the Bot API error code through wrapping.
type apiError struct {
	code       int
	message    string
	retryAfter int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.code, e.message)
}

func (e *apiError) HTTPStatus() int { return e.code }

func (e *apiError) Unwrap() error {
	if e.code == http.StatusForbidden {
		return bot.ErrForbidden
	}
	return nil
}

func wrapError(err error) error {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return &apiError{code: ptr.Code, message: ptr.Message, retryAfter: ptr.RetryAfter}
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return &apiError{code: val.Code, message: val.Message, retryAfter: val.RetryAfter}
	}
	return err
}

func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		// Prefer breaking at a newline in the last quarter of the chunk.
		for i := limit - 1; i >= limit*3/4; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
