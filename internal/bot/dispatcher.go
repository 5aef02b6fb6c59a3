package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/conversation"
	"github.com/ent0n29/speakbot/internal/entitlement"
	"github.com/ent0n29/speakbot/internal/llm"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/policy"
	"github.com/ent0n29/speakbot/internal/preferences"
	"github.com/ent0n29/speakbot/internal/session"
	"github.com/ent0n29/speakbot/internal/speech"
	"github.com/ent0n29/speakbot/internal/store"
)

const (
	defaultChatActionInterval = 5 * time.Second
	defaultPersistTimeout     = 10 * time.Second
	logTextLimit              = 120
)

// Quota meters voice exchanges.
type Quota interface {
	CheckAndIncrement(ctx context.Context, userKey string) bool
}

type Entitlement interface {
	CheckEntitlement(ctx context.Context, userKey string) bool
}

type Signer interface {
	Sign(userKey, address string) (entitlement.Signature, error)
}

type Transcoder interface {
	ToMP3(ctx context.Context, in, out string) error
	ToOpusOGG(ctx context.Context, in, out string) error
}

// DialogStore is the durable store slice the dispatcher writes dialogs to and
// searches prompts in.
type DialogStore interface {
	InsertDialog(ctx context.Context, record store.DialogRecord) error
	SearchPrompts(ctx context.Context, keywords string, limit int) ([]store.PromptRecord, error)
}

type Deps struct {
	Transport     Transport
	LLM           llm.Client
	Synthesizer   speech.Synthesizer
	Transcoder    Transcoder
	Sessions      *session.Manager
	Conversations *conversation.Store
	Preferences   *preferences.Registry
	Quota         Quota
	Entitlement   Entitlement
	Signer        Signer
	Store         DialogStore
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

type Options struct {
	GroupPrefix        string
	DefaultModel       string
	WorkDir            string
	SignupURL          string
	DailyQuota         int
	QuotaLocation      *time.Location
	ChatActionInterval time.Duration
	PersistTimeout     time.Duration
}

// Dispatcher routes each inbound message through the blocked-chat and scope
// filters, the command table and the conversational fallback. Messages of
// one user are handled one at a time in arrival order.
type Dispatcher struct {
	Deps
	opts     Options
	commands []command
	now      func() time.Time

	inflight sync.WaitGroup
	persists sync.WaitGroup
}

func New(deps Deps, opts Options) (*Dispatcher, error) {
	switch {
	case deps.Transport == nil:
		return nil, errors.New("bot: transport is required")
	case deps.LLM == nil:
		return nil, errors.New("bot: llm client is required")
	case deps.Sessions == nil || deps.Conversations == nil || deps.Preferences == nil:
		return nil, errors.New("bot: session, conversation and preference stores are required")
	case deps.Quota == nil || deps.Entitlement == nil:
		return nil, errors.New("bot: quota and entitlement are required")
	case deps.Store == nil:
		return nil, errors.New("bot: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.GroupPrefix == "" {
		opts.GroupPrefix = "/gpt"
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = preferences.ModelGPT35Turb
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.QuotaLocation == nil {
		opts.QuotaLocation = time.Local
	}
	if opts.ChatActionInterval <= 0 {
		opts.ChatActionInterval = defaultChatActionInterval
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("bot: create work dir: %w", err)
	}

	d := &Dispatcher{Deps: deps, opts: opts, now: time.Now}
	d.commands = d.commandTable()
	return d, nil
}

// Dispatch queues req behind the user's earlier messages and handles it on
// its own goroutine. It returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	ticket := d.reserve(req)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer ticket.Release()
		if err := ticket.Wait(ctx); err != nil {
			return
		}
		d.handle(ctx, req, ticket)
	}()
}

// Handle processes req synchronously, still waiting for the user's earlier
// messages.
func (d *Dispatcher) Handle(ctx context.Context, req Request) error {
	ticket := d.reserve(req)
	defer ticket.Release()
	if err := ticket.Wait(ctx); err != nil {
		return err
	}
	d.handle(ctx, req, ticket)
	return nil
}

// Wait blocks until dispatched messages and pending dialog writes finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
	d.persists.Wait()
}

func (d *Dispatcher) reserve(req Request) *session.Ticket {
	return d.Sessions.Reserve(req.UserKey)
}

// accept records activity for a message that passed the chat filters.
func (d *Dispatcher) accept(ticket *session.Ticket, req Request) {
	ticket.Touch(req.UserID, req.ChatID)
	d.Metrics.SetActiveUsers(d.Sessions.ActiveCount())
}

func (d *Dispatcher) handle(ctx context.Context, req Request, ticket *session.Ticket) {
	started := d.now()
	outcome := d.process(ctx, req, ticket)
	d.Metrics.Message(string(req.Source), outcome)
	if outcome == outcomeCompleted {
		d.Metrics.ObserveStage(observability.StageExchangeTotal, d.now().Sub(started))
	}
	d.Logger.Debug("message handled",
		zap.String("user", req.UserKey),
		zap.Int64("chat", req.ChatID),
		zap.String("source", string(req.Source)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", d.now().Sub(started)),
	)
}

const (
	outcomeBlocked    = "blocked"
	outcomeIgnored    = "ignored"
	outcomeCommand    = "command"
	outcomeCompleted  = "completed"
	outcomeDenied     = "quota_denied"
	outcomeFailed     = "failed"
	outcomeUnderstood = "not_understood"
)

func (d *Dispatcher) process(ctx context.Context, req Request, ticket *session.Ticket) string {
	if d.Sessions.IsBlocked(req.ChatID) {
		return outcomeBlocked
	}

	if req.Source == SourceVoice {
		d.accept(ticket, req)
		return d.processVoice(ctx, req)
	}

	text := strings.TrimSpace(req.Text)
	if req.IsGroup() {
		if !strings.HasPrefix(text, d.opts.GroupPrefix) {
			return outcomeIgnored
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, d.opts.GroupPrefix))
	}
	req = req.WithText(text)
	d.accept(ticket, req)

	if cmd, arg, ok := d.matchCommand(text); ok {
		d.runCommand(ctx, req, cmd, arg)
		return outcomeCommand
	}

	if utf8.RuneCountInString(text) < 2 {
		d.reply(ctx, req, msgNotUnderstood)
		return outcomeUnderstood
	}

	d.Logger.Info("text prompt",
		zap.String("user", req.UserKey),
		zap.String("text", policy.LogText(text, logTextLimit)),
	)
	return d.converse(ctx, req)
}

// reply sends text and marks the chat blocked when the recipient refuses it.
func (d *Dispatcher) reply(ctx context.Context, req Request, text string) {
	err := d.Transport.SendMessage(ctx, req.ChatID, text, req.MessageID)
	d.deliveryFailed(req, "message", err)
}

func (d *Dispatcher) deliveryFailed(req Request, kind string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrForbidden) {
		d.Sessions.Block(req.ChatID)
		d.Metrics.Indicate("chat_blocked")
		d.Logger.Info("chat blocked the bot", zap.Int64("chat", req.ChatID))
		return true
	}
	if !errors.Is(err, context.Canceled) {
		d.Logger.Warn("delivery failed", zap.String("kind", kind), zap.Int64("chat", req.ChatID), zap.Error(err))
	}
	return true
}
