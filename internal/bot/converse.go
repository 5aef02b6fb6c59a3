package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/llm"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/policy"
	"github.com/ent0n29/speakbot/internal/preferences"
	"github.com/ent0n29/speakbot/internal/reliability"
	"github.com/ent0n29/speakbot/internal/speech"
	"github.com/ent0n29/speakbot/internal/store"
)

const (
	voiceMaxTokens = 200
	textMaxTokens  = 500

	msgVoiceFailed     = "😭 Sorry, I could not process your voice message."
	msgGenericFailure  = "😭 Something went wrong, please try again later."
	msgEmptyCompletion = "Sorry, I have no answer to that."
	msgCheckVIPHint    = "Once you are a VIP member, send /checkVip to confirm."
)

var translateMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^translate (?:in)?to ([^:：]+)[:：]`),
	regexp.MustCompile(`^翻译为([^:：]+)[:：]`),
}

// translateTarget returns the language named by a leading translate marker.
func translateTarget(prompt string) (string, bool) {
	for _, re := range translateMarkers {
		if m := re.FindStringSubmatch(prompt); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// processVoice meters, downloads and transcribes a voice note, then answers
// the English transcript as a spoken exchange. Commands are not recognized
// in voice.
func (d *Dispatcher) processVoice(ctx context.Context, req Request) string {
	if !d.Quota.CheckAndIncrement(ctx, req.UserKey) {
		d.reply(ctx, req, fmt.Sprintf(
			"Sorry, you have reached today's limit of %d voice conversations. To keep talking, become a VIP member at %s",
			d.opts.DailyQuota, d.opts.SignupURL,
		))
		d.reply(ctx, req, msgCheckVIPHint)
		d.Metrics.Indicate("quota_denied")
		return outcomeDenied
	}

	transcript, err := d.transcribe(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeFailed
		}
		d.Logger.Error("voice transcription failed",
			zap.String("user", req.UserKey),
			zap.Int64("chat", req.ChatID),
			zap.Error(err),
		)
		d.reply(ctx, req, msgVoiceFailed)
		return outcomeFailed
	}
	if transcript == "" {
		d.reply(ctx, req, msgNotUnderstood)
		return outcomeUnderstood
	}

	d.Logger.Info("voice prompt",
		zap.String("user", req.UserKey),
		zap.String("text", policy.LogText(transcript, logTextLimit)),
	)
	return d.converse(ctx, req.WithText(transcript))
}

func (d *Dispatcher) transcribe(ctx context.Context, req Request) (string, error) {
	if d.Transcoder == nil {
		return "", errors.New("no transcoder configured")
	}
	dir, err := d.workDir(req)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	ogg := filepath.Join(dir, "voice.ogg")
	mp3 := filepath.Join(dir, "voice.mp3")
	if err := d.Transport.DownloadFile(ctx, req.VoiceFileID, ogg); err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	if err := d.Transcoder.ToMP3(ctx, ogg, mp3); err != nil {
		return "", fmt.Errorf("transcode voice: %w", err)
	}

	started := d.now()
	text, err := d.LLM.TranslateToEnglish(ctx, mp3)
	d.Metrics.ObserveStage(observability.StageTranscription, d.now().Sub(started))
	if err != nil {
		d.Metrics.ProviderError(d.LLM.Name(), llm.ErrorCode(err))
		return "", fmt.Errorf("translate voice: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// converse runs one prompt through the LLM and delivers the answer as text,
// and as speech for voice requests or translate prompts.
func (d *Dispatcher) converse(ctx context.Context, req Request) string {
	prompt := req.Text
	voice := req.Source == SourceVoice

	model := d.Preferences.ModelOverride(ctx, req.UserKey)
	if model == "" {
		model = d.opts.DefaultModel
	}
	maxTokens := textMaxTokens
	action := ActionTyping
	if voice {
		maxTokens = voiceMaxTokens
		action = ActionRecordVoice
	}

	stop := d.startChatAction(ctx, req, action)
	started := d.now()
	completion, err := d.LLM.Complete(ctx, llm.CompletionRequest{
		Model:        model,
		SystemPrompt: d.Preferences.SystemRole(ctx, req.UserKey),
		History:      d.Conversations.Context(req.UserKey),
		Prompt:       prompt,
		MaxTokens:    maxTokens,
		User:         req.UserKey,
	})
	stop()
	d.Metrics.ObserveStage(observability.StageCompletion, d.now().Sub(started))
	if err != nil {
		return d.completionFailed(ctx, req, model, err)
	}

	answer := llm.CleanCompletion(completion.Text)
	if answer == "" {
		answer = msgEmptyCompletion
	}
	d.Conversations.Append(req.UserKey, prompt, answer)

	record := store.DialogRecord{
		UserKey:     req.UserKey,
		Prompt:      prompt,
		Completion:  answer,
		ContentType: store.ContentText,
		Usage:       completion.Usage,
	}

	if voice {
		profile := d.Preferences.LanguageProfile(ctx, req.UserKey)
		record.ContentType = store.ContentVoice
		record.Language = profile.SynthesisLocale
		d.speak(ctx, req, answer, profile)
		d.reply(ctx, req, "You: "+prompt+"\n\nAssistant: "+answer)
	} else {
		d.reply(ctx, req, answer)
		if name, ok := translateTarget(prompt); ok {
			if profile, known := preferences.LookupLanguage(name); known {
				record.ContentType = store.ContentTranslation
				record.Language = profile.SynthesisLocale
				d.speak(ctx, req, answer, profile)
			} else {
				d.reply(ctx, req, fmt.Sprintf("I can't speak %q yet. Try one of: %s", name, strings.Join(preferences.LanguageNames(), ", ")))
			}
		}
	}

	d.persistDialog(record)
	return outcomeCompleted
}

func (d *Dispatcher) completionFailed(ctx context.Context, req Request, model string, err error) string {
	if ctx.Err() != nil {
		return outcomeFailed
	}
	code := llm.ErrorCode(err)
	d.Metrics.ProviderError(d.LLM.Name(), code)
	d.Logger.Error("completion failed",
		zap.String("provider", d.LLM.Name()),
		zap.String("model", model),
		zap.String("user", req.UserKey),
		zap.String("code", code),
		zap.Error(err),
	)

	status, ok := llm.HTTPStatus(err)
	if !ok {
		d.reply(ctx, req, msgGenericFailure)
		return outcomeFailed
	}
	msg := fmt.Sprintf("😭 The language model service returned an error, code: %d.", status)
	if reliability.IsRetryableHTTPStatus(status) {
		msg += " Please try again in a moment."
	}
	d.reply(ctx, req, msg)
	return outcomeFailed
}

// speak synthesizes text and sends it as a voice note. Failures are logged;
// the text reply stands on its own.
func (d *Dispatcher) speak(ctx context.Context, req Request, text string, profile store.LanguageProfile) {
	if err := d.sendSpeech(ctx, req, text, profile); err != nil && ctx.Err() == nil {
		d.Metrics.Indicate("speech_failed")
		d.Logger.Warn("voice reply failed",
			zap.String("user", req.UserKey),
			zap.String("locale", profile.SynthesisLocale),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) sendSpeech(ctx context.Context, req Request, text string, profile store.LanguageProfile) error {
	if d.Synthesizer == nil || d.Transcoder == nil {
		return errors.New("speech output is not configured")
	}
	text = speech.SanitizeText(text)
	if text == "" {
		return nil
	}
	dir, err := d.workDir(req)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "reply.wav")
	ogg := filepath.Join(dir, "reply.ogg")

	started := d.now()
	err = d.Synthesizer.Synthesize(ctx, speech.SynthesisRequest{
		Text:       text,
		Profile:    profile,
		Rate:       d.Preferences.Speed(ctx, req.UserKey),
		OutputPath: wav,
	})
	d.Metrics.ObserveStage(observability.StageSynthesis, d.now().Sub(started))
	if err != nil {
		d.Metrics.ProviderError(d.Synthesizer.Name(), synthesisErrorCode(err))
		return fmt.Errorf("synthesize with %s: %w", d.Synthesizer.Name(), err)
	}
	if err := d.Transcoder.ToOpusOGG(ctx, wav, ogg); err != nil {
		return fmt.Errorf("transcode reply: %w", err)
	}
	d.deliveryFailed(req, "voice", d.Transport.SendVoice(ctx, req.ChatID, ogg, req.MessageID))
	return nil
}

func synthesisErrorCode(err error) string {
	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		return fmt.Sprintf("%d", status.HTTPStatus())
	}
	return llm.ErrorCode(err)
}

func (d *Dispatcher) workDir(req Request) (string, error) {
	dir, err := os.MkdirTemp(d.opts.WorkDir, fmt.Sprintf("%d-%d-*", req.ChatID, req.MessageID))
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// startChatAction shows action in the chat now and every interval until the
// returned stop func is called. stop waits for the ticker goroutine.
func (d *Dispatcher) startChatAction(ctx context.Context, req Request, action ChatAction) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.deliveryFailed(req, "chat_action", d.Transport.SendChatAction(ctx, req.ChatID, ActionTyping))
	go func() {
		defer close(done)
		ticker := time.NewTicker(d.opts.ChatActionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.deliveryFailed(req, "chat_action", d.Transport.SendChatAction(ctx, req.ChatID, action))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (d *Dispatcher) persistDialog(record store.DialogRecord) {
	record = store.Stamp(record, d.now(), d.opts.QuotaLocation)
	d.persists.Add(1)
	go func() {
		defer d.persists.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.PersistTimeout)
		defer cancel()
		if err := d.Store.InsertDialog(ctx, record); err != nil {
			d.Metrics.PersistFailed("dialog")
			d.Logger.Warn("persist dialog failed",
				zap.String("user", record.UserKey),
				zap.String("content_type", record.ContentType),
				zap.Error(err),
			)
		}
	}()
}
