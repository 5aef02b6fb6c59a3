package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/entitlement"
	"github.com/ent0n29/speakbot/internal/llm"
	"github.com/ent0n29/speakbot/internal/preferences"
)

const (
	msgNotUnderstood = "😭 Sorry, I don't understand what you mean."
	msgSaved         = "Saved."
	msgNotVIP        = "You are not a VIP member yet."
	msgIsVIP         = "You are a VIP member."
	msgNoPrompts     = "No prompts found."
	msgSignerOff     = "Wallet verification is not available right now."

	searchPromptLimit     = 10
	searchPromptMaxTokens = 1000
	searchPromptRole      = "You translate the user's text into English word by word. Reply with the translated words only, separated by spaces."
)

var startMessages = []string{
	"👋 Hi! I'm a chat bot backed by GPT. You can talk to me in text, or send voice notes in any language. I transcribe them to English and answer with an English voice note.",
	"If you want a reply read aloud in another language, send text like: translate to French: how are you?",
	"Supported languages and accents: " + strings.Join(preferences.LanguageNames(), ", ") + ".",
	"Send /help for the full command list.",
}

const helpMessage = `Commands:
/info  introduce the bot
/setRole <description>  set the assistant's role, e.g. /setRole you are an English teacher who points out my mistakes
/setEnTTS <accent>  choose the spoken accent, e.g. /setEnTTS uk male
/setSpeed <multiplier>  speaking speed between 0.5 and 2, e.g. /setSpeed 1.5
/setGPT <4|4-32k|3.5|default>  choose the model (default gpt-3.5-turbo)
/checkVip  check your VIP membership
/verify <wallet address>  sign your Telegram id for the VIP contract
/searchPrompt <keywords>  search the prompt library`

type commandFunc func(ctx context.Context, req Request, arg string) (string, error)

type command struct {
	name     string
	aliases  []string
	needsArg bool
	usage    string
	run      commandFunc
}

func (c command) names() []string {
	return append([]string{c.name}, c.aliases...)
}

// commandTable lists commands in match order. Matching is by prefix, so
// longer names that share a prefix must come first.
func (d *Dispatcher) commandTable() []command {
	return []command{
		{name: "/start", aliases: []string{"/info"}, run: d.cmdStart},
		{name: "/help", run: d.cmdHelp},
		{name: "/verify", needsArg: true, usage: "Usage: /verify <wallet address>", run: d.cmdVerify},
		{name: "/setRole", needsArg: true, usage: "Usage: /setRole <description of the assistant's role>", run: d.cmdSetRole},
		{name: "/setEnTTS", needsArg: true, usage: "Usage: /setEnTTS <accent>, e.g. /setEnTTS uk male", run: d.cmdSetLanguage},
		{name: "/setSpeed", needsArg: true, usage: "Usage: /setSpeed <multiplier between 0.5 and 2>", run: d.cmdSetSpeed},
		{name: "/setGPT", needsArg: true, usage: "Usage: /setGPT <gpt-4|gpt-4-32k|gpt-3.5-turbo|default>, see https://platform.openai.com/docs/models/overview", run: d.cmdSetModel},
		{name: "/checkVip", aliases: []string{"/checkVIP"}, run: d.cmdCheckVIP},
		{name: "/searchPrompt", needsArg: true, usage: "Usage: /searchPrompt <keywords>", run: d.cmdSearchPrompt},
	}
}

func (d *Dispatcher) matchCommand(text string) (command, string, bool) {
	for _, cmd := range d.commands {
		for _, name := range cmd.names() {
			if strings.HasPrefix(text, name) {
				return cmd, strings.TrimSpace(text[len(name):]), true
			}
		}
	}
	return command{}, "", false
}

func (d *Dispatcher) runCommand(ctx context.Context, req Request, cmd command, arg string) {
	if cmd.needsArg && arg == "" {
		d.Metrics.Command(cmd.name, "usage")
		d.reply(ctx, req, cmd.usage)
		return
	}

	out, err := cmd.run(ctx, req, arg)
	if err != nil {
		d.Metrics.Command(cmd.name, "error")
		d.Logger.Warn("command failed",
			zap.String("command", cmd.name),
			zap.String("user", req.UserKey),
			zap.Error(err),
		)
		d.reply(ctx, req, "Sorry, that did not work: "+err.Error())
		return
	}
	d.Metrics.Command(cmd.name, "ok")
	if out != "" {
		d.reply(ctx, req, out)
	}
}

func (d *Dispatcher) cmdStart(ctx context.Context, req Request, _ string) (string, error) {
	for _, msg := range startMessages[:len(startMessages)-1] {
		d.reply(ctx, req, msg)
	}
	return startMessages[len(startMessages)-1], nil
}

func (d *Dispatcher) cmdHelp(context.Context, Request, string) (string, error) {
	return helpMessage, nil
}

func (d *Dispatcher) cmdVerify(_ context.Context, req Request, address string) (string, error) {
	if d.Signer == nil {
		return msgSignerOff, nil
	}
	sig, err := d.Signer.Sign(req.UserKey, address)
	if errors.Is(err, entitlement.ErrSignerDisabled) {
		return msgSignerOff, nil
	}
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(sig)
	if err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}
	return string(raw), nil
}

func (d *Dispatcher) cmdSetRole(ctx context.Context, req Request, role string) (string, error) {
	d.Preferences.SetSystemRole(ctx, req.UserKey, role)
	return msgSaved, nil
}

func (d *Dispatcher) cmdSetLanguage(ctx context.Context, req Request, name string) (string, error) {
	p, err := d.Preferences.SetLanguage(ctx, req.UserKey, name)
	if errors.Is(err, preferences.ErrUnknownLanguage) {
		return fmt.Sprintf("Sorry, I don't know %q. Try one of: %s", name, strings.Join(preferences.LanguageNames(), ", ")), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved. I will speak %s as %s.", p.SynthesisLocale, p.SynthesisVoice), nil
}

func (d *Dispatcher) cmdSetSpeed(ctx context.Context, req Request, raw string) (string, error) {
	rate := d.Preferences.SetSpeed(ctx, req.UserKey, raw)
	return fmt.Sprintf("Saved. Speaking rate is now %s.", rate), nil
}

func (d *Dispatcher) cmdSetModel(ctx context.Context, req Request, arg string) (string, error) {
	model, ok := preferences.ResolveModel(arg)
	if !ok {
		return "Sorry, unknown model. Usage: /setGPT <gpt-4|gpt-4-32k|gpt-3.5-turbo|default>", nil
	}
	if preferences.RequiresEntitlement(model) && !d.Entitlement.CheckEntitlement(ctx, req.UserKey) {
		return fmt.Sprintf("Sorry, %s is for VIP members only. Sign up at %s", model, d.opts.SignupURL), nil
	}
	d.Preferences.SetModelOverride(ctx, req.UserKey, model)
	if model == "" {
		return fmt.Sprintf("Saved. You are back on the default model, %s.", d.opts.DefaultModel), nil
	}
	return fmt.Sprintf("Saved. You are now using %s.", model), nil
}

func (d *Dispatcher) cmdCheckVIP(ctx context.Context, req Request, _ string) (string, error) {
	if d.Entitlement.CheckEntitlement(ctx, req.UserKey) {
		return msgIsVIP, nil
	}
	return msgNotVIP, nil
}

func (d *Dispatcher) cmdSearchPrompt(ctx context.Context, req Request, keywords string) (string, error) {
	translated, err := d.LLM.Complete(ctx, llm.CompletionRequest{
		Model:        d.opts.DefaultModel,
		SystemPrompt: searchPromptRole,
		Prompt:       keywords,
		MaxTokens:    searchPromptMaxTokens,
		User:         req.UserKey,
	})
	if err != nil {
		return "", fmt.Errorf("translate keywords: %w", err)
	}
	english := llm.CleanCompletion(translated.Text)
	if english == "" {
		english = keywords
	}

	prompts, err := d.Store.SearchPrompts(ctx, english, searchPromptLimit)
	if err != nil {
		return "", fmt.Errorf("search prompts: %w", err)
	}
	if len(prompts) == 0 {
		return msgNoPrompts, nil
	}
	var b strings.Builder
	for i, p := range prompts {
		text := p.LocalizedPrompt
		if text == "" {
			text = p.Prompt
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]: %s", i, text)
	}
	return b.String(), nil
}
