package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/speakbot/internal/conversation"
	"github.com/ent0n29/speakbot/internal/store"
)

// OpenAIClient uses the chat completions and Whisper endpoints.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		cfg.BaseURL = u
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	res, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  buildMessages(req),
		MaxTokens: req.MaxTokens,
		TopP:      1,
		Stop:      []string{stopSequence},
		User:      req.User,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return Completion{}, errors.New("chat completion: no choices returned")
	}
	return Completion{
		Text: res.Choices[0].Message.Content,
		Usage: store.Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	res, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

func (c *OpenAIClient) TranslateToEnglish(ctx context.Context, audioPath string) (string, error) {
	res, err := c.client.CreateTranslation(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("translation: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

// Raw exposes the underlying SDK client to the OpenAI speech synthesizer.
func (c *OpenAIClient) Raw() *openai.Client {
	return c.client
}

func buildMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
}
