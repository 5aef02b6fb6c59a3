package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MockClient provides deterministic local replies when no provider is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	default:
	}
	return Completion{Text: buildMockReply(req)}, nil
}

func (c *MockClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return c.transcript(ctx, audioPath)
}

func (c *MockClient) TranslateToEnglish(ctx context.Context, audioPath string) (string, error) {
	return c.transcript(ctx, audioPath)
}

func (c *MockClient) transcript(ctx context.Context, audioPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	return fmt.Sprintf("voice message %s (%d bytes)", filepath.Base(audioPath), info.Size()), nil
}

func buildMockReply(req CompletionRequest) string {
	base := strings.TrimSpace(req.Prompt)
	if base == "" {
		base = "I am listening."
	}
	if len(req.History) == 0 {
		return fmt.Sprintf("I heard you: %s", base)
	}
	last := strings.TrimSpace(req.History[len(req.History)-1].Content)
	if last == "" {
		return fmt.Sprintf("I heard you: %s", base)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s", base, last)
}
