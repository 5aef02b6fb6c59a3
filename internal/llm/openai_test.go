package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/speakbot/internal/conversation"
)

func TestOpenAIClientCompleteSendsContext(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"cmpl-1","object":"chat.completion","model":"gpt-3.5-turbo",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Sure.\n\nHello there!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", 5*time.Second)
	res, err := c.Complete(context.Background(), CompletionRequest{
		Model:        "gpt-3.5-turbo",
		SystemPrompt: "friendly tutor",
		History: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi"},
			{Role: conversation.RoleAssistant, Content: "hello"},
		},
		Prompt:    "how are you",
		MaxTokens: 500,
		User:      "0xabc",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure.\n\nHello there!", res.Text)
	assert.Equal(t, "Hello there!", CleanCompletion(res.Text))
	assert.Equal(t, 17, res.Usage.TotalTokens)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "friendly tutor", got.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "how are you", got.Messages[3].Content)
	assert.Equal(t, 500, got.MaxTokens)
	assert.Equal(t, []string{"###"}, got.Stop)
	assert.Equal(t, "0xabc", got.User)
	assert.EqualValues(t, 1, got.TopP)
}

func TestOpenAIClientErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", 5*time.Second)
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4", Prompt: "hi"})
	require.Error(t, err)

	code, ok := HTTPStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "429", ErrorCode(err))
}

func TestOpenAIClientTranslateUploadsAudio(t *testing.T) {
	var gotModel, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/translations" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" good morning "}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "voice.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3fake"), 0o600))

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", 5*time.Second)
	text, err := c.TranslateToEnglish(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "good morning", text)
	assert.Equal(t, openai.Whisper1, gotModel)
	assert.Equal(t, "voice.mp3", gotFile)
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestHTTPStatusUnwraps(t *testing.T) {
	code, ok := HTTPStatus(fmt.Errorf("synth: %w", statusErr{code: 401}))
	require.True(t, ok)
	assert.Equal(t, 401, code)

	_, ok = HTTPStatus(errors.New("dial tcp: refused"))
	assert.False(t, ok)
	assert.Equal(t, "timeout", ErrorCode(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "other", ErrorCode(errors.New("boom")))
}

func TestCleanCompletion(t *testing.T) {
	cases := map[string]string{
		"  plain answer ":         "plain answer",
		"preamble\n\nreal answer": "real answer",
		"\n\nleading blank kept":  "leading blank kept",
		"a\n\nb\n\nc":             "b\n\nc",
		"single\nnewline\n":       "single\nnewline",
	}
	for in, want := range cases {
		if got := CleanCompletion(in); got != want {
			t.Fatalf("CleanCompletion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientSelectsProvider(t *testing.T) {
	c, err := NewClient(Config{Provider: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Name())

	c, err = NewClient(Config{Provider: "auto", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	_, err = NewClient(Config{Provider: "openai"})
	require.Error(t, err)
	_, err = NewClient(Config{Provider: "claude"})
	require.Error(t, err)
}

func TestMockClientEchoesWithMemory(t *testing.T) {
	c := NewMockClient()
	res, err := c.Complete(context.Background(), CompletionRequest{
		Prompt:  "hello",
		History: []conversation.Turn{{Role: conversation.RoleAssistant, Content: "earlier"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "I heard you: hello\nI also remember: earlier", res.Text)
}
