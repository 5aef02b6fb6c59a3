package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a per-user setting or record has never been stored.
var ErrNotFound = errors.New("store: not found")

// Content types recorded on dialog records. Only ContentVoice counts toward
// the daily voice quota.
const (
	ContentText        = "text"
	ContentVoice       = "voice"
	ContentTranslation = "translation"
)

// Usage mirrors the token accounting returned by the completion API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`
}

// DialogRecord is one completed prompt/completion exchange. Records are never
// updated after insert.
type DialogRecord struct {
	ID          string    `json:"id" bson:"_id"`
	UserKey     string    `json:"user_key" bson:"telegramId"`
	Prompt      string    `json:"prompt" bson:"prompt"`
	Completion  string    `json:"completion" bson:"completion"`
	ContentType string    `json:"content_type" bson:"contentType"`
	Language    string    `json:"language" bson:"language"`
	Date        string    `json:"date" bson:"date"`
	Week        string    `json:"week" bson:"week"`
	Month       string    `json:"month" bson:"month"`
	Usage       Usage     `json:"usage" bson:"usage"`
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
}

// LanguageProfile selects the speech locales and voice for a user.
type LanguageProfile struct {
	RecognitionLocale string `json:"recognition_locale" bson:"speechRecognitionLanguage"`
	SynthesisLocale   string `json:"synthesis_locale" bson:"speechSynthesisLanguage"`
	SynthesisVoice    string `json:"synthesis_voice" bson:"speechSynthesisVoiceName"`
}

// PromptRecord is an entry of the searchable prompt library.
type PromptRecord struct {
	ID              string `json:"id" yaml:"id" bson:"_id"`
	Act             string `json:"act" yaml:"act" bson:"act"`
	Prompt          string `json:"prompt" yaml:"prompt" bson:"prompt"`
	LocalizedPrompt string `json:"localized_prompt" yaml:"localized_prompt" bson:"chPrompt"`
}

// Store persists dialog history, per-user settings and the prompt library.
type Store interface {
	InsertDialog(ctx context.Context, record DialogRecord) error
	CountDialogsSince(ctx context.Context, userKey, contentType string, since time.Time) (int, error)

	LanguageProfile(ctx context.Context, userKey string) (LanguageProfile, error)
	UpsertLanguageProfile(ctx context.Context, userKey string, profile LanguageProfile) error
	SystemRole(ctx context.Context, userKey string) (string, error)
	UpsertSystemRole(ctx context.Context, userKey, role string) error
	Speed(ctx context.Context, userKey string) (string, error)
	UpsertSpeed(ctx context.Context, userKey, rate string) error
	ModelOverride(ctx context.Context, userKey string) (string, error)
	UpsertModelOverride(ctx context.Context, userKey, model string) error

	SearchPrompts(ctx context.Context, keywords string, limit int) ([]PromptRecord, error)
	UpsertPrompt(ctx context.Context, prompt PromptRecord) error

	Mode() string
	Close() error
}
