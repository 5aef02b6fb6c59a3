package bot

import (
	"context"
	"errors"
)

// ErrForbidden is wrapped by transports when the recipient has blocked the
// bot or removed it from the chat.
var ErrForbidden = errors.New("forbidden by recipient")

type ChatAction string

const (
	ActionTyping      ChatAction = "typing"
	ActionRecordVoice ChatAction = "record_voice"
)

// Transport delivers replies to the messaging platform.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int) error
	SendVoice(ctx context.Context, chatID int64, path string, replyTo int) error
	SendChatAction(ctx context.Context, chatID int64, action ChatAction) error
	DownloadFile(ctx context.Context, fileID, dst string) error
}
