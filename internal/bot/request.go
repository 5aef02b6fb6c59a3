// Package bot turns inbound chat messages into commands, completions and
// replies.
package bot

import "time"

type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// Request is one inbound message, normalized by the transport.
type Request struct {
	UpdateID    int
	UserID      int64
	UserKey     string
	Username    string
	ChatID      int64
	ChatKind    ChatKind
	MessageID   int
	Text        string
	Source      Source
	VoiceFileID string
	ReceivedAt  time.Time
}

func (r Request) IsGroup() bool {
	return r.ChatKind == ChatGroup || r.ChatKind == ChatSupergroup
}

// WithText returns a copy of r carrying text.
func (r Request) WithText(text string) Request {
	r.Text = text
	return r
}
