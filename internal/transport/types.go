package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Severity is a rendering hint for Card sends (Discord-style embed color).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityGood
	SeverityWarn
	SeverityError
)

// Card is a formatted notification: title, body and a structured field list.
// Adapters render it natively (Telegram: HTML with a severity marker).
type Card struct {
	Title    string
	Body     string
	Fields   []CardField
	Severity Severity
}

type CardField struct {
	Name  string
	Value string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendCard(ctx context.Context, to ChatTarget, c Card) (MessageRef, error)
}
