// Package gateway is the bot's view of the chat platform: inbound updates
// in a transport-neutral shape and the outbound operations the handlers
// need.
package gateway

import (
	"context"
	"errors"
)

// ErrUnknownHandle is returned when a handle cannot be mapped to a chat.
var ErrUnknownHandle = errors.New("gateway: unknown handle")

type UpdateKind string

const (
	KindMessage UpdateKind = "message"
	KindAction  UpdateKind = "action"
	KindOther   UpdateKind = "other"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// Sender is the user behind an update. Handle is empty when the user has
// none.
type Sender struct {
	ID     int64
	Handle string
}

// Update is one inbound event. Text is set for messages; ActionID and
// Payload for button presses.
type Update struct {
	ID       int
	Kind     UpdateKind
	Sender   Sender
	ChatID   int64
	ChatKind ChatKind
	Text     string
	Command  string
	ActionID string
	Payload  string
}

// Action is an inline button attached to a message.
type Action struct {
	Text    string
	Payload string
}

// OutboundMessage is a message to one chat. Actions are inline buttons;
// Menu replaces the user's reply keyboard and RemoveMenu hides it.
type OutboundMessage struct {
	ChatID     int64
	Text       string
	HTML       bool
	Actions    [][]Action
	Menu       [][]string
	RemoveMenu bool
}

// Gateway sends to the chat platform. Calls are single attempts; callers
// decide what a failure means.
type Gateway interface {
	Send(ctx context.Context, msg OutboundMessage) error
	// AnswerAction acknowledges a button press, optionally with a toast.
	AnswerAction(ctx context.Context, actionID, text string) error
	ResolveHandle(ctx context.Context, handle string) (int64, error)
	LookupHandle(ctx context.Context, chatID int64) (string, error)
}

// Text builds a plain message.
func Text(chatID int64, text string) OutboundMessage {
	return OutboundMessage{ChatID: chatID, Text: text}
}

// MenuRows lays options out one per row.
func MenuRows(options ...string) [][]string {
	rows := make([][]string, len(options))
	for i, o := range options {
		rows[i] = []string{o}
	}
	return rows
}
