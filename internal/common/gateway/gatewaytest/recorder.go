// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/models"
)

type Answer struct {
	ActionID string
	Text     string
}

// Recorder records every outbound call. Sends to chats listed in failures
// return the configured error and are not recorded.
type Recorder struct {
	mu       sync.Mutex
	sent     []gateway.OutboundMessage
	answers  []Answer
	failures map[int64]error
	handles  map[string]int64
	chats    map[int64]string
}

func NewRecorder() *Recorder {
	return &Recorder{
		failures: make(map[int64]error),
		handles:  make(map[string]int64),
		chats:    make(map[int64]string),
	}
}

// AddUser makes a handle resolvable to chatID and back.
func (r *Recorder) AddUser(handle string, chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[models.HandleKey(handle)] = chatID
	r.chats[chatID] = models.NormalizeHandle(handle)
}

// FailChat makes every Send to chatID return err; nil clears it.
func (r *Recorder) FailChat(chatID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, chatID)
		return
	}
	r.failures[chatID] = err
}

func (r *Recorder) Send(_ context.Context, msg gateway.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[msg.ChatID]; ok {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *Recorder) AnswerAction(_ context.Context, actionID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, Answer{ActionID: actionID, Text: text})
	return nil
}

func (r *Recorder) ResolveHandle(_ context.Context, handle string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.handles[models.HandleKey(handle)]
	if !ok {
		return 0, gateway.ErrUnknownHandle
	}
	return id, nil
}

func (r *Recorder) LookupHandle(_ context.Context, chatID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats[chatID], nil
}

// Sent returns all recorded messages in send order.
func (r *Recorder) Sent() []gateway.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gateway.OutboundMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentTo returns the messages recorded for one chat.
func (r *Recorder) SentTo(chatID int64) []gateway.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []gateway.OutboundMessage
	for _, m := range r.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// LastTo returns the most recent message for chatID.
func (r *Recorder) LastTo(chatID int64) (gateway.OutboundMessage, bool) {
	msgs := r.SentTo(chatID)
	if len(msgs) == 0 {
		return gateway.OutboundMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

func (r *Recorder) Answers() []Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Answer, len(r.answers))
	copy(out, r.answers)
	return out
}

// Reset forgets recorded traffic but keeps users and failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.answers = nil
}
