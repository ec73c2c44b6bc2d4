package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// Telegram implements Gateway on the Bot API. Handles are resolved from the
// directory first, since the Bot API only resolves public chat usernames.
type Telegram struct {
	api       BotAPI
	directory models.HandleDirectory
	logger    logger.Logger
}

func NewTelegram(api BotAPI, directory models.HandleDirectory, log logger.Logger) *Telegram {
	return &Telegram{api: api, directory: directory, logger: log}
}

func (t *Telegram) Send(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Send(toTelegramMessage(msg)); err != nil {
		return fmt.Errorf("send to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func (t *Telegram) AnswerAction(ctx context.Context, actionID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(actionID, text)); err != nil {
		return fmt.Errorf("answer callback %s: %w", actionID, err)
	}
	return nil
}

func (t *Telegram) ResolveHandle(ctx context.Context, handle string) (int64, error) {
	name := models.NormalizeHandle(handle)
	if name == "" {
		return 0, ErrUnknownHandle
	}

	if t.directory != nil {
		id, err := t.directory.Resolve(ctx, name)
		if err == nil {
			return id, nil
		}
		t.logger.Debug("Handle not in directory, asking the platform", map[string]interface{}{
			"handle": name,
			"error":  err.Error(),
		})
	}

	chat, err := t.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + name},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnknownHandle, name, err)
	}
	return chat.ID, nil
}

func (t *Telegram) LookupHandle(ctx context.Context, chatID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := t.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("get chat %d: %w", chatID, err)
	}
	return chat.UserName, nil
}

func toTelegramMessage(msg OutboundMessage) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.HTML {
		out.ParseMode = tgbotapi.ModeHTML
	}

	switch {
	case len(msg.Actions) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Actions))
		for _, row := range msg.Actions {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, a := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Text, a.Payload))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	case len(msg.Menu) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(msg.Menu))
		for _, row := range msg.Menu {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		out.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)
	case msg.RemoveMenu:
		out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	return out
}

// ==========================
// Inbound
// ==========================

// FromTelegram converts a Bot API update.
func FromTelegram(u tgbotapi.Update) Update {
	out := Update{ID: u.UpdateID, Kind: KindOther}

	switch {
	case u.Message != nil:
		m := u.Message
		out.Kind = KindMessage
		out.Text = m.Text
		if m.IsCommand() {
			out.Command = m.Command()
		}
		if m.From != nil {
			out.Sender = Sender{ID: m.From.ID, Handle: m.From.UserName}
		}
		if m.Chat != nil {
			out.ChatID = m.Chat.ID
			out.ChatKind = ChatKind(m.Chat.Type)
		}
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		out.Kind = KindAction
		out.ActionID = q.ID
		out.Payload = q.Data
		if q.From != nil {
			out.Sender = Sender{ID: q.From.ID, Handle: q.From.UserName}
		}
		if q.Message != nil && q.Message.Chat != nil {
			out.ChatID = q.Message.Chat.ID
			out.ChatKind = ChatKind(q.Message.Chat.Type)
		}
	}
	return out
}

// DecodeUpdate parses a webhook body.
func DecodeUpdate(body []byte) (Update, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return Update{}, fmt.Errorf("decode update: %w", err)
	}
	return FromTelegram(u), nil
}

// UpdateSource is the long-poll half of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller long-polls for updates and handles each on its own goroutine.
type Poller struct {
	source  UpdateSource
	timeout int
	logger  logger.Logger
}

func NewPoller(source UpdateSource, timeoutSeconds int, log logger.Logger) *Poller {
	return &Poller{source: source, timeout: timeoutSeconds, logger: log}
}

// Run blocks until ctx is cancelled or the source closes, then waits for
// in-flight handlers. Handlers are not cancelled with ctx.
func (p *Poller) Run(ctx context.Context, handle func(ctx context.Context, u Update)) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.source.GetUpdatesChan(cfg)

	var wg sync.WaitGroup
	defer wg.Wait()

	p.logger.Info("Polling for updates", map[string]interface{}{"timeout": p.timeout})

	for {
		select {
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(u Update) {
				defer wg.Done()
				handle(context.WithoutCancel(ctx), u)
			}(FromTelegram(u))
		}
	}
}
