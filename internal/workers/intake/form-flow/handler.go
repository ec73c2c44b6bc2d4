package formflow

import (
	"context"
	"fmt"
	"strings"

	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/metrics"
	"helpdesk-bot/internal/models"
)

const (
	TaskType = "form-flow"
)

// Broadcaster publishes a submitted form to responders.
type Broadcaster interface {
	Broadcast(ctx context.Context, form *models.SubmittedForm) error
}

// Handler walks an applicant through the intake form, one step per message.
type Handler struct {
	config      *Config
	sessions    models.SessionRepository
	archive     models.FormArchive
	broadcaster Broadcaster
	gw          gateway.Gateway
	logger      logger.Logger
}

func NewHandler(
	config *Config,
	sessions models.SessionRepository,
	archive models.FormArchive,
	broadcaster Broadcaster,
	gw gateway.Gateway,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:      config,
		sessions:    sessions,
		archive:     archive,
		broadcaster: broadcaster,
		gw:          gw,
		logger:      log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// step describes how one form step consumes an answer.
type step struct {
	field    models.Field
	validate func(string) error
	next     models.Step
}

var steps = map[models.Step]step{
	models.StepAwaitingUsername: {field: models.FieldHandle, validate: ValidateHandle, next: models.StepAwaitingFullName},
	models.StepAwaitingFullName: {field: models.FieldFullName, validate: ValidateFullName, next: models.StepAwaitingStatus},
	models.StepAwaitingStatus:   {field: models.FieldStatus, next: models.StepAwaitingSeason},
	models.StepAwaitingSeason:   {field: models.FieldSeason, next: models.StepAwaitingPhone},
	models.StepAwaitingPhone:    {field: models.FieldPhone, validate: ValidatePhone, next: models.StepAwaitingDates},
	models.StepAwaitingDates:    {field: models.FieldDates, validate: ValidateDateRange, next: models.StepAwaitingRequest},
	models.StepAwaitingRequest:  {field: models.FieldRequest, next: models.StepSubmitted},
}

// Start greets the applicant and offers the form button.
func (h *Handler) Start(ctx context.Context, u gateway.Update) error {
	if !h.config.AllowedChatKinds[u.ChatKind] {
		return h.send(ctx, gateway.Text(u.ChatID, MsgPrivateOnly))
	}
	return h.send(ctx, gateway.OutboundMessage{
		ChatID: u.ChatID,
		Text:   MsgGreeting,
		Menu:   [][]string{{StartButton}},
	})
}

// Begin opens a fresh session, replacing any pending one. Senders without
// a handle are asked for one first.
func (h *Handler) Begin(ctx context.Context, u gateway.Update) error {
	if !h.config.AllowedChatKinds[u.ChatKind] {
		return h.send(ctx, gateway.Text(u.ChatID, MsgPrivateOnly))
	}

	first, prompt := models.StepAwaitingFullName, MsgFullNamePrompt
	if models.NormalizeHandle(u.Sender.Handle) == "" {
		first, prompt = models.StepAwaitingUsername, MsgUsernamePrompt
	}

	if _, err := h.sessions.Begin(ctx, u.Sender.ID, u.Sender.Handle, first); err != nil {
		return errors.NewStoreError("begin session", err)
	}

	h.logger.Info("form started", map[string]interface{}{
		"applicantId": u.Sender.ID,
		"step":        string(first),
	})
	return h.send(ctx, gateway.OutboundMessage{ChatID: u.ChatID, Text: prompt, RemoveMenu: true})
}

// HandleAnswer applies text to the session's current step. Invalid input
// re-sends the validator's message and leaves the session untouched.
func (h *Handler) HandleAnswer(ctx context.Context, session *models.ApplicantSession, text string) error {
	st, ok := steps[session.Step]
	if !ok {
		return fmt.Errorf("session %d is not in a form step: %s", session.ApplicantID, session.Step)
	}
	chatID := session.ApplicantID
	text = strings.TrimSpace(text)

	if st.validate != nil {
		if err := st.validate(text); err != nil {
			if sendErr := h.send(ctx, gateway.Text(chatID, errors.UserMessage(err))); sendErr != nil {
				return sendErr
			}
			return err
		}
	}

	fields := map[models.Field]string{st.field: text}
	if st.next == models.StepSubmitted {
		return h.submit(ctx, session.ApplicantID, fields)
	}

	if err := h.sessions.Advance(ctx, session.ApplicantID, st.next, fields); err != nil {
		return errors.NewStoreError("advance session", err)
	}
	return h.send(ctx, promptFor(chatID, st.next))
}

func promptFor(chatID int64, s models.Step) gateway.OutboundMessage {
	switch s {
	case models.StepAwaitingFullName:
		return gateway.Text(chatID, MsgFullNamePrompt)
	case models.StepAwaitingStatus:
		return gateway.OutboundMessage{ChatID: chatID, Text: MsgStatusPrompt, Menu: [][]string{StatusOptions}}
	case models.StepAwaitingSeason:
		return gateway.OutboundMessage{ChatID: chatID, Text: MsgSeasonPrompt, Menu: [][]string{SeasonOptions}}
	case models.StepAwaitingPhone:
		return gateway.OutboundMessage{ChatID: chatID, Text: MsgPhonePrompt, RemoveMenu: true}
	case models.StepAwaitingDates:
		return gateway.Text(chatID, MsgDatesPrompt)
	case models.StepAwaitingRequest:
		return gateway.OutboundMessage{ChatID: chatID, Text: MsgRequestPrompt, Menu: gateway.MenuRows(RequestOptions...)}
	default:
		return gateway.Text(chatID, MsgFullNamePrompt)
	}
}

func (h *Handler) submit(ctx context.Context, applicantID int64, fields map[models.Field]string) error {
	if err := h.sessions.Advance(ctx, applicantID, models.StepSubmitted, fields); err != nil {
		return errors.NewStoreError("advance session", err)
	}
	form, err := h.sessions.Complete(ctx, applicantID)
	if err != nil {
		return errors.NewStoreError("complete session", err)
	}
	metrics.FormsSubmitted.Inc()

	if err := h.archive.Archive(ctx, form); err != nil {
		h.logger.Warn("failed to archive form", map[string]interface{}{
			"requestId": form.RequestID,
			"error":     err,
		})
	}

	if err := h.broadcaster.Broadcast(ctx, form); err != nil {
		h.logger.Error("failed to broadcast form", map[string]interface{}{
			"requestId": form.RequestID,
			"error":     err,
		})
		if sendErr := h.send(ctx, gateway.OutboundMessage{ChatID: applicantID, Text: MsgSubmitFailed, RemoveMenu: true}); sendErr != nil {
			h.logger.Warn("failed to send apology", map[string]interface{}{"applicantId": applicantID, "error": sendErr})
		}
		return err
	}

	h.logger.Info("form submitted", map[string]interface{}{
		"requestId": form.RequestID,
		"handle":    form.Handle,
	})
	return h.send(ctx, gateway.OutboundMessage{ChatID: applicantID, Text: MsgSubmitted, RemoveMenu: true})
}

func (h *Handler) send(ctx context.Context, msg gateway.OutboundMessage) error {
	if err := h.gw.Send(ctx, msg); err != nil {
		metrics.DeliveryFailures.WithLabelValues("applicant").Inc()
		return errors.NewDeliveryError(fmt.Sprintf("chat %d", msg.ChatID), err)
	}
	return nil
}
