package matchcoordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/metrics"
	"helpdesk-bot/internal/common/payload"
	"helpdesk-bot/internal/models"
	"helpdesk-bot/internal/store"
	ratingaggregator "helpdesk-bot/internal/workers/matching/rating-aggregator"
)

const (
	TaskType = "match-coordinator"
)

// Ratings is the part of the rating aggregator the coordinator uses.
type Ratings interface {
	CurrentRating(ctx context.Context, handle string) (int, error)
	RecordReview(ctx context.Context, handle string, reviewerID int64, text string, score int) (*models.Review, error)
}

// Handler runs the offer, acceptance, completion and review handshake.
// Every notification is a single independent attempt; a failed one never
// rolls back state that was already committed.
type Handler struct {
	config      *Config
	sessions    models.SessionRepository
	engagements models.EngagementRepository
	ratings     Ratings
	gw          gateway.Gateway
	logger      logger.Logger
}

func NewHandler(
	config *Config,
	sessions models.SessionRepository,
	engagements models.EngagementRepository,
	ratings Ratings,
	gw gateway.Gateway,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:      config,
		sessions:    sessions,
		engagements: engagements,
		ratings:     ratings,
		gw:          gw,
		logger:      log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// ==========================
// 1. Broadcast
// ==========================

// Broadcast posts the form to the moderation chat with both offer buttons.
func (h *Handler) Broadcast(ctx context.Context, form *models.SubmittedForm) error {
	full, err := payload.EncodeOffer(models.HelpFull, form.RequestID)
	if err != nil {
		return err
	}
	partial, err := payload.EncodeOffer(models.HelpPartial, form.RequestID)
	if err != nil {
		return err
	}

	msg := gateway.OutboundMessage{
		ChatID: h.config.ModerationChatID,
		Text:   renderForm(form),
		HTML:   true,
		Actions: [][]gateway.Action{{
			{Text: BtnOfferFull, Payload: full},
			{Text: BtnOfferPartial, Payload: partial},
		}},
	}
	if err := h.deliver(ctx, targetModeration, msg); err != nil {
		return err
	}

	h.logger.Info("form broadcast", map[string]interface{}{"requestId": form.RequestID})
	return nil
}

func renderForm(form *models.SubmittedForm) string {
	var b strings.Builder
	b.WriteString(MsgFormHeader + "\n\n")
	fmt.Fprintf(&b, "ФИО: %s\n", html.EscapeString(form.FullName))
	fmt.Fprintf(&b, "Статус участника: %s\n", html.EscapeString(form.Status))
	fmt.Fprintf(&b, "Сезон участия: %s\n", html.EscapeString(form.Season))
	fmt.Fprintf(&b, "Телефон: %s\n", html.EscapeString(form.Phone))
	fmt.Fprintf(&b, "Сроки пребывания: %s\n", html.EscapeString(form.Dates))
	fmt.Fprintf(&b, "Запрос: %s\n", html.EscapeString(form.Request))
	fmt.Fprintf(&b, "ID Пользователя: %d\n", form.RequestID)
	if form.Handle != "" {
		fmt.Fprintf(&b, "Telegram: @%s\n", html.EscapeString(form.Handle))
	}
	return b.String()
}

// ==========================
// 2. Offers
// ==========================

// SubmitOffer notifies the applicant that responder is willing to help.
// Responders outside the allow-list are refused and nothing is sent to the
// applicant.
func (h *Handler) SubmitOffer(ctx context.Context, responder gateway.Sender, actionID string, applicantID int64, kind models.HelpKind) error {
	handle := models.NormalizeHandle(responder.Handle)
	fields := map[string]interface{}{
		"applicantId": applicantID,
		"responder":   handle,
		"kind":        string(kind),
	}

	if !h.config.AllowedResponders[models.HandleKey(handle)] {
		metrics.OffersSubmitted.WithLabelValues(string(kind), "unauthorized").Inc()
		err := errors.NewUnauthorizedError(handle)
		h.answer(ctx, actionID, err.Message)
		return err
	}

	rating, err := h.ratings.CurrentRating(ctx, handle)
	if err != nil {
		h.logger.Warn("failed to load rating, showing none", map[string]interface{}{
			"responder": handle,
			"error":     err,
		})
		rating = 0
	}

	accept, err := payload.EncodeAccept(kind, handle, applicantID)
	if err != nil {
		h.answer(ctx, actionID, AnsOfferFailed)
		return err
	}

	msg := gateway.OutboundMessage{
		ChatID:  applicantID,
		Text:    fmt.Sprintf(MsgOfferNotice, ratingaggregator.Stars(rating), kindPhrases[kind]),
		Actions: [][]gateway.Action{{{Text: BtnAccept, Payload: accept}}},
	}
	if err := h.deliver(ctx, targetApplicant, msg); err != nil {
		metrics.OffersSubmitted.WithLabelValues(string(kind), "failed").Inc()
		h.answer(ctx, actionID, AnsOfferFailed)
		return err
	}

	metrics.OffersSubmitted.WithLabelValues(string(kind), "delivered").Inc()
	h.logger.Info("offer delivered", fields)
	h.answer(ctx, actionID, AnsOfferSent)
	return nil
}

// ==========================
// 3. Acceptance
// ==========================

// AcceptOffer records the engagement and then notifies both parties. The
// latest acceptance for an applicant replaces any earlier one.
func (h *Handler) AcceptOffer(ctx context.Context, applicant gateway.Sender, actionID string, responderHandle string, applicantID int64, kind models.HelpKind) error {
	responderHandle = models.NormalizeHandle(responderHandle)

	engagement := &models.Engagement{
		ApplicantID:     applicantID,
		ResponderHandle: responderHandle,
		Kind:            kind,
		State:           models.EngagementAccepted,
	}
	if err := h.engagements.Save(ctx, engagement); err != nil {
		storeErr := errors.NewStoreError("save engagement", err)
		h.answer(ctx, actionID, storeErr.Message)
		return storeErr
	}
	metrics.EngagementsAccepted.Inc()

	h.logger.Info("offer accepted", map[string]interface{}{
		"applicantId": applicantID,
		"responder":   responderHandle,
		"kind":        string(kind),
	})

	contact := h.applicantContact(ctx, applicant, applicantID)
	responderErr := h.notifyResponder(ctx, responderHandle, applicantID, contact)
	if responderErr != nil {
		h.answer(ctx, actionID, AnsSendFailed)
	} else {
		h.answer(ctx, actionID, AnsAccepted)
	}

	applicantErr := h.deliver(ctx, targetApplicant, gateway.Text(applicantID, MsgAcceptedToApplicant))

	if responderErr != nil {
		return responderErr
	}
	return applicantErr
}

func (h *Handler) notifyResponder(ctx context.Context, responderHandle string, applicantID int64, contact string) error {
	chatID, err := h.gw.ResolveHandle(ctx, responderHandle)
	if err != nil {
		metrics.DeliveryFailures.WithLabelValues(targetResponder).Inc()
		h.logger.Warn("cannot resolve responder chat", map[string]interface{}{
			"responder": responderHandle,
			"error":     err,
		})
		return errors.NewDeliveryError("responder @"+responderHandle, err)
	}

	finish, err := payload.EncodeFinish(responderHandle, applicantID)
	if err != nil {
		return err
	}
	return h.deliver(ctx, targetResponder, gateway.OutboundMessage{
		ChatID:  chatID,
		Text:    fmt.Sprintf(MsgAcceptedToResponder, contact),
		Actions: [][]gateway.Action{{{Text: BtnFinish, Payload: finish}}},
	})
}

// applicantContact prefers the sender's handle, then the self-declared one
// from the submitted form, then whatever the platform reports.
func (h *Handler) applicantContact(ctx context.Context, applicant gateway.Sender, applicantID int64) string {
	if handle := models.NormalizeHandle(applicant.Handle); handle != "" {
		return handle
	}
	if form, err := h.sessions.GetForm(ctx, applicantID); err == nil && form.Handle != "" {
		return form.Handle
	}
	if handle, err := h.gw.LookupHandle(ctx, applicantID); err == nil && handle != "" {
		return models.NormalizeHandle(handle)
	}
	return UnknownContact
}

// ==========================
// 4. Completion and review
// ==========================

// Finish closes the engagement and asks the applicant for a review.
func (h *Handler) Finish(ctx context.Context, responder gateway.Sender, actionID string, responderHandle string, applicantID int64) error {
	responderHandle = models.NormalizeHandle(responderHandle)

	if err := h.engagements.UpdateState(ctx, applicantID, models.EngagementCompleted); err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			storeErr := errors.NewStoreError("complete engagement", err)
			h.answer(ctx, actionID, storeErr.Message)
			return storeErr
		}
		h.logger.Warn("finishing without a recorded engagement", map[string]interface{}{
			"applicantId": applicantID,
			"responder":   responderHandle,
		})
	}

	if _, err := h.sessions.Begin(ctx, applicantID, "", models.StepAwaitingReviewText); err != nil {
		storeErr := errors.NewStoreError("begin review", err)
		h.answer(ctx, actionID, storeErr.Message)
		return storeErr
	}
	if err := h.sessions.Advance(ctx, applicantID, models.StepAwaitingReviewText,
		map[models.Field]string{models.FieldReviewTarget: responderHandle}); err != nil {
		storeErr := errors.NewStoreError("begin review", err)
		h.answer(ctx, actionID, storeErr.Message)
		return storeErr
	}

	h.logger.Info("engagement finished", map[string]interface{}{
		"applicantId": applicantID,
		"responder":   responderHandle,
		"finishedBy":  responder.ID,
	})

	if err := h.deliver(ctx, targetApplicant, gateway.Text(applicantID, fmt.Sprintf(MsgReviewPrompt, responderHandle))); err != nil {
		h.answer(ctx, actionID, AnsSendFailed)
		return err
	}
	h.answer(ctx, actionID, "")
	return nil
}

// CollectReviewText stores the applicant's review text and asks for a
// score. Sending text again before scoring replaces it.
func (h *Handler) CollectReviewText(ctx context.Context, session *models.ApplicantSession, text string) error {
	target := session.Fields[models.FieldReviewTarget]
	if target == "" {
		return fmt.Errorf("review session %d has no target", session.ApplicantID)
	}

	if err := h.sessions.Advance(ctx, session.ApplicantID, models.StepAwaitingReviewScore,
		map[models.Field]string{models.FieldReviewText: strings.TrimSpace(text)}); err != nil {
		return errors.NewStoreError("save review text", err)
	}

	row := make([]gateway.Action, 0, models.MaxScore)
	for score := models.MinScore; score <= models.MaxScore; score++ {
		data, err := payload.EncodeReview(score, target)
		if err != nil {
			return err
		}
		row = append(row, gateway.Action{Text: strconv.Itoa(score), Payload: data})
	}

	return h.deliver(ctx, targetApplicant, gateway.OutboundMessage{
		ChatID:  session.ApplicantID,
		Text:    MsgScorePrompt,
		Actions: [][]gateway.Action{row},
	})
}

// RecordReview stores the score with the text collected for the same
// responder, then thanks the reviewer. The responder is not notified.
func (h *Handler) RecordReview(ctx context.Context, reviewer gateway.Sender, chatID int64, actionID string, responderHandle string, score int) error {
	var (
		text          string
		reviewSession bool
	)
	if s, err := h.sessions.Get(ctx, reviewer.ID); err == nil {
		reviewSession = s.Step == models.StepAwaitingReviewText || s.Step == models.StepAwaitingReviewScore
		if reviewSession && models.HandleKey(s.Fields[models.FieldReviewTarget]) == models.HandleKey(responderHandle) {
			text = s.Fields[models.FieldReviewText]
		}
	}

	if _, err := h.ratings.RecordReview(ctx, responderHandle, reviewer.ID, text, score); err != nil {
		h.answer(ctx, actionID, errors.UserMessage(err))
		return err
	}

	if err := h.engagements.UpdateState(ctx, reviewer.ID, models.EngagementReviewed); err != nil && !stderrors.Is(err, store.ErrNotFound) {
		h.logger.Warn("failed to mark engagement reviewed", map[string]interface{}{
			"applicantId": reviewer.ID,
			"error":       err,
		})
	}
	if reviewSession {
		if err := h.sessions.Drop(ctx, reviewer.ID); err != nil {
			h.logger.Warn("failed to drop review session", map[string]interface{}{
				"applicantId": reviewer.ID,
				"error":       err,
			})
		}
	}

	h.answer(ctx, actionID, "")
	if chatID == 0 {
		chatID = reviewer.ID
	}
	return h.deliver(ctx, targetApplicant, gateway.Text(chatID, MsgReviewThanks))
}

// ==========================
// 5. Delivery helpers
// ==========================

func (h *Handler) deliver(ctx context.Context, target string, msg gateway.OutboundMessage) error {
	if err := h.gw.Send(ctx, msg); err != nil {
		metrics.DeliveryFailures.WithLabelValues(target).Inc()
		h.logger.Warn("delivery failed", map[string]interface{}{
			"target": target,
			"chatId": msg.ChatID,
			"error":  err,
		})
		return errors.NewDeliveryError(fmt.Sprintf("%s chat %d", target, msg.ChatID), err)
	}
	return nil
}

// answer acknowledges a button press; failures are only logged.
func (h *Handler) answer(ctx context.Context, actionID, text string) {
	if actionID == "" {
		return
	}
	if err := h.gw.AnswerAction(ctx, actionID, text); err != nil {
		h.logger.Warn("failed to answer action", map[string]interface{}{
			"actionId": actionID,
			"error":    err,
		})
	}
}
