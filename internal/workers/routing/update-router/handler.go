package updaterouter

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/metrics"
	"helpdesk-bot/internal/common/observability"
	"helpdesk-bot/internal/common/payload"
	"helpdesk-bot/internal/common/ratelimit"
	"helpdesk-bot/internal/common/validation"
	"helpdesk-bot/internal/models"
	"helpdesk-bot/internal/store"
	formflow "helpdesk-bot/internal/workers/intake/form-flow"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TaskType = "update-router"
)

// FormFlow is the intake side of the bot.
type FormFlow interface {
	Start(ctx context.Context, u gateway.Update) error
	Begin(ctx context.Context, u gateway.Update) error
	HandleAnswer(ctx context.Context, session *models.ApplicantSession, text string) error
}

// Coordinator is the matching side of the bot.
type Coordinator interface {
	SubmitOffer(ctx context.Context, responder gateway.Sender, actionID string, applicantID int64, kind models.HelpKind) error
	AcceptOffer(ctx context.Context, applicant gateway.Sender, actionID string, responderHandle string, applicantID int64, kind models.HelpKind) error
	Finish(ctx context.Context, responder gateway.Sender, actionID string, responderHandle string, applicantID int64) error
	CollectReviewText(ctx context.Context, session *models.ApplicantSession, text string) error
	RecordReview(ctx context.Context, reviewer gateway.Sender, chatID int64, actionID string, responderHandle string, score int) error
}

// Handler classifies inbound updates and hands them to the form flow or
// the coordinator.
type Handler struct {
	config      *Config
	sessions    models.SessionRepository
	directory   models.HandleDirectory
	limiter     *ratelimit.SenderLimiter
	forms       FormFlow
	coordinator Coordinator
	gw          gateway.Gateway
	validator   *validation.Validator
	errHandler  *errors.ErrorHandler
	obs         *observability.Observability
	logger      logger.Logger
	now         func() time.Time

	noticeMu sync.Mutex
	noticed  map[int64]bool
}

// NewHandler wires the router. limiter and obs may be nil.
func NewHandler(
	config *Config,
	sessions models.SessionRepository,
	directory models.HandleDirectory,
	limiter *ratelimit.SenderLimiter,
	forms FormFlow,
	coordinator Coordinator,
	gw gateway.Gateway,
	obs *observability.Observability,
	log logger.Logger,
) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		sessions:    sessions,
		directory:   directory,
		limiter:     limiter,
		forms:       forms,
		coordinator: coordinator,
		gw:          gw,
		validator:   validation.NewEnvelopeValidator(),
		errHandler:  errors.NewErrorHandler(log),
		obs:         obs,
		logger:      log,
		now:         time.Now,
		noticed:     make(map[int64]bool),
	}
}

// ==========================
// 1. Ingestion
// ==========================

// Ingest handles one webhook body and returns the HTTP status and body to
// reply with.
func (h *Handler) Ingest(ctx context.Context, body []byte) (int, string) {
	traceID := uuid.New().String()
	log := h.logger.WithFields(map[string]interface{}{"traceId": traceID})

	if err := h.validator.ValidateEnvelope(body); err != nil {
		log.Warn("rejected webhook body", map[string]interface{}{"error": err})
		return http.StatusInternalServerError, ingestErrorPrefix + err.Error()
	}

	u, err := gateway.DecodeUpdate(body)
	if err != nil {
		log.Warn("failed to decode update", map[string]interface{}{"error": err})
		return http.StatusInternalServerError, ingestErrorPrefix + err.Error()
	}

	disposition, err := h.Process(ctx, u)
	if disposition == errors.DispositionFailed {
		log.Error("update processing failed", map[string]interface{}{
			"updateId": u.ID,
			"error":    err,
		})
		return http.StatusInternalServerError, ingestErrorPrefix + err.Error()
	}

	log.Debug("update ingested", map[string]interface{}{
		"updateId":    u.ID,
		"disposition": disposition.String(),
	})
	return http.StatusOK, ingestOK
}

// Process dispatches one update under the configured timeout, records
// metrics and classifies any error that escaped the handlers.
func (h *Handler) Process(ctx context.Context, u gateway.Update) (errors.Disposition, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.UpdateTimeout)
	defer cancel()

	ctx, span := h.obs.StartSpan(ctx, "update."+string(u.Kind),
		attribute.Int("update.id", u.ID),
		attribute.Int64("sender.id", u.Sender.ID),
	)
	start := h.now()
	route, err := h.dispatch(ctx, u)
	elapsed := h.now().Sub(start)
	span.SetAttributes(attribute.String("route", route))
	observability.EndSpan(span, err)

	fields := map[string]interface{}{
		"updateId": u.ID,
		"senderId": u.Sender.ID,
		"route":    route,
	}
	disposition := h.errHandler.HandleUpdateError(fields, err)

	status := statusOK
	if err != nil {
		status = disposition.String()
	}
	metrics.UpdatesProcessed.WithLabelValues(route, status).Inc()
	metrics.UpdateDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	h.obs.RecordUpdateProcessed(ctx, string(u.Kind), status)
	h.obs.RecordUpdateDuration(ctx, elapsed, string(u.Kind))

	return disposition, err
}

// ==========================
// 2. Dispatch
// ==========================

func (h *Handler) dispatch(ctx context.Context, u gateway.Update) (string, error) {
	h.remember(ctx, u.Sender)

	if !h.limiter.Allow(u.Sender.ID, h.now()) {
		metrics.UpdatesThrottled.Inc()
		h.logger.Debug("update throttled", map[string]interface{}{"senderId": u.Sender.ID})
		switch u.Kind {
		case gateway.KindAction:
			h.answer(ctx, u.ActionID)
		case gateway.KindMessage:
			h.noticeThrottled(ctx, u)
		}
		return routeThrottled, nil
	}
	h.clearNotice(u.Sender.ID)

	switch u.Kind {
	case gateway.KindMessage:
		return h.dispatchMessage(ctx, u)
	case gateway.KindAction:
		return h.dispatchAction(ctx, u)
	default:
		return routeIgnored, nil
	}
}

func (h *Handler) dispatchMessage(ctx context.Context, u gateway.Update) (string, error) {
	text := strings.TrimSpace(u.Text)

	switch {
	case u.Command == startCommand:
		return routeStart, h.forms.Start(ctx, u)
	case text == formflow.StartButton:
		return routeBegin, h.forms.Begin(ctx, u)
	case text == "" || !h.config.ConversationChats[u.ChatKind]:
		return routeIgnored, nil
	}

	session, err := h.sessions.Get(ctx, u.Sender.ID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return routeIgnored, nil
		}
		return routeIgnored, errors.NewStoreError("load session", err)
	}

	switch {
	case session.Step.IsFormStep():
		return routeFormAnswer, h.forms.HandleAnswer(ctx, session, u.Text)
	case session.Step == models.StepAwaitingReviewText, session.Step == models.StepAwaitingReviewScore:
		return routeReviewText, h.coordinator.CollectReviewText(ctx, session, u.Text)
	default:
		return routeIgnored, nil
	}
}

func (h *Handler) dispatchAction(ctx context.Context, u gateway.Update) (string, error) {
	action, err := payload.Decode(u.Payload)
	if err != nil {
		h.answer(ctx, u.ActionID)
		return routeMalformed, err
	}

	switch action.Tag {
	case payload.TagOffer:
		return routeOffer, h.coordinator.SubmitOffer(ctx, u.Sender, u.ActionID, action.ApplicantID, action.Kind)
	case payload.TagAccept:
		return routeAccept, h.coordinator.AcceptOffer(ctx, u.Sender, u.ActionID, action.Handle, action.ApplicantID, action.Kind)
	case payload.TagFinish:
		return routeFinish, h.coordinator.Finish(ctx, u.Sender, u.ActionID, action.Handle, action.ApplicantID)
	case payload.TagReview:
		return routeReviewScore, h.coordinator.RecordReview(ctx, u.Sender, u.ChatID, u.ActionID, action.Handle, action.Score)
	default:
		h.answer(ctx, u.ActionID)
		return routeMalformed, errors.NewMalformedPayloadError(u.Payload, fmt.Sprintf("unhandled tag %q", action.Tag))
	}
}

// remember records the sender's handle so responders can be reached by
// handle later. Private chat ids equal user ids.
func (h *Handler) remember(ctx context.Context, sender gateway.Sender) {
	if sender.Handle == "" || sender.ID == 0 {
		return
	}
	if err := h.directory.Remember(ctx, sender.Handle, sender.ID); err != nil {
		h.logger.Warn("failed to remember handle", map[string]interface{}{
			"senderId": sender.ID,
			"error":    err,
		})
	}
}

// noticeThrottled tells a conversation-chat sender once per throttled run
// that the message was not processed.
func (h *Handler) noticeThrottled(ctx context.Context, u gateway.Update) {
	if strings.TrimSpace(u.Text) == "" || !h.config.ConversationChats[u.ChatKind] {
		return
	}

	h.noticeMu.Lock()
	if h.noticed[u.Sender.ID] {
		h.noticeMu.Unlock()
		return
	}
	h.noticed[u.Sender.ID] = true
	h.noticeMu.Unlock()

	if err := h.gw.Send(ctx, gateway.OutboundMessage{ChatID: u.ChatID, Text: MsgSlowDown}); err != nil {
		h.logger.Warn("failed to send throttle notice", map[string]interface{}{
			"senderId": u.Sender.ID,
			"error":    err,
		})
	}
}

func (h *Handler) clearNotice(senderID int64) {
	h.noticeMu.Lock()
	delete(h.noticed, senderID)
	h.noticeMu.Unlock()
}

// answer clears the button's loading state without a toast.
func (h *Handler) answer(ctx context.Context, actionID string) {
	if actionID == "" {
		return
	}
	if err := h.gw.AnswerAction(ctx, actionID, ""); err != nil {
		h.logger.Warn("failed to answer action", map[string]interface{}{
			"actionId": actionID,
			"error":    err,
		})
	}
}
