package updaterouter

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/common/gateway/gatewaytest"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/payload"
	"helpdesk-bot/internal/common/ratelimit"
	"helpdesk-bot/internal/models"
	"helpdesk-bot/internal/store"
	formflow "helpdesk-bot/internal/workers/intake/form-flow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type call struct {
	Op          string
	Sender      gateway.Sender
	ChatID      int64
	ActionID    string
	Handle      string
	ApplicantID int64
	Kind        models.HelpKind
	Score       int
	Text        string
	Step        models.Step
	HasDeadline bool
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recorder) record(ctx context.Context, c call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, c.HasDeadline = ctx.Deadline()
	r.calls = append(r.calls, c)
	return r.err
}

func (r *recorder) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeForms struct{ recorder }

func (f *fakeForms) Start(ctx context.Context, u gateway.Update) error {
	return f.record(ctx, call{Op: "start", Sender: u.Sender, ChatID: u.ChatID})
}

func (f *fakeForms) Begin(ctx context.Context, u gateway.Update) error {
	return f.record(ctx, call{Op: "begin", Sender: u.Sender, ChatID: u.ChatID})
}

func (f *fakeForms) HandleAnswer(ctx context.Context, s *models.ApplicantSession, text string) error {
	return f.record(ctx, call{Op: "answer", ApplicantID: s.ApplicantID, Step: s.Step, Text: text})
}

type fakeCoordinator struct{ recorder }

func (f *fakeCoordinator) SubmitOffer(ctx context.Context, responder gateway.Sender, actionID string, applicantID int64, kind models.HelpKind) error {
	return f.record(ctx, call{Op: "offer", Sender: responder, ActionID: actionID, ApplicantID: applicantID, Kind: kind})
}

func (f *fakeCoordinator) AcceptOffer(ctx context.Context, applicant gateway.Sender, actionID string, handle string, applicantID int64, kind models.HelpKind) error {
	return f.record(ctx, call{Op: "accept", Sender: applicant, ActionID: actionID, Handle: handle, ApplicantID: applicantID, Kind: kind})
}

func (f *fakeCoordinator) Finish(ctx context.Context, responder gateway.Sender, actionID string, handle string, applicantID int64) error {
	return f.record(ctx, call{Op: "finish", Sender: responder, ActionID: actionID, Handle: handle, ApplicantID: applicantID})
}

func (f *fakeCoordinator) CollectReviewText(ctx context.Context, s *models.ApplicantSession, text string) error {
	return f.record(ctx, call{Op: "review_text", ApplicantID: s.ApplicantID, Step: s.Step, Text: text})
}

func (f *fakeCoordinator) RecordReview(ctx context.Context, reviewer gateway.Sender, chatID int64, actionID string, handle string, score int) error {
	return f.record(ctx, call{Op: "review", Sender: reviewer, ChatID: chatID, ActionID: actionID, Handle: handle, Score: score})
}

type testEnv struct {
	handler     *Handler
	sessions    *store.MemorySessions
	directory   *store.MemoryDirectory
	forms       *fakeForms
	coordinator *fakeCoordinator
	gw          *gatewaytest.Recorder
}

func createTestConfig() *Config {
	return LoadConfig(config.BotConfig{UpdateTimeout: 2000})
}

func createTestEnv(t *testing.T, limiter *ratelimit.SenderLimiter) *testEnv {
	env := &testEnv{
		sessions:    store.NewMemorySessions(),
		directory:   store.NewMemoryDirectory(),
		forms:       &fakeForms{},
		coordinator: &fakeCoordinator{},
		gw:          gatewaytest.NewRecorder(),
	}
	env.handler = NewHandler(createTestConfig(), env.sessions, env.directory, limiter,
		env.forms, env.coordinator, env.gw, nil, logger.NewTestLogger(t))
	return env
}

func textUpdate(senderID int64, handle, text string) gateway.Update {
	return gateway.Update{
		ID:       1,
		Kind:     gateway.KindMessage,
		Sender:   gateway.Sender{ID: senderID, Handle: handle},
		ChatID:   senderID,
		ChatKind: gateway.ChatPrivate,
		Text:     text,
	}
}

func actionUpdate(senderID int64, handle, data string) gateway.Update {
	return gateway.Update{
		ID:       2,
		Kind:     gateway.KindAction,
		Sender:   gateway.Sender{ID: senderID, Handle: handle},
		ChatID:   senderID,
		ChatKind: gateway.ChatPrivate,
		ActionID: "cb-1",
		Payload:  data,
	}
}

func mustEncode(t *testing.T) func(string, error) string {
	return func(s string, err error) string {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

// ==========================
// Config
// ==========================

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(config.BotConfig{})
	assert.Equal(t, defaultUpdateTimeout, cfg.UpdateTimeout)
	assert.True(t, cfg.ConversationChats[gateway.ChatPrivate])
	assert.False(t, cfg.ConversationChats[gateway.ChatGroup])

	cfg = LoadConfig(config.BotConfig{UpdateTimeout: 1500, AllowedChatTypes: []string{"group"}})
	assert.Equal(t, 1500*time.Millisecond, cfg.UpdateTimeout)
	assert.True(t, cfg.ConversationChats[gateway.ChatGroup])
}

// ==========================
// Messages
// ==========================

func TestProcess_StartCommand(t *testing.T) {
	env := createTestEnv(t, nil)
	u := textUpdate(5, "ivan", "/start")
	u.Command = "start"

	disposition, err := env.handler.Process(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, errors.DispositionHandled, disposition)

	calls := env.forms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].Op)
	assert.True(t, calls[0].HasDeadline)
}

func TestProcess_StartButtonBeginsForm(t *testing.T) {
	env := createTestEnv(t, nil)

	_, err := env.handler.Process(context.Background(), textUpdate(5, "ivan", " "+formflow.StartButton+" "))
	require.NoError(t, err)

	calls := env.forms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "begin", calls[0].Op)
	assert.Equal(t, int64(5), calls[0].Sender.ID)
}

func TestProcess_RoutesTextBySessionStep(t *testing.T) {
	tests := []struct {
		name     string
		step     models.Step
		formOp   string
		coordOp  string
		wantText string
	}{
		{"form step", models.StepAwaitingPhone, "answer", "", "8 900 123-45-67"},
		{"username step", models.StepAwaitingUsername, "answer", "", "8 900 123-45-67"},
		{"review text", models.StepAwaitingReviewText, "", "review_text", "8 900 123-45-67"},
		{"review score", models.StepAwaitingReviewScore, "", "review_text", "8 900 123-45-67"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)
			_, err := env.sessions.Begin(context.Background(), 5, "ivan", tt.step)
			require.NoError(t, err)

			_, err = env.handler.Process(context.Background(), textUpdate(5, "ivan", tt.wantText))
			require.NoError(t, err)

			if tt.formOp != "" {
				calls := env.forms.Calls()
				require.Len(t, calls, 1)
				assert.Equal(t, tt.formOp, calls[0].Op)
				assert.Equal(t, tt.step, calls[0].Step)
				assert.Equal(t, tt.wantText, calls[0].Text)
				assert.Empty(t, env.coordinator.Calls())
			} else {
				calls := env.coordinator.Calls()
				require.Len(t, calls, 1)
				assert.Equal(t, tt.coordOp, calls[0].Op)
				assert.Equal(t, tt.wantText, calls[0].Text)
				assert.Empty(t, env.forms.Calls())
			}
		})
	}
}

func TestProcess_IgnoredMessages(t *testing.T) {
	tests := []struct {
		name   string
		update func() gateway.Update
		begin  bool
	}{
		{"no session", func() gateway.Update { return textUpdate(5, "ivan", "hello") }, false},
		{"empty text", func() gateway.Update { return textUpdate(5, "ivan", "   ") }, true},
		{"group chat", func() gateway.Update {
			u := textUpdate(5, "ivan", "hello")
			u.ChatID = -100
			u.ChatKind = gateway.ChatSupergroup
			return u
		}, true},
		{"other update", func() gateway.Update { return gateway.Update{ID: 9, Kind: gateway.KindOther} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)
			if tt.begin {
				_, err := env.sessions.Begin(context.Background(), 5, "ivan", models.StepAwaitingFullName)
				require.NoError(t, err)
			}

			disposition, err := env.handler.Process(context.Background(), tt.update())
			require.NoError(t, err)
			assert.Equal(t, errors.DispositionHandled, disposition)
			assert.Empty(t, env.forms.Calls())
			assert.Empty(t, env.coordinator.Calls())
			assert.Empty(t, env.gw.Sent())
		})
	}
}

func TestProcess_RemembersSenderHandle(t *testing.T) {
	env := createTestEnv(t, nil)

	_, err := env.handler.Process(context.Background(), textUpdate(77, "@Helper", "hi"))
	require.NoError(t, err)

	id, err := env.directory.Resolve(context.Background(), "helper")
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

// ==========================
// Actions
// ==========================

func TestProcess_DispatchesActions(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) string
		want call
	}{
		{
			name: "offer",
			data: func(t *testing.T) string { return mustEncode(t)(payload.EncodeOffer(models.HelpPartial, 42)) },
			want: call{Op: "offer", ApplicantID: 42, Kind: models.HelpPartial},
		},
		{
			name: "accept",
			data: func(t *testing.T) string { return mustEncode(t)(payload.EncodeAccept(models.HelpFull, "helper", 42)) },
			want: call{Op: "accept", Handle: "helper", ApplicantID: 42, Kind: models.HelpFull},
		},
		{
			name: "finish",
			data: func(t *testing.T) string { return mustEncode(t)(payload.EncodeFinish("helper", 42)) },
			want: call{Op: "finish", Handle: "helper", ApplicantID: 42},
		},
		{
			name: "review",
			data: func(t *testing.T) string { return mustEncode(t)(payload.EncodeReview(4, "helper")) },
			want: call{Op: "review", Handle: "helper", Score: 4, ChatID: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)

			_, err := env.handler.Process(context.Background(), actionUpdate(5, "ivan", tt.data(t)))
			require.NoError(t, err)

			calls := env.coordinator.Calls()
			require.Len(t, calls, 1)
			got := calls[0]
			assert.Equal(t, tt.want.Op, got.Op)
			assert.Equal(t, tt.want.Handle, got.Handle)
			assert.Equal(t, tt.want.ApplicantID, got.ApplicantID)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Score, got.Score)
			assert.Equal(t, tt.want.ChatID, got.ChatID)
			assert.Equal(t, "cb-1", got.ActionID)
			assert.Equal(t, int64(5), got.Sender.ID)

			// The coordinator owns the acknowledgement.
			assert.Empty(t, env.gw.Answers())
		})
	}
}

func TestProcess_MalformedPayloadIsDropped(t *testing.T) {
	for _, data := range []string{"", "help_full_42", "of|1:f", "zz|1:a|1:b", "of|1:x|2:42"} {
		t.Run(data, func(t *testing.T) {
			env := createTestEnv(t, nil)

			disposition, err := env.handler.Process(context.Background(), actionUpdate(5, "ivan", data))
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeMalformedPayload, errors.CodeOf(err))
			assert.Equal(t, errors.DispositionDropped, disposition)

			answers := env.gw.Answers()
			require.Len(t, answers, 1)
			assert.Equal(t, "cb-1", answers[0].ActionID)
			assert.Empty(t, answers[0].Text)
			assert.Empty(t, env.coordinator.Calls())
		})
	}
}

// ==========================
// Errors and throttling
// ==========================

func TestProcess_ErrorDispositions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Disposition
	}{
		{"validation", errors.NewFormatError("bad"), errors.DispositionHandled},
		{"delivery", errors.NewDeliveryError("applicant", stderrors.New("blocked")), errors.DispositionHandled},
		{"store", errors.NewStoreError("advance session", stderrors.New("down")), errors.DispositionFailed},
		{"plain", stderrors.New("boom"), errors.DispositionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)
			env.forms.err = tt.err
			_, err := env.sessions.Begin(context.Background(), 5, "ivan", models.StepAwaitingFullName)
			require.NoError(t, err)

			disposition, err := env.handler.Process(context.Background(), textUpdate(5, "ivan", "x"))
			assert.Equal(t, tt.want, disposition)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestProcess_ThrottlesPerSender(t *testing.T) {
	env := createTestEnv(t, ratelimit.New(0.001, 1, time.Minute))
	ctx := context.Background()
	data := mustEncode(t)(payload.EncodeOffer(models.HelpFull, 42))

	_, err := env.handler.Process(ctx, actionUpdate(5, "helper", data))
	require.NoError(t, err)
	_, err = env.handler.Process(ctx, actionUpdate(5, "helper", data))
	require.NoError(t, err)

	// Another sender has its own bucket.
	_, err = env.handler.Process(ctx, actionUpdate(6, "other", data))
	require.NoError(t, err)

	calls := env.coordinator.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(5), calls[0].Sender.ID)
	assert.Equal(t, int64(6), calls[1].Sender.ID)

	answers := env.gw.Answers()
	require.Len(t, answers, 1, "throttled press is acknowledged")
	assert.Empty(t, answers[0].Text)
}

func TestProcess_ThrottledMessageGetsOneNotice(t *testing.T) {
	env := createTestEnv(t, ratelimit.New(0.001, 1, time.Hour))
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env.handler.now = func() time.Time { return clock }

	for _, text := range []string{"first", "second", "third"} {
		_, err := env.handler.Process(ctx, textUpdate(5, "ivan", text))
		require.NoError(t, err)
	}

	sent := env.gw.SentTo(5)
	require.Len(t, sent, 1, "one notice per throttled run")
	assert.Equal(t, MsgSlowDown, sent[0].Text)

	// Group chat text is never answered.
	group := textUpdate(6, "other", "hi")
	group.ChatID = -100
	group.ChatKind = gateway.ChatGroup
	for i := 0; i < 2; i++ {
		_, err := env.handler.Process(ctx, group)
		require.NoError(t, err)
	}
	assert.Empty(t, env.gw.SentTo(-100))

	// Once the bucket refills the sender can be noticed again.
	clock = clock.Add(2 * time.Hour)
	_, err := env.handler.Process(ctx, textUpdate(5, "ivan", "allowed"))
	require.NoError(t, err)
	_, err = env.handler.Process(ctx, textUpdate(5, "ivan", "throttled again"))
	require.NoError(t, err)

	assert.Len(t, env.gw.SentTo(5), 2)
}

// ==========================
// Ingest
// ==========================

const startBody = `{
  "update_id": 100,
  "message": {
    "message_id": 1,
    "date": 1700000000,
    "from": {"id": 5, "is_bot": false, "first_name": "Ivan", "username": "ivan"},
    "chat": {"id": 5, "type": "private"},
    "text": "/start",
    "entities": [{"type": "bot_command", "offset": 0, "length": 6}]
  }
}`

func TestIngest_Success(t *testing.T) {
	env := createTestEnv(t, nil)

	status, body := env.handler.Ingest(context.Background(), []byte(startBody))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	calls := env.forms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].Op)
	assert.Equal(t, "ivan", calls[0].Sender.Handle)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"update_id": `},
		{"missing update id", `{"message": {"message_id": 1, "chat": {"id": 5, "type": "private"}}}`},
		{"callback data too long", `{"update_id": 1, "callback_query": {"id": "q", "from": {"id": 5}, "data": "` + strings.Repeat("x", 65) + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)

			status, body := env.handler.Ingest(context.Background(), []byte(tt.body))
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.True(t, strings.HasPrefix(body, "Error: "), body)
			assert.Empty(t, env.forms.Calls())
		})
	}
}

func TestIngest_ProcessingFailure(t *testing.T) {
	env := createTestEnv(t, nil)
	env.forms.err = errors.NewStoreError("begin session", stderrors.New("redis down"))

	status, body := env.handler.Ingest(context.Background(), []byte(startBody))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "Error: ")
}

func TestIngest_HandledErrorStillOK(t *testing.T) {
	env := createTestEnv(t, nil)
	env.forms.err = errors.NewDeliveryError("applicant", stderrors.New("blocked"))

	status, body := env.handler.Ingest(context.Background(), []byte(startBody))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}
