package formflow

import (
	"context"
	"sync"
	"testing"

	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/gateway"
	"helpdesk-bot/internal/common/gateway/gatewaytest"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/models"
	"helpdesk-bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type recordingBroadcaster struct {
	mu    sync.Mutex
	forms []*models.SubmittedForm
	err   error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, form *models.SubmittedForm) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.forms = append(b.forms, form)
	return nil
}

type recordingArchive struct {
	forms []*models.SubmittedForm
}

func (a *recordingArchive) Archive(_ context.Context, form *models.SubmittedForm) error {
	a.forms = append(a.forms, form)
	return nil
}

type testEnv struct {
	handler     *Handler
	sessions    *store.MemorySessions
	gw          *gatewaytest.Recorder
	broadcaster *recordingBroadcaster
	archive     *recordingArchive
}

func createTestConfig() *Config {
	return LoadConfig(config.BotConfig{AllowedChatTypes: []string{"private"}})
}

func createTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		sessions:    store.NewMemorySessions(),
		gw:          gatewaytest.NewRecorder(),
		broadcaster: &recordingBroadcaster{},
		archive:     &recordingArchive{},
	}
	env.handler = NewHandler(createTestConfig(), env.sessions, env.archive, env.broadcaster, env.gw, logger.NewTestLogger(t))
	return env
}

func privateUpdate(id int64, handle, text string) gateway.Update {
	return gateway.Update{
		Kind:     gateway.KindMessage,
		Sender:   gateway.Sender{ID: id, Handle: handle},
		ChatID:   id,
		ChatKind: gateway.ChatPrivate,
		Text:     text,
	}
}

// answer feeds text to the applicant's current step.
func (e *testEnv) answer(t *testing.T, applicantID int64, text string) error {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), applicantID)
	require.NoError(t, err)
	return e.handler.HandleAnswer(context.Background(), s, text)
}

func (e *testEnv) step(t *testing.T, applicantID int64) models.Step {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), applicantID)
	require.NoError(t, err)
	return s.Step
}

func (e *testEnv) lastText(t *testing.T, chatID int64) string {
	t.Helper()
	msg, ok := e.gw.LastTo(chatID)
	require.True(t, ok, "no message sent to %d", chatID)
	return msg.Text
}

// ==========================
// Start / Begin
// ==========================

func TestStart_PrivateChat(t *testing.T) {
	env := createTestEnv(t)

	require.NoError(t, env.handler.Start(context.Background(), privateUpdate(1, "ivan", "/start")))

	msg, ok := env.gw.LastTo(1)
	require.True(t, ok)
	assert.Equal(t, MsgGreeting, msg.Text)
	assert.Equal(t, [][]string{{StartButton}}, msg.Menu)
}

func TestStartAndBegin_RefusedOutsidePrivateChat(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()

	u := privateUpdate(1, "ivan", "/start")
	u.ChatID = -100
	u.ChatKind = gateway.ChatSupergroup

	require.NoError(t, env.handler.Start(ctx, u))
	assert.Equal(t, MsgPrivateOnly, env.lastText(t, -100))

	u.Text = StartButton
	require.NoError(t, env.handler.Begin(ctx, u))
	assert.Equal(t, MsgPrivateOnly, env.lastText(t, -100))

	_, err := env.sessions.Get(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBegin_WithStableHandleSkipsUsername(t *testing.T) {
	env := createTestEnv(t)

	require.NoError(t, env.handler.Begin(context.Background(), privateUpdate(1, "ivan", StartButton)))

	assert.Equal(t, models.StepAwaitingFullName, env.step(t, 1))
	msg, _ := env.gw.LastTo(1)
	assert.Equal(t, MsgFullNamePrompt, msg.Text)
	assert.True(t, msg.RemoveMenu)
}

func TestBegin_WithoutHandleAsksForOne(t *testing.T) {
	env := createTestEnv(t)

	require.NoError(t, env.handler.Begin(context.Background(), privateUpdate(2, "", StartButton)))

	assert.Equal(t, models.StepAwaitingUsername, env.step(t, 2))
	assert.Equal(t, MsgUsernamePrompt, env.lastText(t, 2))

	err := env.answer(t, 2, "nobody")
	assert.Equal(t, errors.ErrCodeFormat, errors.CodeOf(err))
	assert.Equal(t, MsgUsernameRetry, env.lastText(t, 2))
	assert.Equal(t, models.StepAwaitingUsername, env.step(t, 2))

	require.NoError(t, env.answer(t, 2, "@self_declared"))
	assert.Equal(t, models.StepAwaitingFullName, env.step(t, 2))
	assert.Equal(t, MsgFullNamePrompt, env.lastText(t, 2))
}

func TestBegin_ReplacesPendingSession(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.handler.Begin(ctx, privateUpdate(1, "ivan", StartButton)))
	require.NoError(t, env.answer(t, 1, "Иванов Иван Иванович"))
	require.NoError(t, env.handler.Begin(ctx, privateUpdate(1, "ivan", StartButton)))

	s, err := env.sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepAwaitingFullName, s.Step)
	assert.Empty(t, s.Fields)
}

// ==========================
// Full flow
// ==========================

func TestHandleAnswer_FullFlowWithStableHandle(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()
	const applicant = int64(555)

	require.NoError(t, env.handler.Begin(ctx, privateUpdate(applicant, "ivan_petrov", StartButton)))

	answers := []struct {
		input      string
		wantStep   models.Step
		wantPrompt string
	}{
		{"Иванов Иван Иванович", models.StepAwaitingStatus, MsgStatusPrompt},
		{"Финалист", models.StepAwaitingSeason, MsgSeasonPrompt},
		{"3", models.StepAwaitingPhone, MsgPhonePrompt},
		{"+7 (914) 123-45-67", models.StepAwaitingDates, MsgDatesPrompt},
		{"01.01.2024 - 15.01.2024", models.StepAwaitingRequest, MsgRequestPrompt},
	}
	for _, s := range answers {
		require.NoError(t, env.answer(t, applicant, s.input), s.input)
		assert.Equal(t, s.wantStep, env.step(t, applicant))
		assert.Equal(t, s.wantPrompt, env.lastText(t, applicant))
	}

	require.NoError(t, env.answer(t, applicant, "Маршруты"))

	require.Len(t, env.broadcaster.forms, 1)
	form := env.broadcaster.forms[0]
	assert.Equal(t, applicant, form.RequestID)
	assert.Equal(t, "ivan_petrov", form.Handle)
	assert.Equal(t, "Иванов Иван Иванович", form.FullName)
	assert.Equal(t, "Финалист", form.Status)
	assert.Equal(t, "3", form.Season)
	assert.Equal(t, "+7 (914) 123-45-67", form.Phone)
	assert.Equal(t, "01.01.2024 - 15.01.2024", form.Dates)
	assert.Equal(t, "Маршруты", form.Request)

	require.Len(t, env.archive.forms, 1)

	msg, _ := env.gw.LastTo(applicant)
	assert.Equal(t, MsgSubmitted, msg.Text)
	assert.True(t, msg.RemoveMenu)

	_, err := env.sessions.Get(ctx, applicant)
	assert.ErrorIs(t, err, store.ErrNotFound)
	stored, err := env.sessions.GetForm(ctx, applicant)
	require.NoError(t, err)
	assert.Equal(t, "Маршруты", stored.Request)
}

func TestHandleAnswer_SelfDeclaredHandleReachesForm(t *testing.T) {
	env := createTestEnv(t)
	const applicant = int64(9)

	require.NoError(t, env.handler.Begin(context.Background(), privateUpdate(applicant, "", StartButton)))
	for _, in := range []string{"@Self", "А Б В", "Победитель", "1", "89001234567", "01.01.2024 - 02.01.2024", "Своя просьба"} {
		require.NoError(t, env.answer(t, applicant, in), in)
	}

	require.Len(t, env.broadcaster.forms, 1)
	assert.Equal(t, "Self", env.broadcaster.forms[0].Handle)
	assert.Equal(t, "Своя просьба", env.broadcaster.forms[0].Request)
}

func TestHandleAnswer_MenuPrompts(t *testing.T) {
	env := createTestEnv(t)
	require.NoError(t, env.handler.Begin(context.Background(), privateUpdate(1, "u", StartButton)))

	require.NoError(t, env.answer(t, 1, "А Б В"))
	msg, _ := env.gw.LastTo(1)
	assert.Equal(t, [][]string{StatusOptions}, msg.Menu)

	// Menu values are not enforced.
	require.NoError(t, env.answer(t, 1, "Участник"))
	msg, _ = env.gw.LastTo(1)
	assert.Equal(t, [][]string{SeasonOptions}, msg.Menu)

	require.NoError(t, env.answer(t, 1, "42"))
	msg, _ = env.gw.LastTo(1)
	assert.True(t, msg.RemoveMenu)

	require.NoError(t, env.answer(t, 1, "89001234567"))
	require.NoError(t, env.answer(t, 1, "01.01.2024 - 02.01.2024"))
	msg, _ = env.gw.LastTo(1)
	require.Len(t, msg.Menu, len(RequestOptions))
	assert.Equal(t, "Своё", msg.Menu[len(msg.Menu)-1][0])
}

// ==========================
// Validation re-prompts
// ==========================

func advanceTo(t *testing.T, env *testEnv, applicant int64, target models.Step) {
	t.Helper()
	answers := []string{"Иванов Иван Иванович", "Финалист", "2", "89001234567", "01.01.2024 - 15.01.2024"}
	require.NoError(t, env.handler.Begin(context.Background(), privateUpdate(applicant, "h", StartButton)))
	for _, a := range answers {
		if env.step(t, applicant) == target {
			return
		}
		require.NoError(t, env.answer(t, applicant, a))
	}
	require.Equal(t, target, env.step(t, applicant))
}

func TestHandleAnswer_PhoneRetry(t *testing.T) {
	env := createTestEnv(t)
	advanceTo(t, env, 1, models.StepAwaitingPhone)

	err := env.answer(t, 1, "912345678")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFormat, errors.CodeOf(err))
	assert.Equal(t, "Номер телефона должен начинаться с 7 или 8.", env.lastText(t, 1))
	assert.Equal(t, models.StepAwaitingPhone, env.step(t, 1))

	require.NoError(t, env.answer(t, 1, "89001234567"))
	assert.Equal(t, models.StepAwaitingDates, env.step(t, 1))
}

func TestHandleAnswer_DatesRetry(t *testing.T) {
	env := createTestEnv(t)
	advanceTo(t, env, 1, models.StepAwaitingDates)

	err := env.answer(t, 1, "15.01.2024 - 01.01.2024")
	assert.Equal(t, errors.ErrCodeOrder, errors.CodeOf(err))
	assert.Equal(t, MsgDatesOrder, env.lastText(t, 1))
	assert.Equal(t, models.StepAwaitingDates, env.step(t, 1))

	err = env.answer(t, 1, "01.13.2024 - 02.01.2024")
	assert.Equal(t, errors.ErrCodeFormat, errors.CodeOf(err))
	assert.Equal(t, MsgDatesCalendar, env.lastText(t, 1))
	assert.Equal(t, models.StepAwaitingDates, env.step(t, 1))
}

func TestHandleAnswer_RetryKeepsEarlierFields(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()
	advanceTo(t, env, 1, models.StepAwaitingPhone)

	before, err := env.sessions.Get(ctx, 1)
	require.NoError(t, err)

	_ = env.answer(t, 1, "000")
	_ = env.answer(t, 1, "abc")

	after, err := env.sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.Fields, after.Fields)
	assert.Equal(t, before.Step, after.Step)
	assert.NotContains(t, after.Fields, models.FieldPhone)
}

func TestHandleAnswer_SameStepTwiceWithValidInput(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()
	advanceTo(t, env, 1, models.StepAwaitingFullName)

	s, err := env.sessions.Get(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, env.handler.HandleAnswer(ctx, s, "Первый Первый Первый"))
	// A stale continuation for the same step overwrites only that field.
	require.NoError(t, env.handler.HandleAnswer(ctx, s, "Второй Второй Второй"))

	got, err := env.sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepAwaitingStatus, got.Step)
	assert.Equal(t, "Второй Второй Второй", got.Fields[models.FieldFullName])
	assert.Len(t, got.Fields, 1)
}

func TestHandleAnswer_NotAFormStep(t *testing.T) {
	env := createTestEnv(t)
	err := env.handler.HandleAnswer(context.Background(), &models.ApplicantSession{
		ApplicantID: 1,
		Step:        models.StepAwaitingReviewText,
	}, "text")
	assert.Error(t, err)
}

// ==========================
// Submission failures
// ==========================

func TestSubmit_BroadcastFailureApologizes(t *testing.T) {
	env := createTestEnv(t)
	env.broadcaster.err = errors.NewDeliveryError("moderation", assert.AnError)

	advanceTo(t, env, 1, models.StepAwaitingRequest)
	err := env.answer(t, 1, "Встреча")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDeliveryFailed, errors.CodeOf(err))
	assert.Equal(t, MsgSubmitFailed, env.lastText(t, 1))

	// The form is committed even though the broadcast failed.
	_, err = env.sessions.GetForm(context.Background(), 1)
	assert.NoError(t, err)
}

func TestSend_DeliveryFailure(t *testing.T) {
	env := createTestEnv(t)
	env.gw.FailChat(1, assert.AnError)

	err := env.handler.Start(context.Background(), privateUpdate(1, "ivan", "/start"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDeliveryFailed, errors.CodeOf(err))
}

func TestHandleAnswer_ApplicantsDoNotInterfere(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for id := int64(1); id <= 20; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = env.handler.Begin(ctx, privateUpdate(id, "user", StartButton))
			s, err := env.sessions.Get(ctx, id)
			if err != nil {
				return
			}
			_ = env.handler.HandleAnswer(ctx, s, "Ф И О")
		}(id)
	}
	wg.Wait()

	for id := int64(1); id <= 20; id++ {
		s, err := env.sessions.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StepAwaitingStatus, s.Step)
		assert.Equal(t, "Ф И О", s.Fields[models.FieldFullName])
	}
}
