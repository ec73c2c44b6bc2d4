package store

import (
	"context"
	"sort"
	"sync"

	"helpdesk-bot/internal/models"

	"github.com/google/uuid"
)

// MemorySessions is the process-lifetime session store. Records are replaced
// whole on every write; readers always get copies.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[int64]*models.ApplicantSession
	forms    map[int64]*models.SubmittedForm
	now      clock
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		sessions: make(map[int64]*models.ApplicantSession),
		forms:    make(map[int64]*models.SubmittedForm),
		now:      systemClock,
	}
}

func (m *MemorySessions) Begin(_ context.Context, applicantID int64, handle string, step models.Step) (*models.ApplicantSession, error) {
	s := &models.ApplicantSession{
		ApplicantID: applicantID,
		Handle:      models.NormalizeHandle(handle),
		Step:        step,
		Fields:      map[models.Field]string{},
		UpdatedAt:   m.now(),
	}

	m.mu.Lock()
	m.sessions[applicantID] = s
	m.mu.Unlock()

	return s.Clone(), nil
}

func (m *MemorySessions) Advance(_ context.Context, applicantID int64, step models.Step, fields map[models.Field]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[applicantID]
	if !ok {
		return ErrNotFound
	}
	next := current.Clone()
	next.Step = step
	for k, v := range fields {
		next.Fields[k] = v
	}
	next.UpdatedAt = m.now()
	m.sessions[applicantID] = next
	return nil
}

func (m *MemorySessions) Get(_ context.Context, applicantID int64) (*models.ApplicantSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[applicantID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessions) Complete(_ context.Context, applicantID int64) (*models.SubmittedForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[applicantID]
	if !ok {
		return nil, ErrNotFound
	}
	form := models.FormFromSession(s, m.now())
	m.forms[applicantID] = form
	delete(m.sessions, applicantID)

	out := *form
	return &out, nil
}

func (m *MemorySessions) GetForm(_ context.Context, applicantID int64) (*models.SubmittedForm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.forms[applicantID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *f
	return &out, nil
}

func (m *MemorySessions) Drop(_ context.Context, applicantID int64) error {
	m.mu.Lock()
	delete(m.sessions, applicantID)
	m.mu.Unlock()
	return nil
}

// MemoryEngagements keeps one engagement per applicant id.
type MemoryEngagements struct {
	mu    sync.RWMutex
	byApp map[int64]models.Engagement
	now   clock
}

func NewMemoryEngagements() *MemoryEngagements {
	return &MemoryEngagements{byApp: make(map[int64]models.Engagement), now: systemClock}
}

func (m *MemoryEngagements) Save(_ context.Context, e *models.Engagement) error {
	rec := *e
	rec.ResponderHandle = models.NormalizeHandle(rec.ResponderHandle)
	if rec.AcceptedAt.IsZero() {
		rec.AcceptedAt = m.now()
	}
	rec.UpdatedAt = m.now()

	m.mu.Lock()
	m.byApp[e.ApplicantID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryEngagements) Get(_ context.Context, applicantID int64) (*models.Engagement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byApp[applicantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryEngagements) UpdateState(_ context.Context, applicantID int64, state models.EngagementState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byApp[applicantID]
	if !ok {
		return ErrNotFound
	}
	e.State = state
	e.UpdatedAt = m.now()
	m.byApp[applicantID] = e
	return nil
}

// MemoryDirectory maps handle keys to chat ids.
type MemoryDirectory struct {
	mu    sync.RWMutex
	byKey map[string]int64
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byKey: make(map[string]int64)}
}

func (m *MemoryDirectory) Remember(_ context.Context, handle string, chatID int64) error {
	key := models.HandleKey(handle)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	m.byKey[key] = chatID
	m.mu.Unlock()
	return nil
}

func (m *MemoryDirectory) Resolve(_ context.Context, handle string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[models.HandleKey(handle)]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

// MemoryReviews is the process-lifetime review history.
type MemoryReviews struct {
	mu       sync.RWMutex
	byHandle map[string][]models.Review
	now      clock
}

func NewMemoryReviews() *MemoryReviews {
	return &MemoryReviews{byHandle: make(map[string][]models.Review), now: systemClock}
}

func (m *MemoryReviews) Append(_ context.Context, review *models.Review) error {
	rec := *review
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	key := models.HandleKey(rec.ResponderHandle)

	m.mu.Lock()
	m.byHandle[key] = append(m.byHandle[key], rec)
	m.mu.Unlock()

	*review = rec
	return nil
}

func (m *MemoryReviews) ListByResponder(_ context.Context, handle string) ([]models.Review, error) {
	m.mu.RLock()
	list := m.byHandle[models.HandleKey(handle)]
	out := make([]models.Review, len(list))
	copy(out, list)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// NopArchive discards forms; used when no archive backend is configured.
type NopArchive struct{}

func (NopArchive) Archive(context.Context, *models.SubmittedForm) error { return nil }
