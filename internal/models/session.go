package models

import (
	"context"
	"strings"
	"time"
)

// Step is the applicant's position in the conversation.
type Step string

const (
	StepAwaitingUsername    Step = "awaiting_username"
	StepAwaitingFullName    Step = "awaiting_full_name"
	StepAwaitingStatus      Step = "awaiting_status"
	StepAwaitingSeason      Step = "awaiting_season"
	StepAwaitingPhone       Step = "awaiting_phone"
	StepAwaitingDates       Step = "awaiting_dates"
	StepAwaitingRequest     Step = "awaiting_request"
	StepSubmitted           Step = "submitted"
	StepAwaitingReviewText  Step = "awaiting_review_text"
	StepAwaitingReviewScore Step = "awaiting_review_score"
)

// IsFormStep reports whether the step belongs to the intake form.
func (s Step) IsFormStep() bool {
	switch s {
	case StepAwaitingUsername, StepAwaitingFullName, StepAwaitingStatus,
		StepAwaitingSeason, StepAwaitingPhone, StepAwaitingDates, StepAwaitingRequest:
		return true
	default:
		return false
	}
}

// Field names a value collected during the conversation.
type Field string

const (
	FieldHandle       Field = "handle"
	FieldFullName     Field = "full_name"
	FieldStatus       Field = "status"
	FieldSeason       Field = "season"
	FieldPhone        Field = "phone"
	FieldDates        Field = "dates"
	FieldRequest      Field = "request"
	FieldReviewTarget Field = "review_target"
	FieldReviewText   Field = "review_text"
)

// ApplicantSession is the in-progress conversation of one applicant.
// Handle is the stable chat handle, empty when the applicant has none; a
// self-declared handle lives in Fields[FieldHandle].
type ApplicantSession struct {
	ApplicantID int64            `json:"applicantId"`
	Handle      string           `json:"handle,omitempty"`
	Step        Step             `json:"step"`
	Fields      map[Field]string `json:"fields"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy so stored sessions are never shared.
func (s *ApplicantSession) Clone() *ApplicantSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Fields = make(map[Field]string, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	return &out
}

// ResolvedHandle prefers the stable handle over the self-declared one.
func (s *ApplicantSession) ResolvedHandle() string {
	if s.Handle != "" {
		return NormalizeHandle(s.Handle)
	}
	return NormalizeHandle(s.Fields[FieldHandle])
}

// NormalizeHandle strips surrounding space and a leading "@". Case is kept
// for display; use HandleKey for lookups.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// HandleKey is the case-insensitive lookup key for a handle.
func HandleKey(handle string) string {
	return strings.ToLower(NormalizeHandle(handle))
}

// SessionRepository owns applicant sessions and submitted forms, keyed by
// applicant id.
type SessionRepository interface {
	// Begin starts a fresh session, replacing any pending one.
	Begin(ctx context.Context, applicantID int64, handle string, step Step) (*ApplicantSession, error)
	// Advance moves the session to step and merges fields into it; fields
	// not mentioned keep their values.
	Advance(ctx context.Context, applicantID int64, step Step, fields map[Field]string) error
	Get(ctx context.Context, applicantID int64) (*ApplicantSession, error)
	// Complete snapshots the session into a SubmittedForm, stores the form
	// and removes the session.
	Complete(ctx context.Context, applicantID int64) (*SubmittedForm, error)
	GetForm(ctx context.Context, applicantID int64) (*SubmittedForm, error)
	Drop(ctx context.Context, applicantID int64) error
}

// HandleDirectory maps chat handles to chat ids, learned from inbound traffic.
type HandleDirectory interface {
	Remember(ctx context.Context, handle string, chatID int64) error
	Resolve(ctx context.Context, handle string) (int64, error)
}
