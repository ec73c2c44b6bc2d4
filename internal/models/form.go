package models

import (
	"context"
	"time"
)

// SubmittedForm is the immutable snapshot of a completed intake form.
// RequestID equals the applicant id.
type SubmittedForm struct {
	RequestID   int64     `json:"requestId"`
	ApplicantID int64     `json:"applicantId"`
	Handle      string    `json:"handle,omitempty"`
	FullName    string    `json:"fullName"`
	Status      string    `json:"status"`
	Season      string    `json:"season"`
	Phone       string    `json:"phone"`
	Dates       string    `json:"dates"`
	Request     string    `json:"request"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// FormFromSession builds the snapshot for a session.
func FormFromSession(s *ApplicantSession, now time.Time) *SubmittedForm {
	return &SubmittedForm{
		RequestID:   s.ApplicantID,
		ApplicantID: s.ApplicantID,
		Handle:      s.ResolvedHandle(),
		FullName:    s.Fields[FieldFullName],
		Status:      s.Fields[FieldStatus],
		Season:      s.Fields[FieldSeason],
		Phone:       s.Fields[FieldPhone],
		Dates:       s.Fields[FieldDates],
		Request:     s.Fields[FieldRequest],
		SubmittedAt: now.UTC(),
	}
}

// FormArchive keeps a searchable copy of every submitted form.
type FormArchive interface {
	Archive(ctx context.Context, form *SubmittedForm) error
}
