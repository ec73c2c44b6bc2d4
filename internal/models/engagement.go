package models

import (
	"context"
	"time"
)

// HelpKind is what a responder offers.
type HelpKind string

const (
	HelpFull    HelpKind = "full"
	HelpPartial HelpKind = "partial"
)

func (k HelpKind) Valid() bool {
	return k == HelpFull || k == HelpPartial
}

// Offer is a responder's declared willingness to help on one form. Offers
// are not stored; each one only produces a notification.
type Offer struct {
	ApplicantID     int64    `json:"applicantId"`
	ResponderHandle string   `json:"responderHandle"`
	Kind            HelpKind `json:"kind"`
}

// EngagementState tracks the handshake after acceptance.
type EngagementState string

const (
	EngagementAccepted  EngagementState = "accepted"
	EngagementCompleted EngagementState = "completed"
	EngagementReviewed  EngagementState = "reviewed"
)

// Engagement is the accepted pairing of applicant and responder. There is
// one record per applicant id; a later acceptance replaces it.
type Engagement struct {
	ApplicantID     int64           `json:"applicantId"`
	ResponderHandle string          `json:"responderHandle"`
	Kind            HelpKind        `json:"kind"`
	State           EngagementState `json:"state"`
	AcceptedAt      time.Time       `json:"acceptedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type EngagementRepository interface {
	Save(ctx context.Context, e *Engagement) error
	Get(ctx context.Context, applicantID int64) (*Engagement, error)
	UpdateState(ctx context.Context, applicantID int64, state EngagementState) error
}
