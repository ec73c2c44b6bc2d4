package models

import (
	"context"
	"time"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Review is an applicant's feedback on a responder. Reviews are append-only.
type Review struct {
	ID              string    `json:"id" db:"id"`
	ResponderHandle string    `json:"responderHandle" db:"responder_handle"`
	ReviewerID      int64     `json:"reviewerId" db:"reviewer_id"`
	Text            string    `json:"text" db:"review_text"`
	Score           int       `json:"score" db:"score"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// ReviewRepository stores review history keyed by responder handle. List
// returns reviews oldest first.
type ReviewRepository interface {
	Append(ctx context.Context, review *Review) error
	ListByResponder(ctx context.Context, handle string) ([]Review, error)
}
