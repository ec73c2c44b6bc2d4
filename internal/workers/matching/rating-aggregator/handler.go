package ratingaggregator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/metrics"
	"helpdesk-bot/internal/models"
)

const (
	TaskType = "rating-aggregator"
)

// Handler keeps review history and derives a responder's displayed rating.
type Handler struct {
	config  *Config
	reviews models.ReviewRepository
	logger  logger.Logger
	now     func() time.Time
}

func NewHandler(config *Config, reviews models.ReviewRepository, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		reviews: reviews,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordReview appends a review for handle.
func (h *Handler) RecordReview(ctx context.Context, handle string, reviewerID int64, text string, score int) (*models.Review, error) {
	if score < models.MinScore || score > models.MaxScore {
		return nil, fmt.Errorf("score %d out of range %d..%d", score, models.MinScore, models.MaxScore)
	}

	review := &models.Review{
		ResponderHandle: models.NormalizeHandle(handle),
		ReviewerID:      reviewerID,
		Text:            text,
		Score:           score,
		CreatedAt:       h.now(),
	}
	if err := h.reviews.Append(ctx, review); err != nil {
		return nil, errors.NewStoreError("append review", err)
	}

	metrics.ReviewsRecorded.WithLabelValues(strconv.Itoa(score)).Inc()
	h.logger.Info("review recorded", map[string]interface{}{
		"responder": review.ResponderHandle,
		"reviewId":  review.ID,
		"score":     score,
	})
	return review, nil
}

// CurrentRating is the rating shown to applicants, 0 meaning none. The
// placeholder policy always reports 0.
func (h *Handler) CurrentRating(ctx context.Context, handle string) (int, error) {
	if h.config.Policy == config.PolicyPlaceholder {
		return 0, nil
	}

	list, err := h.reviews.ListByResponder(ctx, handle)
	if err != nil {
		return 0, errors.NewStoreError("list reviews", err)
	}

	switch h.config.Policy {
	case config.PolicyLatest:
		return LatestScore(list), nil
	case config.PolicyAverage:
		return AverageScore(list), nil
	default:
		return 0, fmt.Errorf("unknown rating policy %q", h.config.Policy)
	}
}

// LatestScore is the score of the most recent review, or 0.
func LatestScore(reviews []models.Review) int {
	if len(reviews) == 0 {
		return 0
	}
	latest := reviews[0]
	for _, r := range reviews[1:] {
		if !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
		}
	}
	return latest.Score
}

// AverageScore is the mean score rounded half away from zero, or 0.
func AverageScore(reviews []models.Review) int {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Score
	}
	return int(math.Round(float64(sum) / float64(len(reviews))))
}

// Stars renders a rating as repeated stars, or NoRating for 0.
func Stars(rating int) string {
	if rating <= 0 {
		return NoRating
	}
	if rating > models.MaxScore {
		rating = models.MaxScore
	}
	return strings.Repeat(star, rating)
}
