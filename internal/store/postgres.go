package store

import (
	"context"
	"database/sql"
	"fmt"

	"helpdesk-bot/internal/models"

	"github.com/google/uuid"
)

const reviewsSchema = `CREATE TABLE IF NOT EXISTS responder_reviews (
	id               UUID PRIMARY KEY,
	responder_handle TEXT        NOT NULL,
	reviewer_id      BIGINT      NOT NULL,
	review_text      TEXT        NOT NULL,
	score            SMALLINT    NOT NULL CHECK (score BETWEEN 1 AND 5),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS responder_reviews_handle_idx ON responder_reviews (responder_handle, created_at)`

// PostgresReviews stores review history in the responder_reviews table.
// Handles are stored as lowercase keys.
type PostgresReviews struct {
	db  *sql.DB
	now clock
}

func NewPostgresReviews(db *sql.DB) *PostgresReviews {
	return &PostgresReviews{db: db, now: systemClock}
}

// EnsureSchema creates the table if it does not exist.
func (p *PostgresReviews) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, reviewsSchema); err != nil {
		return fmt.Errorf("create responder_reviews: %w", err)
	}
	return nil
}

func (p *PostgresReviews) Append(ctx context.Context, review *models.Review) error {
	rec := *review
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now()
	}

	query := `INSERT INTO responder_reviews (id, responder_handle, reviewer_id, review_text, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := p.db.ExecContext(ctx, query,
		rec.ID, models.HandleKey(rec.ResponderHandle), rec.ReviewerID, rec.Text, rec.Score, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	*review = rec
	return nil
}

func (p *PostgresReviews) ListByResponder(ctx context.Context, handle string) ([]models.Review, error) {
	query := `SELECT id, responder_handle, reviewer_id, review_text, score, created_at
		FROM responder_reviews WHERE responder_handle = $1 ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, query, models.HandleKey(handle))
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ResponderHandle, &r.ReviewerID, &r.Text, &r.Score, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return out, nil
}
