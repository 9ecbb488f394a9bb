package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exam-runner/internal/model"
)

// ReviewRepository handles archived exam reviews.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Upsert stores a review. Replaying the same review id is a no-op, so queue
// retries never duplicate rows.
func (r *ReviewRepository) Upsert(ctx context.Context, rec *model.ReviewRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_reviews (id, user_id, exam_id, percentage, passed, result, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.ExamID, rec.Percentage, rec.Passed, rec.Result, rec.SubmittedAt,
	)
	return err
}

// ListByUser returns a page of reviews for a user, newest first, plus the total count.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID, page, perPage int) ([]model.ReviewRecord, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_reviews WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, exam_id, percentage, passed, result, submitted_at
		 FROM exam_reviews
		 WHERE user_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, userID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reviews := []model.ReviewRecord{}
	for rows.Next() {
		var rec model.ReviewRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ExamID, &rec.Percentage, &rec.Passed, &rec.Result, &rec.SubmittedAt); err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, rec)
	}
	return reviews, total, rows.Err()
}
