package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/model"
)

// ReviewWriter persists archived reviews.
type ReviewWriter interface {
	Upsert(ctx context.Context, rec *model.ReviewRecord) error
}

type reviewPayload struct {
	ID          string          `json:"id"`
	UserID      int             `json:"user_id"`
	ExamID      int             `json:"exam_id"`
	Percentage  float64         `json:"percentage"`
	Passed      bool            `json:"passed"`
	Result      json.RawMessage `json:"result"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// ReviewQueue pushes graded submissions onto persist_reviews_queue.
type ReviewQueue struct {
	rdb *redis.Client
	now func() time.Time
}

// NewReviewQueue creates a new ReviewQueue.
func NewReviewQueue(rdb *redis.Client) *ReviewQueue {
	return &ReviewQueue{rdb: rdb, now: time.Now}
}

// Enqueue schedules result for archiving.
func (q *ReviewQueue) Enqueue(ctx context.Context, userID int, result *model.ValidationResult) error {
	raw, err := encodeReview(userID, result, q.now())
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistReviewsQueue, raw).Err()
}

func encodeReview(userID int, result *model.ValidationResult, at time.Time) ([]byte, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode review: %w", err)
	}
	return json.Marshal(reviewPayload{
		ID:          uuid.New().String(),
		UserID:      userID,
		ExamID:      result.ExamID,
		Percentage:  result.Score.Percentage,
		Passed:      result.Score.Passed,
		Result:      body,
		SubmittedAt: at.UTC(),
	})
}

func decodeReview(raw string) (*model.ReviewRecord, error) {
	var p reviewPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("review id: %w", err)
	}
	if p.UserID <= 0 || len(p.Result) == 0 {
		return nil, errors.New("review payload is incomplete")
	}
	return &model.ReviewRecord{
		ID:          id,
		UserID:      p.UserID,
		ExamID:      p.ExamID,
		Percentage:  p.Percentage,
		Passed:      p.Passed,
		Result:      p.Result,
		SubmittedAt: p.SubmittedAt,
	}, nil
}

// ReviewWorker consumes persist_reviews_queue and writes reviews to PostgreSQL.
type ReviewWorker struct {
	repo       ReviewWriter
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewReviewWorker creates a new ReviewWorker.
func NewReviewWorker(repo ReviewWriter, rdb *redis.Client, log zerolog.Logger) *ReviewWorker {
	return &ReviewWorker{
		repo:       repo,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "review_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ReviewWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ReviewWorker) processNext(ctx context.Context) {
	queue := config.WorkerKey.PersistReviewsQueue

	result, err := w.rdb.BLPop(ctx, time.Second, queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			// Avoid spinning while Redis is unreachable.
			sleepCtx(ctx, time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	rec, err := decodeReview(result[1])
	if err != nil {
		// Malformed payloads are dropped; retrying would never succeed.
		w.log.Error().Err(err).Msg("Unmarshal error, dropping review")
		return
	}

	if err := w.repo.Upsert(ctx, rec); err != nil {
		w.log.Error().Err(err).
			Int("user_id", rec.UserID).
			Int("exam_id", rec.ExamID).
			Dur("retry_in", w.retryDelay).
			Msg("Persist error, requeueing")
		w.rdb.RPush(context.WithoutCancel(ctx), queue, result[1])
		sleepCtx(ctx, w.retryDelay)
		return
	}

	w.log.Debug().
		Str("review_id", rec.ID.String()).
		Int("user_id", rec.UserID).
		Msg("Review archived")
}

// drain processes all remaining items in the queue before shutdown.
func (w *ReviewWorker) drain(ctx context.Context) {
	queue := config.WorkerKey.PersistReviewsQueue

	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, queue).Result()
		if err != nil {
			break
		}

		rec, err := decodeReview(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.repo.Upsert(ctx, rec); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, queue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining reviews")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
