//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newTestRedis(t), time.Hour, time.Minute)
	const user, exam = 9001, 77
	t.Cleanup(func() { _ = s.Clear(ctx, user, exam) })

	_, err := s.Load(ctx, user, exam)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveMeta(ctx, user, exam, model.SessionMeta{TopicID: 2, Filter: "nav"}))
	require.NoError(t, s.SaveRemaining(ctx, user, exam, 321))
	require.NoError(t, s.SaveCursor(ctx, user, exam, 3))
	require.NoError(t, s.SaveAnswers(ctx, user, exam, map[int]string{5: "B", 6: "A"}))
	require.NoError(t, s.SaveAnswers(ctx, user, exam, map[int]string{5: "C"}))

	ps, err := s.Load(ctx, user, exam)
	require.NoError(t, err)
	assert.Equal(t, 321, ps.RemainingSeconds)
	assert.Equal(t, 3, ps.CurrentIndex)
	assert.Equal(t, "nav", ps.Meta.Filter)
	assert.Equal(t, map[int]string{5: "C"}, ps.Answers)

	require.NoError(t, s.SaveReview(ctx, user, exam, &model.ValidationResult{ExamID: exam}))
	require.NoError(t, s.Clear(ctx, user, exam))

	_, err = s.Load(ctx, user, exam)
	assert.ErrorIs(t, err, ErrNotFound)
	review, err := s.LoadReview(ctx, user, exam)
	require.NoError(t, err)
	assert.Equal(t, exam, review.ExamID)
}

func TestRedisStoreSessionKeysExpire(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, time.Hour, time.Minute)
	const user, exam = 9002, 78
	t.Cleanup(func() { _ = s.Clear(ctx, user, exam) })

	require.NoError(t, s.SaveMeta(ctx, user, exam, model.SessionMeta{TopicID: 2}))
	require.NoError(t, s.SaveCursor(ctx, user, exam, 1))
	require.NoError(t, s.SaveAnswers(ctx, user, exam, map[int]string{5: "B"}))
	require.NoError(t, s.SavePaper(ctx, user, exam, &model.ExamPaper{ExamID: exam}))
	require.NoError(t, s.SaveRemaining(ctx, user, exam, 600))

	for _, key := range config.CacheKey.SessionKeys(user, exam) {
		ttl, err := rdb.TTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute, key)
		assert.LessOrEqual(t, ttl, time.Hour, key)
	}
}
