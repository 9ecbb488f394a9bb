package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exam-runner/internal/model"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Load(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveMeta(ctx, 1, 2, model.SessionMeta{TopicID: 3, DurationSeconds: 3600}))
	require.NoError(t, s.SaveRemaining(ctx, 1, 2, 1200))
	require.NoError(t, s.SaveCursor(ctx, 1, 2, 4))
	require.NoError(t, s.SaveAnswers(ctx, 1, 2, map[int]string{5: "C"}))

	ps, err := s.Load(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1200, ps.RemainingSeconds)
	assert.Equal(t, 4, ps.CurrentIndex)
	assert.Equal(t, 3, ps.Meta.TopicID)
	assert.Equal(t, map[int]string{5: "C"}, ps.Answers)

	// Sessions are namespaced by user and exam.
	_, err = s.Load(ctx, 1, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	answers := map[int]string{1: "A"}
	require.NoError(t, s.SaveAnswers(ctx, 1, 2, answers))
	answers[1] = "B"

	ps, err := s.Load(ctx, 1, 2)
	require.NoError(t, err)
	ps.Answers[2] = "D"

	again, err := s.Load(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "A"}, again.Answers)
}

func TestMemoryStoreClearKeepsReview(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveRemaining(ctx, 1, 2, 60))
	require.NoError(t, s.SavePaper(ctx, 1, 2, &model.ExamPaper{ExamID: 2}))
	require.NoError(t, s.SaveReview(ctx, 1, 2, &model.ValidationResult{ExamID: 2}))

	require.NoError(t, s.Clear(ctx, 1, 2))

	_, err := s.Load(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadPaper(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	review, err := s.LoadReview(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, review.ExamID)
}
