package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exam-runner/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop())
}

func TestValidateSendsAnswersWithBearer(t *testing.T) {
	var got model.ValidateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exams/validate", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"exam_id": 42,
			"score": {"correct": 1, "incorrect": 0, "unanswered": 1, "total": 2, "percentage": 50, "passed": false},
			"details": [{"question_id": 5, "user_answer": "C", "correct_answer": "C", "is_correct": true}]
		}`))
	})

	res, err := c.Validate(context.Background(), "tok", model.ValidateRequest{
		ExamID: 42,
		Filter: "all",
		Data:   []model.AnsweredEntry{{QuestionID: 5, UserAnswer: "C"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 42, got.ExamID)
	assert.Equal(t, "all", got.Filter)
	assert.Equal(t, []model.AnsweredEntry{{QuestionID: 5, UserAnswer: "C"}}, got.Data)
	assert.Equal(t, 50.0, res.Score.Percentage)
	assert.True(t, res.Details[0].IsCorrect)
}

func TestValidateServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"db down"}`))
	})

	_, err := c.Validate(context.Background(), "tok", model.ValidateRequest{ExamID: 42})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestStatusErrorBodyKeepsWholeRunes(t *testing.T) {
	// 255 ASCII bytes put the first two-byte rune across the cut.
	body := strings.Repeat("a", 255) + strings.Repeat("é", 20)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	})

	_, err := c.Validate(context.Background(), "tok", model.ValidateRequest{ExamID: 42})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, utf8.ValidString(se.Body))
	assert.Equal(t, strings.Repeat("a", 255), se.Body)
	assert.True(t, utf8.ValidString(err.Error()))
}

func TestValidateRejectsMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":           `<html>oops</html>`,
		"wrong exam":         `{"exam_id": 7, "score": {"total": 1}, "details": []}`,
		"bad percentage":     `{"exam_id": 42, "score": {"total": 1, "percentage": 150}, "details": []}`,
		"detail missing key": `{"exam_id": 42, "score": {"total": 1}, "details": [{"question_id": 5}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Validate(context.Background(), "tok", model.ValidateRequest{ExamID: 42})
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestCreateAndReinitExam(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var req model.ExamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.TopicID)

		_, _ = w.Write([]byte(`{
			"exam_id": 42, "title": "Air Law", "duration_seconds": 1800,
			"questions": [{"id": 1, "question_text": "QNH?", "options": [{"key": "A", "text": "x"}, {"key": "B", "text": "y"}]}]
		}`))
	})

	paper, err := c.CreateExam(context.Background(), "tok", model.ExamRequest{ExamID: 42, TopicID: 3})
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 1)
	assert.Equal(t, 1800, paper.DurationSeconds)

	_, err = c.ReinitExam(context.Background(), "tok", model.ExamRequest{ExamID: 42, TopicID: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/exams/create", "/api/exams/reinit"}, paths)
}

func TestCreateExamRejectsEmptyPaper(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"exam_id": 42, "questions": []}`))
	})
	_, err := c.CreateExam(context.Background(), "tok", model.ExamRequest{ExamID: 42})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
