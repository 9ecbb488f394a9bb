package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exam-runner/internal/backend"
	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/handler"
	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/service"
	"github.com/stemsi/exam-runner/internal/store"
	"github.com/stemsi/exam-runner/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	m.Run()
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
	Pagination *struct {
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

type fakeExamBackend struct {
	failValidate atomic.Bool
	validates    atomic.Int32
}

func (b *fakeExamBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/exams/create", "/api/exams/reinit":
		_, _ = w.Write([]byte(`{"exam_id": 42, "title": "Meteorology", "questions": [
			{"id": 5, "question_text": "METAR CAVOK means?"},
			{"id": 7, "question_text": "Dew point?"}
		]}`))
	case "/api/exams/validate":
		b.validates.Add(1)
		if b.failValidate.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req model.ValidateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(model.ValidationResult{
			ExamID: req.ExamID,
			Score:  model.ScoreSummary{Correct: len(req.Data), Total: 2, Percentage: 50},
		})
	default:
		http.NotFound(w, r)
	}
}

type fakeReviews struct{}

func (fakeReviews) ListByUser(_ context.Context, userID, page, perPage int) ([]model.ReviewRecord, int64, error) {
	return []model.ReviewRecord{{UserID: userID, ExamID: 42, Percentage: 50}}, 1, nil
}

type testServer struct {
	engine  *gin.Engine
	backend *fakeExamBackend
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()

	fb := &fakeExamBackend{}
	upstream := httptest.NewServer(fb)
	t.Cleanup(upstream.Close)

	auth := service.NewAuthService("test-secret")
	tok, err := auth.GenerateToken(7, time.Hour)
	require.NoError(t, err)

	svc := service.NewExamSessionService(
		store.NewMemoryStore(),
		backend.NewClient(upstream.URL, 2*time.Second, log),
		nil,
		service.SessionOptions{TickInterval: time.Hour},
		log,
	)
	t.Cleanup(svc.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{GinMode: gin.TestMode}
	engine := SetupRouter(auth, middleware.NewRateLimiter(ctx, 100, time.Minute), &Handlers{
		Session: handler.NewSessionHandler(svc, log),
		Review:  handler.NewReviewHandler(fakeReviews{}, log),
		WS:      handler.NewWSHandler(svc, log, nil),
	}, cfg)

	return &testServer{engine: engine, backend: fb, token: tok}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

type sessionData struct {
	Session   model.ExamSession `json:"session"`
	Remaining string            `json:"remaining"`
	Paper     *model.ExamPaper  `json:"paper"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, env.Metadata.RequestID)
}

func TestSessionRequiresToken(t *testing.T) {
	s := newTestServer(t)
	s.token = ""
	code, env := s.do(t, http.MethodPost, "/api/v1/exams/sessions?exam_id=42", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)
}

func TestStartSessionValidatesQuery(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/exams/sessions?topic_id=3", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "exam_id")
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/exams/sessions?exam_id=42&topic_id=3&duration=00:30:00&filter=all", nil)
	require.Equal(t, http.StatusOK, code)
	started := decode[sessionData](t, env.Data)
	assert.Equal(t, 1800, started.Session.RemainingSeconds)
	assert.Equal(t, "00:30:00", started.Remaining)
	require.NotNil(t, started.Paper)
	assert.Len(t, started.Paper.Questions, 2)

	code, env = s.do(t, http.MethodPut, "/api/v1/exams/42/answers", map[string]interface{}{"question_id": 5, "user_answer": "B"})
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodPut, "/api/v1/exams/42/answers", map[string]interface{}{"question_id": 5, "user_answer": "C"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[int]string{5: "C"}, decode[sessionData](t, env.Data).Session.Answers)

	code, env = s.do(t, http.MethodPut, "/api/v1/exams/42/cursor", map[string]interface{}{"index": 9})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_CURSOR", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/exams/42/session", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "C", decode[sessionData](t, env.Data).Session.Answers[5])

	code, env = s.do(t, http.MethodPost, "/api/v1/exams/42/submit", nil)
	require.Equal(t, http.StatusOK, code)
	graded := decode[struct {
		Review model.ValidationResult `json:"review"`
	}](t, env.Data)
	assert.Equal(t, 1, graded.Review.Score.Correct)

	code, _ = s.do(t, http.MethodGet, "/api/v1/exams/42/review", nil)
	assert.Equal(t, http.StatusOK, code)

	assert.Eventually(t, func() bool {
		code, _ := s.do(t, http.MethodGet, "/api/v1/exams/42/session", nil)
		return code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitBackendFailureKeepsSession(t *testing.T) {
	s := newTestServer(t)
	s.backend.failValidate.Store(true)

	code, _ := s.do(t, http.MethodPost, "/api/v1/exams/sessions?exam_id=42", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPut, "/api/v1/exams/42/answers", map[string]interface{}{"question_id": 7, "user_answer": "A"})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/exams/42/submit", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "BACKEND_UNAVAILABLE", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/exams/42/session", nil)
	require.Equal(t, http.StatusOK, code)
	st := decode[sessionData](t, env.Data).Session
	assert.Equal(t, model.SessionPhaseIdle, st.Phase)
	assert.Equal(t, "A", st.Answers[7])

	s.backend.failValidate.Store(false)
	code, _ = s.do(t, http.MethodPost, "/api/v1/exams/42/submit", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int32(2), s.backend.validates.Load())
}

func TestMissingSessionAndReview(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/exams/42/session", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/exams/42/review", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "REVIEW_NOT_FOUND", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/exams/abc/session", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestListReviews(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/reviews?page=1&per_page=10", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalItems)

	code, _ = s.do(t, http.MethodGet, "/api/v1/reviews?per_page=1000", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExamStream(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/exams/sessions?exam_id=42", nil)
	require.Equal(t, http.StatusOK, code)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/42/stream?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "snapshot", read()["event"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "answer", "question_id": 5, "user_answer": "D"}))
	msg := read()
	assert.Equal(t, "answered", msg["event"])
	answers := msg["session"].(map[string]interface{})["answers"].(map[string]interface{})
	assert.Equal(t, "D", answers["5"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "goto", "index": 5}))
	msg = read()
	assert.Equal(t, "error", msg["event"])
	assert.Equal(t, "INVALID_CURSOR", msg["code"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "ping"}))
	assert.Equal(t, "pong", read()["event"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "shuffle"}))
	msg = read()
	assert.Equal(t, "error", msg["event"])
	assert.Equal(t, "INVALID_PAYLOAD", msg["code"])
	assert.Equal(t, "unknown action: shuffle", msg["error"])
}

func TestExamStreamWithoutSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/42/stream?token=" + s.token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
