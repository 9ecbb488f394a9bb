package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/response"
	"github.com/stemsi/exam-runner/internal/service"
	"github.com/stemsi/exam-runner/internal/session"
	"github.com/stemsi/exam-runner/internal/validator"
)

// SessionHandler serves the timed exam session endpoints.
type SessionHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// sessionView is the session as rendered to the exam page.
type sessionView struct {
	Session   model.ExamSession `json:"session"`
	Remaining string            `json:"remaining"`
	Paper     *model.ExamPaper  `json:"paper,omitempty"`
}

func newSessionView(st model.ExamSession, paper *model.ExamPaper) sessionView {
	return sessionView{
		Session:   st,
		Remaining: session.FormatDuration(st.RemainingSeconds),
		Paper:     paper,
	}
}

// StartSession godoc
// POST /api/v1/exams/sessions?exam_id=&topic_id=&duration=&filter=&reinit=
// Opens the session described by the URL parameters, or resumes the one in progress.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.StartSessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.sessionService.Start(c.Request.Context(), service.StartParams{
		UserID:   claims.UserID,
		ExamID:   q.ExamID,
		TopicID:  q.TopicID,
		Duration: q.Duration,
		Filter:   q.Filter,
		Reinit:   q.Reinit,
		Token:    middleware.GetToken(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, newSessionView(ctrl.State(), ctrl.Paper()))
}

// GetSession godoc
// GET /api/v1/exams/:exam_id/session
// Returns the session in progress with its question paper (page reload).
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, newSessionView(ctrl.State(), ctrl.Paper()))
}

// SaveAnswer godoc
// PUT /api/v1/exams/:exam_id/answers
// Records the answer for one question, replacing any earlier answer.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	st, err := ctrl.Answer(c.Request.Context(), req.QuestionID, req.UserAnswer)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, newSessionView(st, nil))
}

// MoveCursor godoc
// PUT /api/v1/exams/:exam_id/cursor
// Moves to another question.
func (h *SessionHandler) MoveCursor(c *gin.Context) {
	var req model.CursorRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	st, err := ctrl.Goto(c.Request.Context(), *req.Index)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, newSessionView(st, nil))
}

// Submit godoc
// POST /api/v1/exams/:exam_id/submit
// Sends the answers for grading. Fails with 409 while a submission is in flight.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	result, err := ctrl.Submit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"review": result})
}

// ExitSession godoc
// DELETE /api/v1/exams/:exam_id/session
// Abandons the session and discards its persisted state.
func (h *SessionHandler) ExitSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Exit(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "exited"})
}

// GetReview godoc
// GET /api/v1/exams/:exam_id/review
// Returns the graded result of the last submission.
func (h *SessionHandler) GetReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Review(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"review": result})
}

// controller resolves the caller's session for :exam_id, writing the error
// response when there is none.
func (h *SessionHandler) controller(c *gin.Context) (*service.SessionController, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	examID, ok := examIDParam(c)
	if !ok {
		return nil, false
	}

	ctrl, err := h.sessionService.Get(c.Request.Context(), claims.UserID, examID, middleware.GetToken(c))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	if status, _ := errorCode(err); status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	failErr(c, err)
}
