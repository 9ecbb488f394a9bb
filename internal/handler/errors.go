package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exam-runner/internal/backend"
	"github.com/stemsi/exam-runner/internal/response"
	"github.com/stemsi/exam-runner/internal/service"
	"github.com/stemsi/exam-runner/internal/session"
)

// errorCode maps a domain error to its HTTP status and API error code.
func errorCode(err error) (int, response.ErrCode) {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, session.ErrSubmissionInFlight):
		return http.StatusConflict, response.ErrSubmissionInFlight
	case errors.Is(err, session.ErrSessionExpired):
		return http.StatusConflict, response.ErrSessionExpired
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, session.ErrInvalidCursor):
		return http.StatusBadRequest, response.ErrInvalidCursor
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrReviewNotFound):
		return http.StatusNotFound, response.ErrReviewNotFound
	case errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500:
		return http.StatusBadGateway, response.ErrBackendRejected
	case errors.Is(err, backend.ErrUnexpectedStatus), errors.Is(err, backend.ErrInvalidResponse):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failErr writes the envelope for err. Upstream failures carry their message
// so the user sees why the exam service refused.
func failErr(c *gin.Context, err error) {
	status, code := errorCode(err)
	switch code {
	case response.ErrBackendRejected, response.ErrBackendUnavailable:
		response.FailWithDetail(c, status, code, err.Error())
	default:
		response.Fail(c, status, code)
	}
}

// examIDParam parses the :exam_id path parameter.
func examIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("exam_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
