package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/response"
	"github.com/stemsi/exam-runner/internal/validator"
)

const defaultReviewsPerPage = 20

// ReviewLister reads the review archive.
type ReviewLister interface {
	ListByUser(ctx context.Context, userID, page, perPage int) ([]model.ReviewRecord, int64, error)
}

// ReviewHandler serves the archive of past submissions.
type ReviewHandler struct {
	reviews ReviewLister
	log     zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviews ReviewLister, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		log:     log.With().Str("component", "review_handler").Logger(),
	}
}

// ListReviews godoc
// GET /api/v1/reviews?page=&per_page=
// Lists the caller's archived results, newest first.
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ReviewListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultReviewsPerPage
	}

	reviews, total, err := h.reviews.ListByUser(c.Request.Context(), claims.UserID, q.Page, q.PerPage)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("List reviews failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, reviews, response.NewPagination(q.Page, q.PerPage, total))
}
