package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuestionOption is one selectable answer of a question.
type QuestionOption struct {
	Key  string `json:"key" validate:"required,max=16"`
	Text string `json:"text"`
}

// Question is a question as served to the candidate (no correct answer).
type Question struct {
	ID       int              `json:"id" validate:"required,min=1"`
	Text     string           `json:"question_text" validate:"required"`
	Options  []QuestionOption `json:"options" validate:"required,min=1,dive"`
	TopicID  int              `json:"topic_id,omitempty"`
	ImageURL string           `json:"image_url,omitempty" validate:"omitempty,url"`
}

// ExamPaper is the question set returned by the create/reinit endpoints.
type ExamPaper struct {
	ExamID          int        `json:"exam_id" validate:"required,min=1"`
	Title           string     `json:"title"`
	DurationSeconds int        `json:"duration_seconds" validate:"min=0"`
	Questions       []Question `json:"questions" validate:"required,min=1,dive"`
}

// ExamRequest is the body sent to /api/exams/create and /api/exams/reinit.
type ExamRequest struct {
	ExamID  int    `json:"exam_id"`
	TopicID int    `json:"topic_id,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// ValidateRequest is the body sent to /api/exams/validate.
type ValidateRequest struct {
	ExamID int             `json:"exam_id"`
	Filter string          `json:"filter"`
	Data   []AnsweredEntry `json:"data"`
}

// ScoreSummary is the grading summary returned by the validation endpoint.
type ScoreSummary struct {
	Correct    int     `json:"correct" validate:"min=0"`
	Incorrect  int     `json:"incorrect" validate:"min=0"`
	Unanswered int     `json:"unanswered" validate:"min=0"`
	Total      int     `json:"total" validate:"min=0,gtefield=Correct"`
	Percentage float64 `json:"percentage" validate:"min=0,max=100"`
	Passed     bool    `json:"passed"`
}

// QuestionResult is the per-question detail of a validation response.
type QuestionResult struct {
	QuestionID    int    `json:"question_id" validate:"required,min=1"`
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer" validate:"required"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation,omitempty"`
}

// ValidationResult is the graded response consumed by the review view.
type ValidationResult struct {
	ExamID  int              `json:"exam_id" validate:"required,min=1"`
	Score   ScoreSummary     `json:"score"`
	Details []QuestionResult `json:"details" validate:"dive"`
}

// ReviewRecord is an archived validation result.
type ReviewRecord struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int             `json:"user_id"`
	ExamID      int             `json:"exam_id"`
	Percentage  float64         `json:"percentage"`
	Passed      bool            `json:"passed"`
	Result      json.RawMessage `json:"result"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// ReviewListQuery pages through the review archive.
type ReviewListQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}
