// Package store persists exam session state per (user, exam) so a reload or
// reconnect resumes the countdown instead of resetting it.
package store

import (
	"context"
	"errors"

	"github.com/stemsi/exam-runner/internal/model"
)

// ErrNotFound is returned when nothing is persisted under the requested key.
var ErrNotFound = errors.New("not found in session store")

// Store is the durable client-side state of exam sessions.
type Store interface {
	// Load returns the persisted session or ErrNotFound.
	Load(ctx context.Context, userID, examID int) (*model.PersistedSession, error)
	SaveMeta(ctx context.Context, userID, examID int, meta model.SessionMeta) error
	SaveRemaining(ctx context.Context, userID, examID, seconds int) error
	SaveCursor(ctx context.Context, userID, examID, index int) error
	// SaveAnswers replaces the whole answer set.
	SaveAnswers(ctx context.Context, userID, examID int, answers map[int]string) error
	SavePaper(ctx context.Context, userID, examID int, paper *model.ExamPaper) error
	LoadPaper(ctx context.Context, userID, examID int) (*model.ExamPaper, error)
	SaveReview(ctx context.Context, userID, examID int, result *model.ValidationResult) error
	LoadReview(ctx context.Context, userID, examID int) (*model.ValidationResult, error)
	// Clear removes the countdown, cursor, answers, paper and meta. The review survives.
	Clear(ctx context.Context, userID, examID int) error
}
