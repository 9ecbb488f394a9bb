package model

import (
	"sort"
	"time"
)

// SessionPhase enumerates the submission states of an exam session.
type SessionPhase string

const (
	SessionPhaseIdle       SessionPhase = "IDLE"
	SessionPhaseSubmitting SessionPhase = "SUBMITTING"
	SessionPhaseSubmitted  SessionPhase = "SUBMITTED"
	SessionPhaseExited     SessionPhase = "EXITED"
)

// AnsweredEntry is one recorded choice for one question.
type AnsweredEntry struct {
	QuestionID int    `json:"question_id"`
	UserAnswer string `json:"user_answer"`
}

// ExamSession is the client-side state of one timed attempt.
type ExamSession struct {
	UserID           int            `json:"user_id"`
	ExamID           int            `json:"exam_id"`
	TopicID          int            `json:"topic_id,omitempty"`
	Filter           string         `json:"filter,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds"`
	CurrentIndex     int            `json:"current_index"`
	QuestionCount    int            `json:"question_count"`
	Answers          map[int]string `json:"answers"`
	Phase            SessionPhase   `json:"phase"`
	Expired          bool           `json:"expired"`
	Deadline         time.Time      `json:"deadline"`
	LastError        string         `json:"last_error,omitempty"`
}

// AnsweredEntries returns the answers as a slice ordered by question id.
func (s *ExamSession) AnsweredEntries() []AnsweredEntry {
	entries := make([]AnsweredEntry, 0, len(s.Answers))
	for qid, ans := range s.Answers {
		entries = append(entries, AnsweredEntry{QuestionID: qid, UserAnswer: ans})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QuestionID < entries[j].QuestionID
	})
	return entries
}

// SessionMeta is the persisted descriptor of a session, stored next to its
// countdown and answers so a resumed session keeps its topic and filter.
type SessionMeta struct {
	TopicID         int    `json:"topic_id"`
	Filter          string `json:"filter"`
	DurationSeconds int    `json:"duration_seconds"`
}

// PersistedSession is everything the store holds for one (user, exam) pair.
type PersistedSession struct {
	Meta             SessionMeta    `json:"meta"`
	RemainingSeconds int            `json:"remaining_seconds"`
	CurrentIndex     int            `json:"current_index"`
	Answers          map[int]string `json:"answers"`
}

// StartSessionQuery carries the URL parameters a session is opened with.
type StartSessionQuery struct {
	ExamID   int    `form:"exam_id" binding:"required,min=1"`
	TopicID  int    `form:"topic_id" binding:"omitempty,min=0"`
	Duration string `form:"duration"`
	Filter   string `form:"filter" binding:"omitempty,max=64"`
	Reinit   bool   `form:"reinit"`
}

// AnswerRequest is the payload for recording one answer.
type AnswerRequest struct {
	QuestionID int    `json:"question_id" binding:"required,min=1"`
	UserAnswer string `json:"user_answer" binding:"required,max=16"`
}

// CursorRequest is the payload for moving to another question.
type CursorRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}
