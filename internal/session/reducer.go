// Package session holds the exam session state machine. Reduce is pure: it
// takes the current state and an event and returns the next state together
// with the side effects the owner must carry out (persist, submit, clear).
package session

import (
	"errors"
	"math"
	"time"

	"github.com/stemsi/exam-runner/internal/model"
)

// Reducer errors.
var (
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrSessionExpired     = errors.New("exam time is over")
	ErrNotActive          = errors.New("exam session is no longer active")
	ErrInvalidAnswer      = errors.New("question id and answer are required")
	ErrInvalidCursor      = errors.New("question index out of range")
)

// Effect is a side effect requested by a transition.
type Effect int

const (
	EffectPersistRemaining Effect = iota + 1
	EffectPersistAnswers
	EffectPersistCursor
	EffectSubmit
	EffectStopTimer
	EffectClear
)

func (e Effect) String() string {
	switch e {
	case EffectPersistRemaining:
		return "persist_remaining"
	case EffectPersistAnswers:
		return "persist_answers"
	case EffectPersistCursor:
		return "persist_cursor"
	case EffectSubmit:
		return "submit"
	case EffectStopTimer:
		return "stop_timer"
	case EffectClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// Started arms the countdown from the session's remaining seconds.
type Started struct{ Now time.Time }

// Ticked is one timer tick.
type Ticked struct{ Now time.Time }

// Answered records an answer for a question.
type Answered struct {
	QuestionID int
	Answer     string
}

// Navigated moves the cursor to another question.
type Navigated struct{ Index int }

// SubmitRequested is a manual submit.
type SubmitRequested struct{}

// SubmitSucceeded reports a graded submission.
type SubmitSucceeded struct{}

// SubmitFailed reports a failed submission attempt.
type SubmitFailed struct{ Reason string }

// Exited abandons the session.
type Exited struct{}

func (Started) event()         {}
func (Ticked) event()          {}
func (Answered) event()        {}
func (Navigated) event()       {}
func (SubmitRequested) event() {}
func (SubmitSucceeded) event() {}
func (SubmitFailed) event()    {}
func (Exited) event()          {}

// Transition is the result of applying an event.
type Transition struct {
	State   model.ExamSession
	Effects []Effect
	Err     error
}

// Has reports whether the transition requested effect e.
func (t Transition) Has(e Effect) bool {
	for _, x := range t.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// New returns an idle session with the given countdown.
func New(userID, examID, remaining int) model.ExamSession {
	if remaining < 0 {
		remaining = 0
	}
	return model.ExamSession{
		UserID:           userID,
		ExamID:           examID,
		RemainingSeconds: remaining,
		Answers:          map[int]string{},
		Phase:            model.SessionPhaseIdle,
	}
}

// Reduce applies e to s.
func Reduce(s model.ExamSession, e Event) Transition {
	switch ev := e.(type) {
	case Started:
		return start(s, ev)
	case Ticked:
		return tick(s, ev)
	case Answered:
		return answer(s, ev)
	case Navigated:
		return navigate(s, ev)
	case SubmitRequested:
		return requestSubmit(s)
	case SubmitSucceeded:
		if s.Phase != model.SessionPhaseSubmitting {
			return Transition{State: s, Err: ErrNotActive}
		}
		s.Phase = model.SessionPhaseSubmitted
		s.LastError = ""
		return Transition{State: s, Effects: []Effect{EffectStopTimer, EffectClear}}
	case SubmitFailed:
		if s.Phase != model.SessionPhaseSubmitting {
			return Transition{State: s, Err: ErrNotActive}
		}
		s.Phase = model.SessionPhaseIdle
		s.LastError = ev.Reason
		return Transition{State: s}
	case Exited:
		switch s.Phase {
		case model.SessionPhaseSubmitting:
			return Transition{State: s, Err: ErrSubmissionInFlight}
		case model.SessionPhaseSubmitted, model.SessionPhaseExited:
			return Transition{State: s, Err: ErrNotActive}
		}
		s.Phase = model.SessionPhaseExited
		return Transition{State: s, Effects: []Effect{EffectStopTimer, EffectClear}}
	}
	return Transition{State: s}
}

func terminal(s model.ExamSession) bool {
	return s.Phase == model.SessionPhaseSubmitted || s.Phase == model.SessionPhaseExited
}

func start(s model.ExamSession, ev Started) Transition {
	if terminal(s) {
		return Transition{State: s, Err: ErrNotActive}
	}
	if s.RemainingSeconds < 0 {
		s.RemainingSeconds = 0
	}
	if s.RemainingSeconds > MaxDurationSeconds {
		s.RemainingSeconds = MaxDurationSeconds
	}
	s.Deadline = ev.Now.Add(time.Duration(s.RemainingSeconds) * time.Second)
	if s.RemainingSeconds > 0 {
		return Transition{State: s}
	}
	return expire(s, nil)
}

func tick(s model.ExamSession, ev Ticked) Transition {
	if terminal(s) || s.Expired {
		return Transition{State: s}
	}

	next := s.RemainingSeconds - 1
	if !s.Deadline.IsZero() {
		// Catch up when ticks were delayed; never move backwards.
		left := int(math.Round(s.Deadline.Sub(ev.Now).Seconds()))
		if left < next {
			next = left
		}
	}
	if next < 0 {
		next = 0
	}
	s.RemainingSeconds = next

	effects := []Effect{EffectPersistRemaining}
	if next > 0 {
		return Transition{State: s, Effects: effects}
	}
	return expire(s, effects)
}

// expire marks the session expired and fires the submission unless one is
// already in flight.
func expire(s model.ExamSession, effects []Effect) Transition {
	s.Expired = true
	effects = append(effects, EffectStopTimer)
	if s.Phase == model.SessionPhaseIdle {
		s.Phase = model.SessionPhaseSubmitting
		s.LastError = ""
		effects = append(effects, EffectSubmit)
	}
	return Transition{State: s, Effects: effects}
}

func answer(s model.ExamSession, ev Answered) Transition {
	switch {
	case terminal(s):
		return Transition{State: s, Err: ErrNotActive}
	case s.Expired:
		return Transition{State: s, Err: ErrSessionExpired}
	case s.Phase == model.SessionPhaseSubmitting:
		return Transition{State: s, Err: ErrSubmissionInFlight}
	case ev.QuestionID <= 0 || ev.Answer == "":
		return Transition{State: s, Err: ErrInvalidAnswer}
	}

	answers := make(map[int]string, len(s.Answers)+1)
	for k, v := range s.Answers {
		answers[k] = v
	}
	answers[ev.QuestionID] = ev.Answer
	s.Answers = answers

	return Transition{State: s, Effects: []Effect{EffectPersistAnswers}}
}

func navigate(s model.ExamSession, ev Navigated) Transition {
	if terminal(s) {
		return Transition{State: s, Err: ErrNotActive}
	}
	if ev.Index < 0 || (s.QuestionCount > 0 && ev.Index >= s.QuestionCount) {
		return Transition{State: s, Err: ErrInvalidCursor}
	}
	s.CurrentIndex = ev.Index
	return Transition{State: s, Effects: []Effect{EffectPersistCursor}}
}

func requestSubmit(s model.ExamSession) Transition {
	switch {
	case terminal(s):
		return Transition{State: s, Err: ErrNotActive}
	case s.Phase == model.SessionPhaseSubmitting:
		return Transition{State: s, Err: ErrSubmissionInFlight}
	}
	s.Phase = model.SessionPhaseSubmitting
	s.LastError = ""
	return Transition{State: s, Effects: []Effect{EffectSubmit}}
}
