package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/session"
	"github.com/stemsi/exam-runner/internal/store"
)

// EventType names a session change pushed to subscribers.
type EventType string

const (
	EventTick       EventType = "tick"
	EventAnswered   EventType = "answered"
	EventCursor     EventType = "cursor"
	EventSubmitting EventType = "submitting"
	EventSubmitted  EventType = "submitted"
	EventError      EventType = "error"
	EventExited     EventType = "exited"
)

// SessionEvent is broadcast to every subscriber of a controller.
type SessionEvent struct {
	Type    EventType               `json:"event"`
	Session model.ExamSession       `json:"session"`
	Review  *model.ValidationResult `json:"review,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

const subscriberBuffer = 16

// SessionController owns the state of one exam attempt. Every mutation goes
// through session.Reduce; the controller carries out the requested effects.
type SessionController struct {
	mu    sync.Mutex
	state model.ExamSession
	paper *model.ExamPaper
	token string

	store    store.Store
	backend  Backend
	archiver ReviewArchiver
	now      func() time.Time
	log      zerolog.Logger

	submitTimeout time.Duration
	submissions   sync.WaitGroup

	stopTimer context.CancelFunc
	onDone    func(*SessionController)

	subs    map[int]chan SessionEvent
	nextSub int
}

// State returns a copy of the current session.
func (c *SessionController) State() model.ExamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Paper returns the question paper of the session.
func (c *SessionController) Paper() *model.ExamPaper {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paper
}

// SetToken records the bearer token used for backend calls, including the
// automatic submission at expiry.
func (c *SessionController) SetToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Answer records the answer for a question, replacing any earlier one.
func (c *SessionController) Answer(ctx context.Context, questionID int, answer string) (model.ExamSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := session.Reduce(c.state, session.Answered{QuestionID: questionID, Answer: answer})
	if tr.Err != nil {
		return c.snapshot(), tr.Err
	}
	c.apply(ctx, tr)
	c.broadcast(SessionEvent{Type: EventAnswered, Session: c.snapshot()})
	return c.snapshot(), nil
}

// Goto moves the cursor to the question at index.
func (c *SessionController) Goto(ctx context.Context, index int) (model.ExamSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := session.Reduce(c.state, session.Navigated{Index: index})
	if tr.Err != nil {
		return c.snapshot(), tr.Err
	}
	c.apply(ctx, tr)
	c.broadcast(SessionEvent{Type: EventCursor, Session: c.snapshot()})
	return c.snapshot(), nil
}

// Tick advances the countdown by one tick. It reports whether the timer
// should keep running.
func (c *SessionController) Tick(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := session.Reduce(c.state, session.Ticked{Now: c.now()})
	if len(tr.Effects) == 0 {
		return !c.state.Expired && !c.terminal()
	}
	c.apply(ctx, tr)
	c.broadcast(SessionEvent{Type: EventTick, Session: c.snapshot()})

	if tr.Has(session.EffectSubmit) {
		c.autoSubmit()
	}
	return !tr.Has(session.EffectStopTimer)
}

// start arms the deadline. It reports whether the countdown has to run.
func (c *SessionController) start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := session.Reduce(c.state, session.Started{Now: c.now()})
	if tr.Err != nil {
		return false
	}
	c.apply(ctx, tr)
	if tr.Has(session.EffectSubmit) {
		c.autoSubmit()
	}
	return !c.state.Expired
}

// autoSubmit fires the submission owed at expiry. Must be called with mu held.
func (c *SessionController) autoSubmit() {
	c.log.Info().Msg("Exam time is over, submitting")
	sub := c.validateRequest()
	c.broadcast(SessionEvent{Type: EventSubmitting, Session: c.snapshot()})

	c.submissions.Add(1)
	go func() {
		defer c.submissions.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
		defer cancel()
		_, _ = c.runSubmission(ctx, sub)
	}()
}

// Submit grades the session. A submit while another one is in flight fails
// with session.ErrSubmissionInFlight and sends no request.
func (c *SessionController) Submit(ctx context.Context) (*model.ValidationResult, error) {
	c.mu.Lock()
	tr := session.Reduce(c.state, session.SubmitRequested{})
	if tr.Err != nil {
		c.mu.Unlock()
		return nil, tr.Err
	}
	c.apply(ctx, tr)
	sub := c.validateRequest()
	c.broadcast(SessionEvent{Type: EventSubmitting, Session: c.snapshot()})
	c.submissions.Add(1)
	c.mu.Unlock()

	defer c.submissions.Done()
	return c.runSubmission(ctx, sub)
}

type submission struct {
	token string
	req   model.ValidateRequest
}

func (c *SessionController) runSubmission(ctx context.Context, sub submission) (*model.ValidationResult, error) {
	result, err := c.backend.Validate(ctx, sub.token, sub.req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msg("Submission failed")
		tr := session.Reduce(c.state, session.SubmitFailed{Reason: err.Error()})
		c.apply(ctx, tr)
		c.broadcast(SessionEvent{Type: EventError, Session: c.snapshot(), Error: err.Error()})
		return nil, err
	}

	// Store the graded response first so the review page never needs a second round-trip.
	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.SaveReview(persistCtx, c.state.UserID, c.state.ExamID, result); err != nil {
		c.log.Error().Err(err).Msg("Failed to store review")
	}
	if c.archiver != nil {
		if err := c.archiver.Enqueue(persistCtx, c.state.UserID, result); err != nil {
			c.log.Warn().Err(err).Msg("Failed to queue review for archiving")
		}
	}

	tr := session.Reduce(c.state, session.SubmitSucceeded{})
	c.apply(persistCtx, tr)

	c.log.Info().
		Int("answered", len(sub.req.Data)).
		Float64("percentage", result.Score.Percentage).
		Msg("Exam submitted and graded")

	c.broadcast(SessionEvent{Type: EventSubmitted, Session: c.snapshot(), Review: result})
	c.finish()
	return result, nil
}

// Exit abandons the session and clears its persisted state.
func (c *SessionController) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := session.Reduce(c.state, session.Exited{})
	if tr.Err != nil {
		return tr.Err
	}
	c.apply(ctx, tr)
	c.broadcast(SessionEvent{Type: EventExited, Session: c.snapshot()})
	c.finish()
	return nil
}

// Subscribe registers a listener. The returned func unsubscribes.
// Events are dropped for subscribers that fall behind.
func (c *SessionController) Subscribe() (<-chan SessionEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan SessionEvent, subscriberBuffer)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Wait blocks until every in-flight submission has finished.
func (c *SessionController) Wait() {
	c.submissions.Wait()
}

// run drives the countdown until the session stops or ctx is cancelled.
func (c *SessionController) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Tick(ctx) {
				return
			}
		}
	}
}

// apply executes the effects of a transition. Must be called with mu held.
// Persistence failures are logged; the in-memory state stays authoritative.
func (c *SessionController) apply(ctx context.Context, tr session.Transition) {
	c.state = tr.State
	s := &c.state

	for _, eff := range tr.Effects {
		var err error
		switch eff {
		case session.EffectPersistRemaining:
			err = c.store.SaveRemaining(ctx, s.UserID, s.ExamID, s.RemainingSeconds)
		case session.EffectPersistAnswers:
			err = c.store.SaveAnswers(ctx, s.UserID, s.ExamID, s.Answers)
		case session.EffectPersistCursor:
			err = c.store.SaveCursor(ctx, s.UserID, s.ExamID, s.CurrentIndex)
		case session.EffectStopTimer:
			if c.stopTimer != nil {
				c.stopTimer()
			}
		case session.EffectClear:
			err = c.store.Clear(ctx, s.UserID, s.ExamID)
		case session.EffectSubmit:
			// Started by the caller, which owns the request context.
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Str("effect", eff.String()).Msg("Failed to persist session state")
		}
	}
}

// validateRequest builds the submission payload. Must be called with mu held.
func (c *SessionController) validateRequest() submission {
	return submission{
		token: c.token,
		req: model.ValidateRequest{
			ExamID: c.state.ExamID,
			Filter: c.state.Filter,
			Data:   c.state.AnsweredEntries(),
		},
	}
}

// broadcast must be called with mu held.
func (c *SessionController) broadcast(ev SessionEvent) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish detaches the controller once the session reached a terminal phase.
// Must be called with mu held.
func (c *SessionController) finish() {
	if c.stopTimer != nil {
		c.stopTimer()
	}
	if c.onDone != nil {
		done := c.onDone
		c.onDone = nil
		go done(c)
	}
}

// Finished reports whether the session was submitted or exited.
func (c *SessionController) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal()
}

func (c *SessionController) terminal() bool {
	return c.state.Phase == model.SessionPhaseSubmitted || c.state.Phase == model.SessionPhaseExited
}

// snapshot must be called with mu held.
func (c *SessionController) snapshot() model.ExamSession {
	out := c.state
	out.Answers = make(map[int]string, len(c.state.Answers))
	for k, v := range c.state.Answers {
		out.Answers[k] = v
	}
	return out
}
