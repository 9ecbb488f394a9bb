package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/session"
	"github.com/stemsi/exam-runner/internal/store"
)

// Domain errors.
var (
	ErrSessionNotFound = errors.New("no exam session in progress")
	ErrReviewNotFound  = errors.New("no review available for this exam")
)

// Backend is the exam REST backend as seen by the runner.
type Backend interface {
	CreateExam(ctx context.Context, token string, req model.ExamRequest) (*model.ExamPaper, error)
	ReinitExam(ctx context.Context, token string, req model.ExamRequest) (*model.ExamPaper, error)
	Validate(ctx context.Context, token string, req model.ValidateRequest) (*model.ValidationResult, error)
}

// ReviewArchiver receives graded submissions for long-term storage.
type ReviewArchiver interface {
	Enqueue(ctx context.Context, userID int, result *model.ValidationResult) error
}

// SessionOptions tunes the timing of exam sessions.
type SessionOptions struct {
	TickInterval           time.Duration
	DefaultDurationSeconds int
	SubmitTimeout          time.Duration
	// Now is the clock used for deadlines. Defaults to time.Now.
	Now func() time.Time
}

// StartParams are the URL parameters and credentials a session is opened with.
type StartParams struct {
	UserID   int
	ExamID   int
	TopicID  int
	Duration string
	Filter   string
	Reinit   bool
	Token    string
}

type sessionKey struct {
	userID int
	examID int
}

// ExamSessionService owns the live session controllers, one per (user, exam).
type ExamSessionService struct {
	store    store.Store
	backend  Backend
	archiver ReviewArchiver
	opts     SessionOptions
	log      zerolog.Logger

	mu          sync.Mutex
	controllers map[sessionKey]*SessionController
	starts      singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	timers  sync.WaitGroup
}

// NewExamSessionService creates a new ExamSessionService. archiver may be nil.
func NewExamSessionService(
	st store.Store,
	backend Backend,
	archiver ReviewArchiver,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.DefaultDurationSeconds <= 0 {
		opts.DefaultDurationSeconds = session.DefaultDurationSeconds
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ExamSessionService{
		store:       st,
		backend:     backend,
		archiver:    archiver,
		opts:        opts,
		log:         log.With().Str("component", "exam_session_service").Logger(),
		controllers: make(map[sessionKey]*SessionController),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Start opens the session for (user, exam). A live session is returned as is,
// a persisted one is resumed from its stored countdown, otherwise a new
// session is created with the requested duration.
func (s *ExamSessionService) Start(ctx context.Context, p StartParams) (*SessionController, error) {
	key := sessionKey{p.UserID, p.ExamID}

	if c := s.live(key); c != nil {
		c.SetToken(p.Token)
		return c, nil
	}

	v, err, _ := s.starts.Do(flightKey(key), func() (interface{}, error) {
		if c := s.live(key); c != nil {
			return c, nil
		}

		ps, err := s.store.Load(ctx, p.UserID, p.ExamID)
		switch {
		case err == nil:
			return s.resume(ctx, key, ps, p.Token, p.Reinit)
		case errors.Is(err, store.ErrNotFound):
			return s.create(ctx, p)
		default:
			return nil, fmt.Errorf("load session: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	c := v.(*SessionController)
	c.SetToken(p.Token)
	return c, nil
}

// Get returns the session for (user, exam), resuming it from the store when
// the runner restarted since it was opened.
func (s *ExamSessionService) Get(ctx context.Context, userID, examID int, token string) (*SessionController, error) {
	key := sessionKey{userID, examID}

	if c := s.live(key); c != nil {
		c.SetToken(token)
		return c, nil
	}

	v, err, _ := s.starts.Do(flightKey(key), func() (interface{}, error) {
		if c := s.live(key); c != nil {
			return c, nil
		}
		ps, err := s.store.Load(ctx, userID, examID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		} else if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		return s.resume(ctx, key, ps, token, false)
	})
	if err != nil {
		return nil, err
	}

	c := v.(*SessionController)
	c.SetToken(token)
	return c, nil
}

// Review returns the stored validation response of the last submission.
func (s *ExamSessionService) Review(ctx context.Context, userID, examID int) (*model.ValidationResult, error) {
	result, err := s.store.LoadReview(ctx, userID, examID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReviewNotFound
	}
	return result, err
}

// Shutdown stops every countdown and waits for in-flight submissions.
// Persisted state is left in place so sessions resume after a restart.
func (s *ExamSessionService) Shutdown() {
	s.cancel()
	s.timers.Wait()

	s.mu.Lock()
	controllers := make([]*SessionController, 0, len(s.controllers))
	for _, c := range s.controllers {
		controllers = append(controllers, c)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		c.Wait()
	}
}

// ActiveSessions returns the number of live controllers.
func (s *ExamSessionService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}

func (s *ExamSessionService) create(ctx context.Context, p StartParams) (*SessionController, error) {
	paper, err := s.backend.CreateExam(ctx, p.Token, model.ExamRequest{
		ExamID:  p.ExamID,
		TopicID: p.TopicID,
		Filter:  p.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	fallback := s.opts.DefaultDurationSeconds
	if paper.DurationSeconds > 0 && paper.DurationSeconds <= session.MaxDurationSeconds {
		fallback = paper.DurationSeconds
	}
	duration := session.ParseDuration(p.Duration, fallback)

	meta := model.SessionMeta{TopicID: p.TopicID, Filter: p.Filter, DurationSeconds: duration}
	if err := s.persistNew(ctx, p.UserID, p.ExamID, meta, paper); err != nil {
		return nil, err
	}

	ps := &model.PersistedSession{Meta: meta, RemainingSeconds: duration, Answers: map[int]string{}}
	s.log.Info().
		Int("user_id", p.UserID).
		Int("exam_id", p.ExamID).
		Int("duration_seconds", duration).
		Int("questions", len(paper.Questions)).
		Msg("Exam session created")

	return s.launch(sessionKey{p.UserID, p.ExamID}, ps, paper, p.Token), nil
}

func (s *ExamSessionService) persistNew(ctx context.Context, userID, examID int, meta model.SessionMeta, paper *model.ExamPaper) error {
	if err := s.store.SaveMeta(ctx, userID, examID, meta); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := s.store.SaveRemaining(ctx, userID, examID, meta.DurationSeconds); err != nil {
		return fmt.Errorf("save remaining: %w", err)
	}
	if err := s.store.SaveCursor(ctx, userID, examID, 0); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	if err := s.store.SaveAnswers(ctx, userID, examID, map[int]string{}); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if err := s.store.SavePaper(ctx, userID, examID, paper); err != nil {
		return fmt.Errorf("save paper: %w", err)
	}
	return nil
}

func (s *ExamSessionService) resume(ctx context.Context, key sessionKey, ps *model.PersistedSession, token string, reinit bool) (*SessionController, error) {
	var paper *model.ExamPaper
	if !reinit {
		p, err := s.store.LoadPaper(ctx, key.userID, key.examID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load paper: %w", err)
		}
		paper = p
	}

	if paper == nil {
		p, err := s.backend.ReinitExam(ctx, token, model.ExamRequest{
			ExamID:  key.examID,
			TopicID: ps.Meta.TopicID,
			Filter:  ps.Meta.Filter,
		})
		if err != nil {
			return nil, fmt.Errorf("reinit exam: %w", err)
		}
		if err := s.store.SavePaper(ctx, key.userID, key.examID, p); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache reinitialised paper")
		}
		paper = p
	}

	s.log.Info().
		Int("user_id", key.userID).
		Int("exam_id", key.examID).
		Int("remaining_seconds", ps.RemainingSeconds).
		Int("answered", len(ps.Answers)).
		Msg("Exam session resumed")

	return s.launch(key, ps, paper, token), nil
}

// launch builds the controller, arms the countdown and registers it.
func (s *ExamSessionService) launch(key sessionKey, ps *model.PersistedSession, paper *model.ExamPaper, token string) *SessionController {
	st := session.New(key.userID, key.examID, ps.RemainingSeconds)
	st.TopicID = ps.Meta.TopicID
	st.Filter = ps.Meta.Filter
	st.CurrentIndex = ps.CurrentIndex
	st.QuestionCount = len(paper.Questions)
	if st.CurrentIndex >= st.QuestionCount {
		st.CurrentIndex = 0
	}
	for qid, ans := range ps.Answers {
		st.Answers[qid] = ans
	}

	c := &SessionController{
		state:         st,
		paper:         paper,
		token:         token,
		store:         s.store,
		backend:       s.backend,
		archiver:      s.archiver,
		now:           s.opts.Now,
		submitTimeout: s.opts.SubmitTimeout,
		subs:          make(map[int]chan SessionEvent),
		onDone:        s.remove,
		log: s.log.With().
			Int("user_id", key.userID).
			Int("exam_id", key.examID).
			Logger(),
	}

	timerCtx, stop := context.WithCancel(s.baseCtx)
	c.stopTimer = stop

	s.mu.Lock()
	s.controllers[key] = c
	s.mu.Unlock()

	// Started may expire a session resumed at zero; that submits right away.
	if running := c.start(timerCtx); running {
		s.timers.Add(1)
		go func() {
			defer s.timers.Done()
			c.run(timerCtx, s.opts.TickInterval)
		}()
	}
	return c
}

// live returns the registered controller for key. A controller that already
// submitted or exited is dropped here, before its own removal has run.
func (s *ExamSessionService) live(key sessionKey) *SessionController {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.controllers[key]
	if c == nil {
		return nil
	}
	if c.Finished() {
		delete(s.controllers, key)
		return nil
	}
	return c
}

func (s *ExamSessionService) remove(c *SessionController) {
	st := c.State()
	key := sessionKey{st.UserID, st.ExamID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controllers[key] == c {
		delete(s.controllers, key)
	}
}

func flightKey(k sessionKey) string {
	return strconv.Itoa(k.userID) + ":" + strconv.Itoa(k.examID)
}
