package store

import (
	"context"
	"sync"

	"github.com/stemsi/exam-runner/internal/model"
)

type memKey struct {
	userID int
	examID int
}

// MemoryStore keeps session state in process memory. State does not survive
// a restart; use it for tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[memKey]*model.PersistedSession
	papers   map[memKey]*model.ExamPaper
	reviews  map[memKey]*model.ValidationResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[memKey]*model.PersistedSession),
		papers:   make(map[memKey]*model.ExamPaper),
		reviews:  make(map[memKey]*model.ValidationResult),
	}
}

func (m *MemoryStore) Load(_ context.Context, userID, examID int) (*model.PersistedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ps, ok := m.sessions[memKey{userID, examID}]
	if !ok {
		return nil, ErrNotFound
	}

	out := *ps
	out.Answers = copyAnswers(ps.Answers)
	return &out, nil
}

func (m *MemoryStore) SaveMeta(_ context.Context, userID, examID int, meta model.SessionMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID, examID).Meta = meta
	return nil
}

func (m *MemoryStore) SaveRemaining(_ context.Context, userID, examID, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID, examID).RemainingSeconds = seconds
	return nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, userID, examID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID, examID).CurrentIndex = index
	return nil
}

func (m *MemoryStore) SaveAnswers(_ context.Context, userID, examID int, answers map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID, examID).Answers = copyAnswers(answers)
	return nil
}

func (m *MemoryStore) SavePaper(_ context.Context, userID, examID int, paper *model.ExamPaper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.papers[memKey{userID, examID}] = paper
	return nil
}

func (m *MemoryStore) LoadPaper(_ context.Context, userID, examID int) (*model.ExamPaper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.papers[memKey{userID, examID}]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) SaveReview(_ context.Context, userID, examID int, result *model.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[memKey{userID, examID}] = result
	return nil
}

func (m *MemoryStore) LoadReview(_ context.Context, userID, examID int) (*model.ValidationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[memKey{userID, examID}]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Clear(_ context.Context, userID, examID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{userID, examID}
	delete(m.sessions, k)
	delete(m.papers, k)
	return nil
}

// entry must be called with mu held.
func (m *MemoryStore) entry(userID, examID int) *model.PersistedSession {
	k := memKey{userID, examID}
	ps, ok := m.sessions[k]
	if !ok {
		ps = &model.PersistedSession{Answers: map[int]string{}}
		m.sessions[k] = ps
	}
	return ps
}

func copyAnswers(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
