package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
)

// SessionStore keeps recorded sessions in process, indexed by quiz.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
	byQuiz   map[string][]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.SessionRecord),
		byQuiz:   make(map[string][]string),
	}
}

func (s *SessionStore) RecordSession(_ context.Context, rec domain.SessionRecord) (string, error) {
	rec.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	s.byQuiz[rec.QuizID] = append(s.byQuiz[rec.QuizID], rec.ID)
	return rec.ID, nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	return rec, nil
}

// QuizSessions lists a quiz's session ids, most recently ended first.
func (s *SessionStore) QuizSessions(_ context.Context, quizID string) ([]string, error) {
	s.mu.RLock()
	recs := make([]domain.SessionRecord, 0, len(s.byQuiz[quizID]))
	for _, id := range s.byQuiz[quizID] {
		recs = append(recs, s.sessions[id])
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].EndedAt.After(recs[j].EndedAt) })
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
