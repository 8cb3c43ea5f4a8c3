package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore persists finished-room records in Redis.
// Records are stored as:  SET   quiz:session:{sessionID} {json} EX ttl
// and indexed per quiz:   LPUSH quiz:{quizID}:sessions {sessionID}
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) RecordSession(ctx context.Context, rec domain.SessionRecord) (string, error) {
	rec.ID = uuid.NewString()
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(rec.ID), payload, s.ttl)
	pipe.LPush(ctx, s.indexKey(rec.QuizID), rec.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(rec.QuizID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return rec.ID, nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if isNil(err) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("decode session: %w", err)
	}
	return rec, nil
}

// QuizSessions lists the ids recorded for a quiz, newest first.
func (s *SessionStore) QuizSessions(ctx context.Context, quizID string) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.indexKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) indexKey(quizID string) string {
	return "quiz:" + quizID + ":sessions"
}
