package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SessionStore writes finished-room records to the quiz_sessions table.
// The full record lives in a JSONB column; the scalar columns back lookups.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) RecordSession(ctx context.Context, rec domain.SessionRecord) (string, error) {
	rec.ID = uuid.NewString()
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_sessions (id, room_code, quiz_id, host_id, started_at, ended_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		rec.ID, rec.RoomCode, rec.QuizID, rec.HostID, rec.StartedAt, rec.EndedAt, string(data),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return rec.ID, nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_sessions WHERE id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return rec, nil
}

// QuizSessions lists the ids recorded for a quiz, newest first.
func (s *SessionStore) QuizSessions(ctx context.Context, quizID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text FROM quiz_sessions WHERE quiz_id=$1 ORDER BY ended_at DESC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
