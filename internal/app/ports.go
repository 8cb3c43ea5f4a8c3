package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache is a QuizRepository whose cached copies can be dropped after
// the quiz content changes.
type QuizCache interface {
	QuizRepository
	Invalidate(ctx context.Context, quizID string) error
}

// SessionRecorder is the durable home of finished rooms. RecordSession is
// called at most once per room and returns the stored session id.
type SessionRecorder interface {
	RecordSession(ctx context.Context, rec domain.SessionRecord) (string, error)
}

// SessionReader looks up recorded sessions.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
}

// SessionLister lists the sessions recorded for a quiz, newest first.
type SessionLister interface {
	QuizSessions(ctx context.Context, quizID string) ([]string, error)
}

// SessionStore is a recorder that can also read back what it stored.
type SessionStore interface {
	SessionRecorder
	SessionReader
	SessionLister
}

// CodeReserver claims room codes outside this process (e.g. Redis) so two
// instances never hand out the same code. Reserve reports false when the
// code is already taken.
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}
