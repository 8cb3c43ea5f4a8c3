package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/nats-io/nats.go"
)

const (
	DefaultSubject = "quiz.session.recorded"
	DefaultStream  = "QUIZ_SESSIONS"
)

// SessionStore is the durable store the publisher decorates.
type SessionStore interface {
	RecordSession(ctx context.Context, rec domain.SessionRecord) (string, error)
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
	QuizSessions(ctx context.Context, quizID string) ([]string, error)
}

// Publisher is the subset of nats.JetStreamContext used here.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// SessionRecorded is the event body emitted after a session is stored.
type SessionRecorded struct {
	Event   string               `json:"event"`
	Session domain.SessionRecord `json:"session"`
}

// SessionPublisher stores a session, then announces it on JetStream.
// Publishing is best effort: a stored session is never reported as failed.
type SessionPublisher struct {
	store   SessionStore
	js      Publisher
	subject string
	logger  *slog.Logger
}

func NewSessionPublisher(store SessionStore, js Publisher, subject string, logger *slog.Logger) *SessionPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPublisher{store: store, js: js, subject: subject, logger: logger}
}

func (p *SessionPublisher) RecordSession(ctx context.Context, rec domain.SessionRecord) (string, error) {
	id, err := p.store.RecordSession(ctx, rec)
	if err != nil {
		return "", err
	}
	rec.ID = id

	data, err := json.Marshal(SessionRecorded{Event: "session.recorded", Session: rec})
	if err != nil {
		p.logger.Error("encode session event", "session", id, "error", err)
		return id, nil
	}
	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(id)); err != nil {
		p.logger.Warn("publish session event", "session", id, "subject", p.subject, "error", err)
		return id, nil
	}
	p.logger.Debug("session event published", "session", id, "room", rec.RoomCode)
	return id, nil
}

func (p *SessionPublisher) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	return p.store.GetSession(ctx, sessionID)
}

func (p *SessionPublisher) QuizSessions(ctx context.Context, quizID string) ([]string, error) {
	return p.store.QuizSessions(ctx, quizID)
}

// Connect dials NATS with unlimited reconnects and makes sure the session
// stream exists and captures subject.
func Connect(url, stream, subject string) (*nats.Conn, nats.JetStreamContext, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("live-quiz-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js, stream, subject); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, js, nil
}

func ensureStream(js nats.JetStreamContext, stream, subject string) error {
	cfg := streamConfig(stream, subject)
	stream = cfg.Name

	_, err := js.StreamInfo(stream)
	if err == nats.ErrStreamNotFound {
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("add stream %s: %w", stream, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stream info %s: %w", stream, err)
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", stream, err)
	}
	return nil
}

// streamConfig fills in the default stream name and subject.
func streamConfig(stream, subject string) *nats.StreamConfig {
	if stream == "" {
		stream = DefaultStream
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		Replicas: 1,
	}
}
