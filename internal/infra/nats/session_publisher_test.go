package nats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"github.com/nats-io/nats.go"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "QUIZ_SESSIONS", Sequence: uint64(len(f.payloads))}, nil
}

type failingStore struct {
	*memory.SessionStore
}

func (*failingStore) RecordSession(context.Context, domain.SessionRecord) (string, error) {
	return "", errors.New("db unavailable")
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionPublisherStoresThenPublishes(t *testing.T) {
	store := memory.NewSessionStore()
	pub := &fakePublisher{}
	recorder := NewSessionPublisher(store, pub, "", quiet())

	id, err := recorder.RecordSession(context.Background(), domain.SessionRecord{RoomCode: "ABC123", QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != DefaultSubject {
		t.Fatalf("expected one publish on %s, got %v", DefaultSubject, pub.subjects)
	}

	var event SessionRecorded
	if err := json.Unmarshal(pub.payloads[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Event != "session.recorded" || event.Session.ID != id || event.Session.RoomCode != "ABC123" {
		t.Fatalf("unexpected event %+v", event)
	}

	got, err := recorder.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.QuizID != "quiz-1" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestSessionPublisherToleratesPublishFailure(t *testing.T) {
	store := memory.NewSessionStore()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	recorder := NewSessionPublisher(store, &fakePublisher{err: nats.ErrNoResponders}, "quiz.custom", logger)

	id, err := recorder.RecordSession(context.Background(), domain.SessionRecord{RoomCode: "ABC123"})
	if err != nil {
		t.Fatalf("expected stored session to succeed, got %v", err)
	}
	if _, err := store.GetSession(context.Background(), id); err != nil {
		t.Fatalf("expected session to be stored: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", logs.String(), err)
	}
	if entry["level"] != "WARN" || entry["error"] != nats.ErrNoResponders.Error() {
		t.Fatalf("unexpected warning %v", entry)
	}
}

func TestSessionPublisherSkipsPublishWhenStoreFails(t *testing.T) {
	pub := &fakePublisher{}
	recorder := NewSessionPublisher(&failingStore{SessionStore: memory.NewSessionStore()}, pub, "", quiet())

	if _, err := recorder.RecordSession(context.Background(), domain.SessionRecord{}); err == nil {
		t.Fatalf("expected store error")
	}
	if len(pub.payloads) != 0 {
		t.Fatalf("expected no publish, got %d", len(pub.payloads))
	}
}

func TestStreamConfigDefaults(t *testing.T) {
	cfg := streamConfig("", "")
	if cfg.Name != DefaultStream {
		t.Fatalf("expected stream %q, got %q", DefaultStream, cfg.Name)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != DefaultSubject {
		t.Fatalf("expected subject %q, got %v", DefaultSubject, cfg.Subjects)
	}

	cfg = streamConfig("ROOMS", "rooms.done")
	if cfg.Name != "ROOMS" || cfg.Subjects[0] != "rooms.done" {
		t.Fatalf("explicit values overridden: %+v", cfg)
	}
}
