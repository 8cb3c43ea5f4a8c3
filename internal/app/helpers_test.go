package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type countingRecorder struct {
	mu      sync.Mutex
	records []domain.SessionRecord
	delay   time.Duration
	err     error
}

func (c *countingRecorder) RecordSession(_ context.Context, rec domain.SessionRecord) (string, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	if c.err != nil {
		return "", c.err
	}
	return fmt.Sprintf("sess-%d", len(c.records)), nil
}

func (c *countingRecorder) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *countingRecorder) last() domain.SessionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[len(c.records)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"two": {
			ID:   "two",
			Name: "Two questions",
			Questions: []domain.Question{
				{Text: "Q1", Options: []string{"a", "b", "c"}, Correct: []int{1}, Points: 100},
				{Text: "Q2", Options: []string{"a", "b", "c"}, Correct: []int{0}, Points: 100},
			},
		},
		"multi": {
			ID: "multi",
			Questions: []domain.Question{
				{Text: "Pick evens", Options: []string{"0", "1", "2", "3"}, Correct: []int{0, 2}, Points: 10},
			},
		},
		"ladder": {
			ID: "ladder",
			Questions: []domain.Question{
				{Text: "L1", Options: []string{"x", "y"}, Correct: []int{0}, Points: 10},
				{Text: "L2", Options: []string{"x", "y"}, Correct: []int{0}, Points: 20},
				{Text: "L3", Options: []string{"x", "y"}, Correct: []int{0}, Points: 20},
			},
		},
		"single": {
			ID: "single",
			Questions: []domain.Question{
				{Text: "Only", Options: []string{"yes", "no"}, Correct: []int{0}},
			},
		},
		"empty": {ID: "empty", Name: "Nothing yet"},
	}
}

type fixture struct {
	reg      *app.Registry
	recorder *countingRecorder
	clock    *fakeClock
	evicted  []string
}

func newFixture(t *testing.T, opts app.RegistryOptions) *fixture {
	t.Helper()
	f := &fixture{recorder: &countingRecorder{}, clock: newFakeClock()}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute)
	opts.Logger = quietLogger()
	opts.Now = f.clock.Now
	if opts.OnEvict == nil {
		opts.OnEvict = func(code string) { f.evicted = append(f.evicted, code) }
	}
	f.reg = app.NewRegistry(quizzes, f.recorder, opts)
	return f
}

// playing creates a room for quizID, joins players and starts it.
func (f *fixture) playing(t *testing.T, quizID string, players ...string) string {
	t.Helper()
	ctx := context.Background()
	info, err := f.reg.Create(ctx, quizID, "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range players {
		if _, err := f.reg.Join(info.Code, p, "name-"+p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if _, err := f.reg.Start(ctx, info.Code, "host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return info.Code
}
