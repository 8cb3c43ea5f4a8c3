package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

const (
	maxCodeAttempts = 16
	handoffTimeout  = 10 * time.Second
)

// RegistryOptions configures a Registry. Zero values are usable.
type RegistryOptions struct {
	Logger *slog.Logger
	Now    func() time.Time
	Codes  CodeReserver
	// FinishedTTL is how long a finished room stays addressable. Zero keeps it
	// until Close.
	FinishedTTL time.Duration
	// LobbyTTL evicts rooms that never left the lobby. Zero disables it.
	LobbyTTL time.Duration
	// OnEvict runs after a room is dropped, outside any lock.
	OnEvict func(code string)
}

// QuestionPrompt is the question currently being played.
type QuestionPrompt struct {
	Question      domain.Question
	Index         int
	Total         int
	HostID        string
	RevealAnswers bool
}

// Outcome is what a finished room reports to its participants.
type Outcome struct {
	SessionID   string
	Leaderboard []domain.LeaderboardEntry
	Review      []domain.Question
	HideResults bool
}

// Progress is the result of advancing a room.
type Progress struct {
	Finished bool
	Next     QuestionPrompt // set while questions remain
	Outcome  Outcome        // set once Finished
}

// Registry owns every live room, keyed by its join code. Operations on one
// room are serialized by that room's mutex; the registry lock only guards
// the code map.
type Registry struct {
	quizzes  QuizRepository
	sessions SessionRecorder
	opts     RegistryOptions
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]*room
}

// NewRegistry builds a registry that reads quizzes from quizzes and hands
// finished rooms to sessions.
func NewRegistry(quizzes QuizRepository, sessions SessionRecorder, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		quizzes:  quizzes,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		now:      now,
		rooms:    make(map[string]*room),
	}
}

// Create opens a lobby for quizID hosted by hostID.
func (r *Registry) Create(ctx context.Context, quizID, hostID string) (domain.RoomInfo, error) {
	quiz, err := r.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return domain.RoomInfo{}, err
		}

		r.mu.Lock()
		if _, taken := r.rooms[code]; taken {
			r.mu.Unlock()
			continue
		}
		rm := newRoom(code, quiz, hostID, r.now())
		r.rooms[code] = rm
		r.mu.Unlock()

		if r.opts.Codes != nil {
			ok, err := r.opts.Codes.Reserve(ctx, code)
			if err != nil || !ok {
				r.drop(code)
				if err != nil {
					return domain.RoomInfo{}, err
				}
				continue
			}
		}

		r.logger.Info("room created", "room", code, "quiz", quizID, "host", hostID)
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.infoLocked(), nil
	}
	return domain.RoomInfo{}, domain.ErrCodeSpaceExhausted
}

// Info returns a snapshot of the room.
func (r *Registry) Info(code string) (domain.RoomInfo, error) {
	rm, err := r.room(code)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.infoLocked(), nil
}

// Players returns the live roster.
func (r *Registry) Players(code string) ([]domain.PlayerView, error) {
	rm, err := r.room(code)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.rosterLocked(), nil
}

// Join adds a participant to a lobby. Joining twice returns the existing
// player untouched.
func (r *Registry) Join(code, participantID, displayName string) (domain.Player, error) {
	rm, err := r.room(code)
	if err != nil {
		return domain.Player{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != domain.StateLobby {
		return domain.Player{}, domain.ErrRoomNotJoinable
	}
	if p, ok := rm.players[participantID]; ok {
		return p.snapshot(), nil
	}

	now := r.now()
	rm.joinSeq++
	p := &player{
		id:       participantID,
		name:     displayName,
		answers:  make(map[int][]int),
		seq:      rm.joinSeq,
		joinedAt: now,
	}
	rm.players[participantID] = p
	rm.lastActivity = now
	return p.snapshot(), nil
}

// Leave drops a participant from the live roster and returns who is left.
// After the quiz started the player's accepted answers stay with the room.
func (r *Registry) Leave(code, participantID string) ([]domain.PlayerView, error) {
	rm, err := r.room(code)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if p, ok := rm.players[participantID]; ok {
		delete(rm.players, participantID)
		if rm.state != domain.StateLobby {
			rm.departed[participantID] = p
		}
		rm.lastActivity = r.now()
	}
	return rm.rosterLocked(), nil
}

// Start moves a lobby into play and returns the first question.
func (r *Registry) Start(ctx context.Context, code, hostID string) (QuestionPrompt, error) {
	rm, err := r.room(code)
	if err != nil {
		return QuestionPrompt{}, err
	}

	rm.mu.Lock()
	err = rm.checkHostLocked(hostID)
	if err == nil && rm.state != domain.StateLobby {
		err = domain.ErrRoomNotJoinable
	}
	rm.mu.Unlock()
	if err != nil {
		return QuestionPrompt{}, err
	}

	// Content is fetched without holding the room.
	quiz, err := r.quizzes.GetQuiz(ctx, rm.quizID)
	if err != nil {
		return QuestionPrompt{}, err
	}
	questions := make([]domain.Question, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, cloneQuestion(q.WithDefaults()))
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.state != domain.StateLobby {
		return QuestionPrompt{}, domain.ErrRoomNotJoinable
	}
	if len(questions) == 0 {
		return QuestionPrompt{}, domain.ErrEmptyQuiz
	}

	now := r.now()
	rm.questions = questions
	rm.quizName = quiz.Name
	rm.hideResults = quiz.HideResults
	rm.revealAnswers = quiz.RevealAnswers
	rm.state = domain.StatePlaying
	rm.currentQuestion = 0
	rm.answersReceived = 0
	rm.startedAt = now
	rm.lastActivity = now

	r.logger.Info("quiz started", "room", code, "questions", len(questions), "players", len(rm.players))
	return rm.promptLocked(), nil
}

// Advance scores the current question and moves to the next one. Advancing
// past the last question finishes the room and hands its results off.
func (r *Registry) Advance(ctx context.Context, code, hostID string) (Progress, error) {
	rm, err := r.room(code)
	if err != nil {
		return Progress{}, err
	}

	rm.mu.Lock()
	if err := rm.checkHostLocked(hostID); err != nil {
		rm.mu.Unlock()
		return Progress{}, err
	}
	if rm.state != domain.StatePlaying {
		rm.mu.Unlock()
		return Progress{}, domain.ErrRoomNotPlaying
	}
	scoreCurrentLocked(rm)

	if rm.currentQuestion+1 < len(rm.questions) {
		rm.currentQuestion++
		rm.answersReceived = 0
		rm.lastActivity = r.now()
		next := rm.promptLocked()
		rm.mu.Unlock()
		return Progress{Next: next}, nil
	}

	rec, fire := r.finishLocked(rm)
	rm.mu.Unlock()

	return Progress{Finished: true, Outcome: r.completeHandoff(ctx, rm, rec, fire)}, nil
}

// End finishes the room on the host's request. Ending a lobby closes it
// without a handoff; ending a finished room returns its stored outcome.
func (r *Registry) End(ctx context.Context, code, hostID string) (Outcome, error) {
	rm, err := r.room(code)
	if err != nil {
		return Outcome{}, err
	}

	rm.mu.Lock()
	if err := rm.checkHostLocked(hostID); err != nil {
		rm.mu.Unlock()
		return Outcome{}, err
	}

	var (
		rec  domain.SessionRecord
		fire bool
	)
	switch rm.state {
	case domain.StateFinished:
	case domain.StateLobby:
		r.finishLocked(rm)
	default:
		scoreCurrentLocked(rm)
		rec, fire = r.finishLocked(rm)
	}
	rm.mu.Unlock()

	return r.completeHandoff(ctx, rm, rec, fire), nil
}

// finishLocked freezes the room and trips its handoff latch. It reports
// whether the caller won the latch and must forward rec.
func (r *Registry) finishLocked(rm *room) (domain.SessionRecord, bool) {
	now := r.now()
	wasPlaying := rm.state == domain.StatePlaying
	rm.state = domain.StateFinished
	rm.finishedAt = now
	rm.lastActivity = now
	rm.leaderboard = leaderboardFor(livePlayers(rm.players), len(rm.questions))

	r.logger.Info("quiz finished", "room", rm.code, "question", rm.currentQuestion)
	if !wasPlaying || rm.handoffFired {
		return domain.SessionRecord{}, false
	}
	rm.handoffFired = true
	return assembleSession(rm, now), true
}

// completeHandoff forwards rec when fire is set, then reads the outcome.
func (r *Registry) completeHandoff(ctx context.Context, rm *room, rec domain.SessionRecord, fire bool) Outcome {
	if fire {
		r.handoff(ctx, rm, rec)
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.outcomeLocked()
}

func (r *Registry) handoff(ctx context.Context, rm *room, rec domain.SessionRecord) {
	if r.sessions == nil {
		return
	}
	// The host's connection may go away mid-call; the record still has to land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffTimeout)
	defer cancel()

	id, err := r.sessions.RecordSession(ctx, rec)
	if err != nil {
		r.logger.Error("session handoff failed", "room", rec.RoomCode, "quiz", rec.QuizID, "error", err)
		return
	}

	rm.mu.Lock()
	rm.sessionID = id
	rm.mu.Unlock()
	r.logger.Info("session recorded", "room", rec.RoomCode, "session", id, "participants", len(rec.Participants))
}

// Sweep evicts rooms whose retention elapsed and returns their codes.
func (r *Registry) Sweep(ctx context.Context) []string {
	now := r.now()

	r.mu.RLock()
	candidates := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		candidates = append(candidates, rm)
	}
	r.mu.RUnlock()

	var evicted []string
	for _, rm := range candidates {
		if r.expired(rm, now) {
			r.evict(ctx, rm.code)
			evicted = append(evicted, rm.code)
		}
	}
	return evicted
}

func (r *Registry) expired(rm *room, now time.Time) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	switch rm.state {
	case domain.StateFinished:
		if r.opts.FinishedTTL <= 0 {
			return false
		}
		// An in-flight handoff keeps the room until its session id is known.
		if rm.handoffFired && rm.sessionID == "" && now.Sub(rm.finishedAt) < handoffTimeout {
			return false
		}
		return now.Sub(rm.finishedAt) >= r.opts.FinishedTTL
	case domain.StateLobby:
		return r.opts.LobbyTTL > 0 && now.Sub(rm.lastActivity) >= r.opts.LobbyTTL
	}
	return false
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if evicted := r.Sweep(ctx); len(evicted) > 0 {
				r.logger.Info("rooms evicted", "count", len(evicted))
			}
		}
	}
}

// Close evicts every room.
func (r *Registry) Close(ctx context.Context) {
	r.mu.RLock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	for _, code := range codes {
		r.evict(ctx, code)
	}
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) evict(ctx context.Context, code string) {
	if !r.drop(code) {
		return
	}
	if r.opts.Codes != nil {
		if err := r.opts.Codes.Release(ctx, code); err != nil {
			r.logger.Warn("release room code", "room", code, "error", err)
		}
	}
	if r.opts.OnEvict != nil {
		r.opts.OnEvict(code)
	}
	r.logger.Info("room evicted", "room", code)
}

func (r *Registry) drop(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; !ok {
		return false
	}
	delete(r.rooms, code)
	return true
}

func (r *Registry) room(code string) (*room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return rm, nil
}

func (rm *room) checkHostLocked(hostID string) error {
	if hostID == "" || hostID != rm.hostID {
		return domain.ErrNotAuthorized
	}
	return nil
}

// IsRejection reports whether err is a stale or duplicate submission, which
// callers drop silently.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrStaleQuestionIndex) || errors.Is(err, domain.ErrDuplicateAnswer)
}
