package app

import (
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// room is the live state of one quiz instance. Every field below mu is
// guarded by it; the registry never touches them without holding it.
type room struct {
	code   string
	quizID string
	hostID string

	mu              sync.Mutex
	quizName        string
	hideResults     bool
	revealAnswers   bool
	questionCount   int // as seen at create time, replaced by len(questions) on start
	questions       []domain.Question
	state           domain.RoomState
	currentQuestion int
	answersReceived int
	players         map[string]*player
	departed        map[string]*player // left after start; still part of the handoff
	scored          map[int]struct{}
	joinSeq         uint64
	createdAt       time.Time
	startedAt       time.Time
	finishedAt      time.Time
	lastActivity    time.Time
	handoffFired    bool
	sessionID       string
	leaderboard     []domain.LeaderboardEntry // frozen on finish
}

type player struct {
	id          string
	name        string
	score       int
	correct     int
	tabSwitches int
	answers     map[int][]int
	seq         uint64
	joinedAt    time.Time
}

func newRoom(code string, quiz domain.Quiz, hostID string, now time.Time) *room {
	return &room{
		code:          code,
		quizID:        quiz.ID,
		hostID:        hostID,
		quizName:      quiz.Name,
		hideResults:   quiz.HideResults,
		revealAnswers: quiz.RevealAnswers,
		questionCount: len(quiz.Questions),
		state:         domain.StateLobby,
		players:       make(map[string]*player),
		departed:      make(map[string]*player),
		scored:        make(map[int]struct{}),
		createdAt:     now,
		lastActivity:  now,
	}
}

func (rm *room) totalQuestionsLocked() int {
	if rm.questions != nil {
		return len(rm.questions)
	}
	return rm.questionCount
}

// everyoneLocked returns live and departed players.
func (rm *room) everyoneLocked() []*player {
	all := make([]*player, 0, len(rm.players)+len(rm.departed))
	for _, p := range rm.players {
		all = append(all, p)
	}
	for _, p := range rm.departed {
		all = append(all, p)
	}
	return all
}

func (rm *room) rosterLocked() []domain.PlayerView {
	ranked := rankPlayers(livePlayers(rm.players))
	views := make([]domain.PlayerView, 0, len(ranked))
	for _, p := range ranked {
		views = append(views, domain.PlayerView{ID: p.id, DisplayName: p.name, Score: p.score})
	}
	return views
}

func (rm *room) infoLocked() domain.RoomInfo {
	return domain.RoomInfo{
		Code:            rm.code,
		QuizID:          rm.quizID,
		QuizName:        rm.quizName,
		HostID:          rm.hostID,
		State:           rm.state,
		Players:         rm.rosterLocked(),
		CurrentQuestion: rm.currentQuestion,
		TotalQuestions:  rm.totalQuestionsLocked(),
		AnswersReceived: rm.answersReceived,
	}
}

func (rm *room) promptLocked() QuestionPrompt {
	return QuestionPrompt{
		Question:      cloneQuestion(rm.questions[rm.currentQuestion]),
		Index:         rm.currentQuestion,
		Total:         len(rm.questions),
		HostID:        rm.hostID,
		RevealAnswers: rm.revealAnswers,
	}
}

func (rm *room) outcomeLocked() Outcome {
	review := make([]domain.Question, 0, len(rm.questions))
	for _, q := range rm.questions {
		review = append(review, cloneQuestion(q))
	}
	board := make([]domain.LeaderboardEntry, len(rm.leaderboard))
	copy(board, rm.leaderboard)
	return Outcome{
		SessionID:   rm.sessionID,
		Leaderboard: board,
		Review:      review,
		HideResults: rm.hideResults,
	}
}

func (p *player) snapshot() domain.Player {
	return domain.Player{
		ID:             p.id,
		DisplayName:    p.name,
		Score:          p.score,
		CorrectAnswers: p.correct,
		TabSwitches:    p.tabSwitches,
		Answers:        cloneAnswers(p.answers),
		JoinedAt:       p.joinedAt,
	}
}

func livePlayers(m map[string]*player) []*player {
	out := make([]*player, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	q.Correct = append([]int(nil), q.Correct...)
	return q
}

func cloneAnswers(in map[int][]int) map[int][]int {
	out := make(map[int][]int, len(in))
	for idx, sel := range in {
		out[idx] = append([]int(nil), sel...)
	}
	return out
}
