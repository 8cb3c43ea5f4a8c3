package domain

import "time"

// QuestionType distinguishes single from multiple choice questions.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

const (
	DefaultTimeLimit = 30
	DefaultPoints    = 100
)

// Question is one quiz item. Correct holds indices into Options.
type Question struct {
	Text      string       `json:"text"`
	Type      QuestionType `json:"type"`
	Options   []string     `json:"options"`
	Correct   []int        `json:"correct"`
	TimeLimit int          `json:"timeLimit"` // seconds, advisory only
	Points    int          `json:"points"`
}

// WithDefaults fills the zero-valued type, time limit and points.
func (q Question) WithDefaults() Question {
	if q.Type == "" {
		q.Type = QuestionSingle
		if len(q.Correct) > 1 {
			q.Type = QuestionMultiple
		}
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = DefaultTimeLimit
	}
	if q.Points <= 0 {
		q.Points = DefaultPoints
	}
	return q
}

// Quiz is the read-only content a room plays through.
type Quiz struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	HideResults   bool       `json:"hideResults"`
	RevealAnswers bool       `json:"revealAnswers"` // show correct indices to players, not only the host
	Questions     []Question `json:"questions"`
}

// RoomState is the lifecycle state of a room.
type RoomState string

const (
	StateLobby    RoomState = "lobby"
	StatePlaying  RoomState = "playing"
	StateFinished RoomState = "finished"
)

// PlayerView is the roster entry sent to clients.
type PlayerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Player is a copy of a participant's per-room state.
type Player struct {
	ID             string
	DisplayName    string
	Score          int
	CorrectAnswers int
	TabSwitches    int
	Answers        map[int][]int
	JoinedAt       time.Time
}

// RoomInfo is a point-in-time view of a room.
type RoomInfo struct {
	Code            string       `json:"code"`
	QuizID          string       `json:"quizId"`
	QuizName        string       `json:"quizName"`
	HostID          string       `json:"hostId"`
	State           RoomState    `json:"state"`
	Players         []PlayerView `json:"players"`
	CurrentQuestion int          `json:"currentQuestion"`
	TotalQuestions  int          `json:"totalQuestions"`
	AnswersReceived int          `json:"answersReceived"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	WrongAnswers   int    `json:"wrongAnswers"`
	TabSwitches    int    `json:"tabSwitches"`
}

// PlayerResult is the per-player part of a session bundle.
type PlayerResult struct {
	UserID         string        `json:"userId"`
	DisplayName    string        `json:"displayName"`
	Score          int           `json:"score"`
	CorrectAnswers int           `json:"correctAnswers"`
	WrongAnswers   int           `json:"wrongAnswers"`
	TabSwitches    int           `json:"tabSwitches"`
	Answers        map[int][]int `json:"answers"`
}

// QuestionStat aggregates all attempts at one question.
type QuestionStat struct {
	QuestionIndex      int         `json:"questionIndex"`
	QuestionText       string      `json:"questionText"`
	CorrectAnswers     []int       `json:"correctAnswers"`
	Attempts           int         `json:"attempts"`
	CorrectAttempts    int         `json:"correctAttempts"`
	AccuracyPercentage float64     `json:"accuracyPercentage"`
	AnswerDistribution map[int]int `json:"answerDistribution"`
}

// SessionRecord is the results bundle handed to durable storage once per room.
type SessionRecord struct {
	ID             string         `json:"id,omitempty"`
	RoomCode       string         `json:"roomCode"`
	QuizID         string         `json:"quizId"`
	QuizName       string         `json:"quizName"`
	HostID         string         `json:"hostId"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        time.Time      `json:"endedAt"`
	TotalQuestions int            `json:"totalQuestions"`
	Participants   []PlayerResult `json:"participants"`
	QuestionStats  []QuestionStat `json:"questionStats"`
}
