package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// AnswerCount is the progress of the current question after a submission.
type AnswerCount struct {
	Count       int
	Total       int
	AllAnswered bool
}

// QuestionResults is the reveal for the current question.
type QuestionResults struct {
	Index          int
	CorrectIndices []int
	Scores         map[string]int   // participant id -> total score
	Answers        map[string][]int // participant id -> selections, empty when unanswered
	HideResults    bool
}

// Submit records a participant's selections for the current question. The
// first submission per question wins; later ones are rejected.
func (r *Registry) Submit(code, participantID string, questionIndex int, selections []int) (AnswerCount, error) {
	rm, err := r.room(code)
	if err != nil {
		return AnswerCount{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != domain.StatePlaying {
		return AnswerCount{}, domain.ErrRoomNotPlaying
	}
	p, ok := rm.players[participantID]
	if !ok {
		return AnswerCount{}, domain.ErrUnknownParticipant
	}
	if questionIndex != rm.currentQuestion {
		return AnswerCount{}, domain.ErrStaleQuestionIndex
	}
	// Once revealed, a question no longer takes answers.
	if _, done := rm.scored[questionIndex]; done {
		return AnswerCount{}, domain.ErrStaleQuestionIndex
	}
	if _, answered := p.answers[questionIndex]; answered {
		return AnswerCount{}, domain.ErrDuplicateAnswer
	}

	p.answers[questionIndex] = append([]int{}, selections...)
	rm.answersReceived++
	rm.lastActivity = r.now()

	return rm.answerCountLocked(), nil
}

// answerCountLocked counts only live players; answers from departed players
// stay in answersReceived but no longer count toward all_answered.
func (rm *room) answerCountLocked() AnswerCount {
	count := 0
	for _, p := range rm.players {
		if _, ok := p.answers[rm.currentQuestion]; ok {
			count++
		}
	}
	total := len(rm.players)
	return AnswerCount{
		Count:       count,
		Total:       total,
		AllAnswered: total > 0 && count >= total,
	}
}

// CalculateScores awards points for the current question at most once and
// returns every live player's total.
func (r *Registry) CalculateScores(code string) (map[string]int, error) {
	rm, err := r.room(code)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	scoreCurrentLocked(rm)
	scores := make(map[string]int, len(rm.players))
	for id, p := range rm.players {
		scores[id] = p.score
	}
	return scores, nil
}

// Results scores the current question and returns its reveal. Host only.
func (r *Registry) Results(code, hostID string) (QuestionResults, error) {
	rm, err := r.room(code)
	if err != nil {
		return QuestionResults{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if err := rm.checkHostLocked(hostID); err != nil {
		return QuestionResults{}, err
	}
	if rm.state != domain.StatePlaying {
		return QuestionResults{}, domain.ErrRoomNotPlaying
	}
	scoreCurrentLocked(rm)

	idx := rm.currentQuestion
	res := QuestionResults{
		Index:          idx,
		CorrectIndices: append([]int{}, rm.questions[idx].Correct...),
		Scores:         make(map[string]int, len(rm.players)),
		Answers:        make(map[string][]int, len(rm.players)),
		HideResults:    rm.hideResults,
	}
	for id, p := range rm.players {
		res.Scores[id] = p.score
		res.Answers[id] = append([]int{}, p.answers[idx]...)
	}
	return res, nil
}

// Leaderboard ranks the live roster.
func (r *Registry) Leaderboard(code string) ([]domain.LeaderboardEntry, error) {
	rm, err := r.room(code)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return leaderboardFor(livePlayers(rm.players), rm.totalQuestionsLocked()), nil
}

// scoreCurrentLocked applies the current question's points unless that
// question index is already in the scored set.
func scoreCurrentLocked(rm *room) {
	idx := rm.currentQuestion
	if idx < 0 || idx >= len(rm.questions) {
		return
	}
	if _, done := rm.scored[idx]; done {
		return
	}
	q := rm.questions[idx]
	for _, p := range rm.everyoneLocked() {
		sel, ok := p.answers[idx]
		if ok && isCorrect(sel, q.Correct) {
			p.score += q.Points
			p.correct++
		}
	}
	rm.scored[idx] = struct{}{}
}

// isCorrect reports whether the selected indices are exactly the correct set.
func isCorrect(selected, correct []int) bool {
	want := make(map[int]struct{}, len(correct))
	for _, c := range correct {
		want[c] = struct{}{}
	}
	got := make(map[int]struct{}, len(selected))
	for _, s := range selected {
		if _, ok := want[s]; !ok {
			return false
		}
		got[s] = struct{}{}
	}
	return len(got) == len(want)
}

// rankPlayers orders by score, then fewer tab switches, then join order,
// then id, so equal states always rank the same way.
func rankPlayers(players []*player) []*player {
	sort.Slice(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.tabSwitches != b.tabSwitches {
			return a.tabSwitches < b.tabSwitches
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.id < b.id
	})
	return players
}

func leaderboardFor(players []*player, totalQuestions int) []domain.LeaderboardEntry {
	ranked := rankPlayers(players)
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:           i + 1,
			UserID:         p.id,
			DisplayName:    p.name,
			Score:          p.score,
			CorrectAnswers: p.correct,
			WrongAnswers:   totalQuestions - p.correct,
			TabSwitches:    p.tabSwitches,
		})
	}
	return entries
}
