package app

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// assembleSession builds the results bundle for a room that just finished.
// Players who left after the start are included with their accepted answers.
func assembleSession(rm *room, endedAt time.Time) domain.SessionRecord {
	total := len(rm.questions)
	everyone := rankPlayers(rm.everyoneLocked())

	participants := make([]domain.PlayerResult, 0, len(everyone))
	for _, p := range everyone {
		participants = append(participants, domain.PlayerResult{
			UserID:         p.id,
			DisplayName:    p.name,
			Score:          p.score,
			CorrectAnswers: p.correct,
			WrongAnswers:   total - p.correct,
			TabSwitches:    p.tabSwitches,
			Answers:        cloneAnswers(p.answers),
		})
	}

	stats := make([]domain.QuestionStat, 0, total)
	for idx, q := range rm.questions {
		stat := domain.QuestionStat{
			QuestionIndex:      idx,
			QuestionText:       q.Text,
			CorrectAnswers:     append([]int{}, q.Correct...),
			AnswerDistribution: make(map[int]int),
		}
		for _, p := range everyone {
			sel, ok := p.answers[idx]
			if !ok {
				continue
			}
			stat.Attempts++
			if isCorrect(sel, q.Correct) {
				stat.CorrectAttempts++
			}
			for _, opt := range sel {
				stat.AnswerDistribution[opt]++
			}
		}
		stat.AccuracyPercentage = accuracy(stat.CorrectAttempts, stat.Attempts)
		stats = append(stats, stat)
	}

	return domain.SessionRecord{
		RoomCode:       rm.code,
		QuizID:         rm.quizID,
		QuizName:       rm.quizName,
		HostID:         rm.hostID,
		StartedAt:      rm.startedAt,
		EndedAt:        endedAt,
		TotalQuestions: total,
		Participants:   participants,
		QuestionStats:  stats,
	}
}

// accuracy is correct/attempts as a percentage rounded to one decimal.
func accuracy(correct, attempts int) float64 {
	if attempts == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(attempts)*1000) / 10
}
