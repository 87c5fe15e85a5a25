package app

import (
	"math"

	"quiz-live-service/internal/domain"
)

// Evaluate scores a submitted answer. A correct answer earns the base points plus a
// speed bonus of up to half the base points, decaying linearly to zero at the time limit.
// There is no partial credit for multiple-choice questions.
func Evaluate(q domain.Question, submitted domain.Answer, elapsedSeconds float64) (bool, int) {
	if !isCorrect(q, submitted) {
		return false, 0
	}

	base := q.Points()
	limit := float64(q.TimeLimit())
	elapsed := math.Max(0, elapsedSeconds)
	remaining := math.Max(0, 1-elapsed/limit)
	bonus := int(math.Floor(float64(base) * 0.5 * remaining))
	return true, base + bonus
}

func isCorrect(q domain.Question, submitted domain.Answer) bool {
	if submitted.IsNone() {
		return false
	}
	if q.Kind == domain.KindMultipleChoice {
		return submitted.SameSelection(q.CorrectAnswer)
	}
	got, ok := submitted.Index()
	if !ok {
		// a one-element set is accepted for single-answer kinds
		idx := submitted.Indexes()
		if len(idx) != 1 {
			return false
		}
		got = idx[0]
	}
	want, ok := q.CorrectAnswer.Index()
	if !ok {
		return q.CorrectAnswer.SameSelection(domain.SingleAnswer(got))
	}
	return got == want
}
