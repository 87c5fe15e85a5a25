package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
)

func TestEvaluate(t *testing.T) {
	single := domain.Question{
		Kind:          domain.KindSingleChoice,
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: domain.SingleAnswer(2),
	}
	multi := domain.Question{
		Kind:             domain.KindMultipleChoice,
		Options:          []string{"a", "b", "c", "d"},
		CorrectAnswer:    domain.MultiAnswer(0, 3),
		TimeLimitSeconds: 10,
		BasePoints:       200,
	}

	tests := map[string]struct {
		question    domain.Question
		answer      domain.Answer
		elapsed     float64
		wantCorrect bool
		wantPoints  int
	}{
		"instant answer earns full bonus":  {single, domain.SingleAnswer(2), 0, true, 1500},
		"answer at the limit earns base":   {single, domain.SingleAnswer(2), 20, true, 1000},
		"half time earns half bonus":       {single, domain.SingleAnswer(2), 10, true, 1250},
		"late answer never below base":     {single, domain.SingleAnswer(2), 45, true, 1000},
		"negative elapsed clamps to zero":  {single, domain.SingleAnswer(2), -3, true, 1500},
		"bonus is floored":                 {single, domain.SingleAnswer(2), 1.5, true, 1462},
		"wrong answer scores zero":         {single, domain.SingleAnswer(1), 0, false, 0},
		"no answer scores zero":            {single, domain.NoAnswer(), 0, false, 0},
		"one element set on single choice": {single, domain.MultiAnswer(2), 20, true, 1000},
		"exact set is correct":             {multi, domain.MultiAnswer(3, 0), 5, true, 250},
		"subset gets no partial credit":    {multi, domain.MultiAnswer(0), 0, false, 0},
		"superset gets no credit":          {multi, domain.MultiAnswer(0, 1, 3), 0, false, 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			correct, points := app.Evaluate(tc.question, tc.answer, tc.elapsed)
			assert.Equal(t, tc.wantCorrect, correct)
			assert.Equal(t, tc.wantPoints, points)
		})
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	players := []domain.Player{
		{ID: "p1", DisplayName: "Ann", Score: 1000},
		{ID: "p2", DisplayName: "Ben", Score: 1500},
		{ID: "p3", DisplayName: "Cid", Score: 1000},
		{ID: "p4", DisplayName: "Dee", Score: 0},
	}

	ranked := app.Rank(players)

	got := make([]string, 0, len(ranked))
	for _, r := range ranked {
		got = append(got, r.PlayerID)
	}
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, got)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 4, ranked[3].Rank)
	assert.Equal(t, "p1", players[0].ID, "input must not be reordered")
}
