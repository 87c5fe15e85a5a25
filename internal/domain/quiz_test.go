package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-live-service/internal/domain"
)

func TestDecodeQuizNormalizesAuthoringLabels(t *testing.T) {
	raw := []byte(`{
		"title": "Colors",
		"questions": [
			{"type": "Single Choice", "title": "Sky?", "options": ["Red","Blue"], "correctAnswer": 1, "timeLimit": 10, "points": 500},
			{"type": "Multiple Choice", "title": "Warm?", "options": ["Red","Blue","Orange"], "correctAnswer": 2},
			{"type": "True/False", "title": "Grass is green", "correctAnswer": "A"}
		]
	}`)

	quiz, err := domain.DecodeQuiz("quiz-1", raw)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)
	assert.Equal(t, "quiz-1", quiz.ID)

	q0 := quiz.Questions[0]
	assert.Equal(t, domain.KindSingleChoice, q0.Kind)
	assert.Equal(t, 10, q0.TimeLimit())
	assert.Equal(t, 500, q0.Points())

	q1 := quiz.Questions[1]
	assert.Equal(t, domain.KindMultipleChoice, q1.Kind)
	assert.True(t, q1.CorrectAnswer.IsMulti(), "single stored answer must be coerced to a set")
	assert.Equal(t, []int{2}, q1.CorrectAnswer.Indexes())
	assert.Equal(t, domain.DefaultTimeLimitSeconds, q1.TimeLimit())
	assert.Equal(t, domain.DefaultBasePoints, q1.Points())

	q2 := quiz.Questions[2]
	assert.Equal(t, domain.KindTrueFalse, q2.Kind)
	assert.Equal(t, []string{"True", "False"}, q2.Options)
	assert.Equal(t, "True", q2.CorrectText())
}

func TestDecodeQuizRejectsBadAnswers(t *testing.T) {
	tests := map[string]string{
		"missing answer": `{"questions":[{"type":"Single Choice","options":["a","b"]}]}`,
		"out of range":   `{"questions":[{"type":"Single Choice","options":["a","b"],"correctAnswer":5}]}`,
		"set on single":  `{"questions":[{"type":"Single Choice","options":["a","b"],"correctAnswer":[0,1]}]}`,
		"unknown kind":   `{"questions":[{"type":"Essay","options":["a"],"correctAnswer":0}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := domain.DecodeQuiz("q", []byte(raw))
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestPublicQuestionHidesAnswer(t *testing.T) {
	q := domain.Question{Kind: domain.KindSingleChoice, Title: "t", Options: []string{"a", "b"}, CorrectAnswer: domain.SingleAnswer(1)}
	pub := q.Public()
	assert.Equal(t, domain.DefaultTimeLimitSeconds, pub.TimeLimitSeconds)
	assert.Equal(t, domain.DefaultBasePoints, pub.BasePoints)
	assert.Equal(t, q.Options, pub.Options)
}

func TestQuizQuestionBounds(t *testing.T) {
	quiz := domain.Quiz{Questions: []domain.Question{{Title: "only"}}}
	_, err := quiz.Question(1)
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := domain.RandomCode()
		require.True(t, domain.ValidCode(code), "code %q out of range", code)
	}
	assert.False(t, domain.ValidCode("099999"))
	assert.False(t, domain.ValidCode("12345a"))
}
