package domain

import (
	"encoding/json"
	"fmt"
)

// DecodeQuiz parses a quiz document and normalizes its questions.
func DecodeQuiz(id string, raw []byte) (Quiz, error) {
	var quiz Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return Quiz{}, fmt.Errorf("decode quiz %s: %w", id, err)
	}
	if quiz.ID == "" {
		quiz.ID = id
	}
	if err := quiz.Normalize(); err != nil {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, err)
	}
	return quiz, nil
}

// Normalize resolves question defaults and validates correct answers against the options.
func (q *Quiz) Normalize() error {
	for i := range q.Questions {
		if err := q.Questions[i].normalize(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// Question returns the question at index.
func (q Quiz) Question(index int) (Question, error) {
	if index < 0 || index >= len(q.Questions) {
		return Question{}, fmt.Errorf("%w: index %d of %d", ErrQuestionNotFound, index, len(q.Questions))
	}
	return q.Questions[index], nil
}

func (q *Question) normalize() error {
	if q.Kind == "" {
		q.Kind = KindSingleChoice
	}
	if q.Kind == KindTrueFalse && len(q.Options) == 0 {
		q.Options = []string{"True", "False"}
	}
	if q.CorrectAnswer.IsNone() {
		return fmt.Errorf("%w: missing correct answer", ErrInvalidArgument)
	}
	for _, idx := range q.CorrectAnswer.indexes {
		if idx >= len(q.Options) {
			return fmt.Errorf("%w: correct option %d out of %d", ErrInvalidArgument, idx, len(q.Options))
		}
	}

	switch q.Kind {
	case KindMultipleChoice:
		if !q.CorrectAnswer.IsMulti() {
			q.CorrectAnswer = MultiAnswer(q.CorrectAnswer.indexes...)
		}
	default:
		if q.CorrectAnswer.IsMulti() {
			if len(q.CorrectAnswer.indexes) != 1 {
				return fmt.Errorf("%w: %s question with %d correct options", ErrInvalidArgument, q.Kind, len(q.CorrectAnswer.indexes))
			}
			q.CorrectAnswer = SingleAnswer(q.CorrectAnswer.indexes[0])
		}
	}
	return nil
}
