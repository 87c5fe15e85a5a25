package app

import (
	"context"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/notify"
)

// SessionRepository is the single source of truth for sessions. Every mutation is
// atomic per session and returns a copy of the session after the change.
type SessionRepository interface {
	Create(ctx context.Context, quizRef, hostID string) (domain.Session, error)
	// Join reports whether the player was added; re-joining with a known id is a no-op.
	Join(ctx context.Context, code string, player domain.Player) (s domain.Session, added bool, err error)
	// Leave reports whether the player was removed; it is a no-op once the session started.
	Leave(ctx context.Context, code, playerID string) (domain.Session, bool, error)
	Start(ctx context.Context, code string) (domain.Session, error)
	// RecordAnswer stores rec unless the player already answered rec.QuestionIndex, in which
	// case the original record is returned and applied is false.
	RecordAnswer(ctx context.Context, code, playerID string, rec domain.AnswerRecord) (s domain.Session, stored domain.AnswerRecord, applied bool, err error)
	// Finish reports whether this call moved the session to finished.
	Finish(ctx context.Context, code, reason string) (domain.Session, bool, error)
	Get(ctx context.Context, code string) (domain.Session, error)
	GetByID(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}

// QuizRepository resolves quiz content by reference.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizRef string) (domain.Quiz, error)
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, e notify.Event)
}

// SessionArchive keeps finished sessions for historical queries.
type SessionArchive interface {
	Save(ctx context.Context, s domain.Session) error
	Load(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}
