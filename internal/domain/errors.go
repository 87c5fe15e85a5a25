package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "unknown session/question/player" error.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyStarted is returned when joining or starting a session that left the waiting state.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrInvalidState indicates the operation is not valid for the current session or question state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized is returned when a non-host attempts a host-only action.
	ErrUnauthorized = errors.New("unauthorized action")
	// ErrDuplicateSubmission marks a repeated answer for the same question. It is absorbed, never surfaced.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrUpstream wraps failures of external collaborators (quiz service, databases).
	ErrUpstream = errors.New("upstream dependency failure")
	// ErrCodeExhausted is returned when no free join code was found within the retry budget.
	ErrCodeExhausted = errors.New("join code space exhausted")
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a player acts in a session they never joined.
	ErrPlayerNotFound = fmt.Errorf("player %w in session", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
)

// ErrorCode maps an error onto the short code sent to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrCodeExhausted):
		return "code_exhausted"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
