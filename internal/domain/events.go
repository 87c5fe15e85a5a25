package domain

import "time"

// Message is the envelope pushed to room endpoints.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Outbound message types.
const (
	MsgSessionCreated    = "session-created"
	MsgHostJoined        = "host-joined"
	MsgJoinedSession     = "joined-session"
	MsgRejoinedSession   = "rejoined-session"
	MsgSessionState      = "session-state"
	MsgPlayerJoined      = "player-joined"
	MsgPlayerLeft        = "player-left"
	MsgSessionStarted    = "session-started"
	MsgQuestionStarted   = "question-started"
	MsgAnswerResult      = "answer-result"
	MsgAnswerCount       = "answer-count"
	MsgPlayerAnswered    = "player-answered"
	MsgAnswerRevealed    = "answer-revealed"
	MsgProgressionHalted = "progression-halted"
	MsgSessionFinished   = "session-finished"
	MsgError             = "error"
)

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

type SessionStartedPayload struct {
	Code         string    `json:"code"`
	StartedAt    time.Time `json:"startedAt"`
	GraceSeconds float64   `json:"graceSeconds"`
}

type QuestionStartedPayload struct {
	QuestionIndex    int            `json:"questionIndex"`
	TotalQuestions   int            `json:"totalQuestions"`
	Question         PublicQuestion `json:"question"`
	TimeLimitSeconds int            `json:"timeLimitSeconds"`
	Deadline         time.Time      `json:"deadline"`
}

// AnswerResult is the acknowledgement sent to the submitting player only.
type AnswerResult struct {
	QuestionIndex int    `json:"questionIndex"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
	TotalScore    int    `json:"totalScore"`
	CorrectAnswer Answer `json:"correctAnswer"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

type AnswerCountPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Answered      int `json:"answered"`
	Total         int `json:"total"`
}

type PlayerAnsweredPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	PlayerID      string `json:"playerId"`
	DisplayName   string `json:"displayName"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
}

type AnswerRevealedPayload struct {
	QuestionIndex     int            `json:"questionIndex"`
	CorrectAnswer     Answer         `json:"correctAnswer"`
	CorrectAnswerText string         `json:"correctAnswerText"`
	Leaderboard       []RankedPlayer `json:"leaderboard"`
}

type ProgressionHaltedPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Reason        string `json:"reason"`
}

type SessionFinishedPayload struct {
	Code        string         `json:"code"`
	Reason      string         `json:"reason"`
	Leaderboard []RankedPlayer `json:"leaderboard"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorMessage builds the error envelope for err.
func ErrorMessage(err error) Message {
	return Message{Type: MsgError, Payload: ErrorPayload{Code: ErrorCode(err), Message: err.Error()}}
}
