package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a session. It only moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Finish reasons recorded on a session.
const (
	ReasonCompleted   = "completed"
	ReasonEndedByHost = "ended-by-host"
	ReasonDeleted     = "deleted"
)

// Session is one run of a quiz from creation to finish.
type Session struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	QuizRef      string     `json:"quizRef"`
	HostID       string     `json:"hostId"`
	Status       Status     `json:"status"`
	Players      []Player   `json:"players"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	FinishReason string     `json:"finishReason,omitempty"`
}

// Player represents a quiz participant and their accumulated score.
type Player struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId,omitempty"`
	DisplayName string         `json:"displayName"`
	AvatarToken string         `json:"avatarToken,omitempty"`
	Score       int            `json:"score"`
	Answers     []AnswerRecord `json:"answers,omitempty"`
	JoinedAt    time.Time      `json:"joinedAt"`
}

// AnswerRecord is the stored outcome of one player's answer to one question.
type AnswerRecord struct {
	QuestionIndex  int       `json:"questionIndex"`
	Answer         Answer    `json:"submittedAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	PointsAwarded  int       `json:"pointsAwarded"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	TimedOut       bool      `json:"timedOut,omitempty"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// TimeoutRecord is the marker stored for a player that did not answer before the deadline.
func TimeoutRecord(questionIndex int, elapsed float64, at time.Time) AnswerRecord {
	return AnswerRecord{
		QuestionIndex:  questionIndex,
		Answer:         NoAnswer(),
		ElapsedSeconds: elapsed,
		TimedOut:       true,
		RecordedAt:     at,
	}
}

// AnswerFor returns the record a player stored for a question.
func (p Player) AnswerFor(questionIndex int) (AnswerRecord, bool) {
	for _, rec := range p.Answers {
		if rec.QuestionIndex == questionIndex {
			return rec, true
		}
	}
	return AnswerRecord{}, false
}

// CorrectAnswers counts the correct records of a player.
func (p Player) CorrectAnswers() int {
	n := 0
	for _, rec := range p.Answers {
		if rec.IsCorrect {
			n++
		}
	}
	return n
}

// player returns the index of a player, or -1.
func (s *Session) player(id string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.ID == id })
}

// FindPlayer looks a player up by id.
func (s Session) FindPlayer(id string) (Player, bool) {
	if i := s.player(id); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}

// AddPlayer appends a player while the session is waiting. Re-adding a known id is a no-op.
func (s *Session) AddPlayer(p Player, now time.Time) error {
	if s.Status != StatusWaiting {
		return fmt.Errorf("join %s: %w", s.Code, ErrAlreadyStarted)
	}
	if s.player(p.ID) >= 0 {
		return nil
	}
	p.Score = 0
	p.Answers = nil
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	s.Players = append(s.Players, p)
	return nil
}

// RemovePlayer drops a player from a waiting session. Started sessions keep their players.
func (s *Session) RemovePlayer(id string) bool {
	if s.Status != StatusWaiting {
		return false
	}
	i := s.player(id)
	if i < 0 {
		return false
	}
	s.Players = slices.Delete(s.Players, i, i+1)
	return true
}

// Start moves a waiting session to active.
func (s *Session) Start(now time.Time) error {
	if s.Status != StatusWaiting {
		return fmt.Errorf("start %s: %w", s.Code, ErrAlreadyStarted)
	}
	s.Status = StatusActive
	s.StartedAt = &now
	return nil
}

// RecordAnswer stores rec for the player and adds its points to the score.
// A second record for the same question leaves the session untouched, returns the first
// one and ErrDuplicateSubmission.
func (s *Session) RecordAnswer(playerID string, rec AnswerRecord) (AnswerRecord, error) {
	if s.Status != StatusActive {
		return AnswerRecord{}, fmt.Errorf("record answer in %s session: %w", s.Status, ErrInvalidState)
	}
	i := s.player(playerID)
	if i < 0 {
		return AnswerRecord{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	p := &s.Players[i]
	if existing, ok := p.AnswerFor(rec.QuestionIndex); ok {
		return existing, fmt.Errorf("question %d by %s: %w", rec.QuestionIndex, playerID, ErrDuplicateSubmission)
	}
	if rec.PointsAwarded < 0 {
		rec.PointsAwarded = 0
	}
	p.Answers = append(p.Answers, rec)
	p.Score += rec.PointsAwarded
	return rec, nil
}

// Finish marks the session finished. It reports false when the session was already finished.
func (s *Session) Finish(reason string, now time.Time) bool {
	if s.Status == StatusFinished {
		return false
	}
	s.Status = StatusFinished
	s.FinishedAt = &now
	s.FinishReason = reason
	return true
}

// Answered counts the players holding a record for the question.
func (s Session) Answered(questionIndex int) int {
	n := 0
	for _, p := range s.Players {
		if _, ok := p.AnswerFor(questionIndex); ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand out of a store.
func (s Session) Clone() Session {
	out := s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Answers = slices.Clone(p.Answers)
		out.Players[i] = p
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// PublicView strips per-answer details so the session can be shown to players.
func (s Session) PublicView() Session {
	out := s.Clone()
	for i := range out.Players {
		out.Players[i].Answers = nil
	}
	return out
}

// QuestionKind distinguishes how a question is answered.
type QuestionKind string

const (
	KindSingleChoice   QuestionKind = "single-choice"
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
)

// ParseQuestionKind accepts both the canonical kinds and the labels used by the quiz authoring service.
func ParseQuestionKind(raw string) (QuestionKind, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "-", "_", "-", "/", "-").Replace(norm)
	switch norm {
	case "", "single", "single-choice":
		return KindSingleChoice, nil
	case "multiple", "multiple-choice", "multi-choice":
		return KindMultipleChoice, nil
	case "true-false", "truefalse", "boolean":
		return KindTrueFalse, nil
	default:
		return "", fmt.Errorf("%w: question kind %q", ErrInvalidArgument, raw)
	}
}

func (k *QuestionKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: question kind: %v", ErrInvalidArgument, err)
	}
	kind, err := ParseQuestionKind(raw)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

const (
	DefaultBasePoints       = 1000
	DefaultTimeLimitSeconds = 20
)

// Question is owned by the quiz collaborator and read-only here.
type Question struct {
	Kind             QuestionKind `json:"type"`
	Title            string       `json:"title"`
	Options          []string     `json:"options"`
	CorrectAnswer    Answer       `json:"correctAnswer"`
	TimeLimitSeconds int          `json:"timeLimit,omitempty"`
	BasePoints       int          `json:"points,omitempty"`
	Media            string       `json:"media,omitempty"`
}

// Points returns the base points, defaulting to 1000.
func (q Question) Points() int {
	if q.BasePoints <= 0 {
		return DefaultBasePoints
	}
	return q.BasePoints
}

// TimeLimit returns the answer window, defaulting to 20 seconds.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds <= 0 {
		return DefaultTimeLimitSeconds
	}
	return q.TimeLimitSeconds
}

// Duration is TimeLimit as a time.Duration.
func (q Question) Duration() time.Duration {
	return time.Duration(q.TimeLimit()) * time.Second
}

// CorrectText returns the display text of the correct option(s).
func (q Question) CorrectText() string {
	return q.CorrectAnswer.Text(q.Options)
}

// PublicQuestion is what players see while a question is open.
type PublicQuestion struct {
	Kind             QuestionKind `json:"type"`
	Title            string       `json:"title"`
	Options          []string     `json:"options"`
	TimeLimitSeconds int          `json:"timeLimit"`
	BasePoints       int          `json:"points"`
	Media            string       `json:"media,omitempty"`
}

// Public drops the correct answer.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		Kind:             q.Kind,
		Title:            q.Title,
		Options:          slices.Clone(q.Options),
		TimeLimitSeconds: q.TimeLimit(),
		BasePoints:       q.Points(),
		Media:            q.Media,
	}
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// RankedPlayer is one leaderboard row.
type RankedPlayer struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	AvatarToken string `json:"avatarToken,omitempty"`
	Score       int    `json:"score"`
}
