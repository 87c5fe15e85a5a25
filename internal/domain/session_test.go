package domain

import (
	"errors"
	"testing"
	"time"
)

func newWaitingSession() Session {
	return Session{ID: "s1", Code: "482913", HostID: "host", Status: StatusWaiting}
}

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newWaitingSession()

	if err := s.AddPlayer(Player{ID: "p1", DisplayName: "Alice"}, now); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if err := s.AddPlayer(Player{ID: "p1", DisplayName: "Alice again"}, now); err != nil {
		t.Fatalf("re-add should be a no-op: %v", err)
	}
	if len(s.Players) != 1 || s.Players[0].DisplayName != "Alice" {
		t.Fatalf("expected single original player, got %+v", s.Players)
	}

	if err := s.Start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(now); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
	if err := s.AddPlayer(Player{ID: "p2"}, now); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected join after start to fail, got %v", err)
	}
	if s.RemovePlayer("p1") {
		t.Fatalf("players must be kept after start")
	}

	if !s.Finish(ReasonCompleted, now) {
		t.Fatalf("first finish should transition")
	}
	if s.Finish(ReasonEndedByHost, now) {
		t.Fatalf("second finish must not transition")
	}
	if s.FinishReason != ReasonCompleted {
		t.Fatalf("reason overwritten: %s", s.FinishReason)
	}
}

func TestRecordAnswerIsFirstWriterWins(t *testing.T) {
	now := time.Now()
	s := newWaitingSession()
	_ = s.AddPlayer(Player{ID: "p1"}, now)
	_ = s.Start(now)

	first, err := s.RecordAnswer("p1", AnswerRecord{QuestionIndex: 0, Answer: SingleAnswer(1), IsCorrect: true, PointsAwarded: 1500})
	if err != nil {
		t.Fatalf("expected first record applied, err=%v", err)
	}
	second, err := s.RecordAnswer("p1", AnswerRecord{QuestionIndex: 0, Answer: SingleAnswer(2), PointsAwarded: 0})
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
	if second.PointsAwarded != first.PointsAwarded || s.Players[0].Score != 1500 {
		t.Fatalf("expected original record and score 1500, got %+v score=%d", second, s.Players[0].Score)
	}
	if len(s.Players[0].Answers) != 1 {
		t.Fatalf("duplicate must not be stored, got %+v", s.Players[0].Answers)
	}

	if _, err := s.RecordAnswer("ghost", AnswerRecord{}); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	s := newWaitingSession()
	_ = s.AddPlayer(Player{ID: "p1"}, now)
	_ = s.Start(now)
	_, _ = s.RecordAnswer("p1", AnswerRecord{QuestionIndex: 0, PointsAwarded: 10})

	c := s.Clone()
	c.Players[0].Answers[0].PointsAwarded = 99
	*c.StartedAt = now.Add(time.Hour)

	if s.Players[0].Answers[0].PointsAwarded != 10 {
		t.Fatalf("clone shares answers")
	}
	if !s.StartedAt.Equal(now) {
		t.Fatalf("clone shares startedAt")
	}
	if pub := s.PublicView(); pub.Players[0].Answers != nil || pub.Players[0].Score != 10 {
		t.Fatalf("public view should keep score and drop answers: %+v", pub.Players[0])
	}
}
