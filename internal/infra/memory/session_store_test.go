package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"quiz-live-service/internal/domain"
)

func sequence(codes ...string) domain.CodeSource {
	var (
		mu sync.Mutex
		i  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewSessionStore(WithClock(clock), WithCodeSource(sequence("482913")))

	s, err := store.Create(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Code != "482913" || s.Status != domain.StatusWaiting || s.ID == "" {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, added, err := store.Join(ctx, "482913", domain.Player{ID: "p1", DisplayName: "Alice"}); err != nil || !added {
		t.Fatalf("join: added=%v err=%v", added, err)
	}
	if _, added, err := store.Join(ctx, "482913", domain.Player{ID: "p1", DisplayName: "Alice"}); err != nil || added {
		t.Fatalf("re-join must be a no-op: added=%v err=%v", added, err)
	}
	if _, _, err := store.Join(ctx, "482913", domain.Player{ID: "p2", DisplayName: "Bob"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, removed, err := store.Leave(ctx, "482913", "p2"); err != nil || !removed {
		t.Fatalf("leave while waiting: removed=%v err=%v", removed, err)
	}

	started, err := store.Start(ctx, "482913")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(clock.Now().UTC()) {
		t.Fatalf("expected startedAt from clock, got %v", started.StartedAt)
	}
	if _, err := store.Start(ctx, "482913"); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
	if _, _, err := store.Join(ctx, "482913", domain.Player{ID: "late"}); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected join after start rejected, got %v", err)
	}

	_, _, applied, err := store.RecordAnswer(ctx, "482913", "p1", domain.AnswerRecord{QuestionIndex: 0, IsCorrect: true, PointsAwarded: 1500})
	if err != nil || !applied {
		t.Fatalf("record: applied=%v err=%v", applied, err)
	}
	sess, stored, applied, err := store.RecordAnswer(ctx, "482913", "p1", domain.AnswerRecord{QuestionIndex: 0, PointsAwarded: 0})
	if err != nil || applied {
		t.Fatalf("duplicate should be absorbed: applied=%v err=%v", applied, err)
	}
	if stored.PointsAwarded != 1500 || sess.Players[0].Score != 1500 {
		t.Fatalf("expected original record, got %+v score=%d", stored, sess.Players[0].Score)
	}

	if _, ok, _ := store.Finish(ctx, "482913", domain.ReasonCompleted); !ok {
		t.Fatalf("first finish should transition")
	}
	if _, ok, _ := store.Finish(ctx, "482913", domain.ReasonEndedByHost); ok {
		t.Fatalf("second finish must not transition")
	}

	byID, err := store.GetByID(ctx, s.ID)
	if err != nil || byID.FinishReason != domain.ReasonCompleted {
		t.Fatalf("history lookup: %+v err=%v", byID, err)
	}

	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "482913"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSessionStoreCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(WithCodeSource(sequence("111111", "111111", "222222")))

	first, err := store.Create(ctx, "quiz", "h1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := store.Create(ctx, "quiz", "h2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Code == second.Code {
		t.Fatalf("codes must be unique among live sessions, both %s", first.Code)
	}

	// a finished session frees its code
	if _, _, err := store.Finish(ctx, first.Code, domain.ReasonEndedByHost); err != nil {
		t.Fatalf("finish: %v", err)
	}
	store.codes = sequence("111111")
	third, err := store.Create(ctx, "quiz", "h3")
	if err != nil {
		t.Fatalf("create after finish: %v", err)
	}
	if third.Code != "111111" {
		t.Fatalf("expected code reuse, got %s", third.Code)
	}
	got, _ := store.Get(ctx, "111111")
	if got.ID != third.ID {
		t.Fatalf("code should resolve to the newest session")
	}
	if old, err := store.GetByID(ctx, first.ID); err != nil || old.Status != domain.StatusFinished {
		t.Fatalf("history must stay reachable by id: %+v %v", old, err)
	}
}

func TestSessionStoreCodeExhaustion(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(WithCodeSource(sequence("333333")))

	if _, err := store.Create(ctx, "quiz", "h1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "quiz", "h2"); !errors.Is(err, domain.ErrCodeExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestSessionStoreConcurrentAnswers(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	s, _ := store.Create(ctx, "quiz", "h")

	const players = 50
	for i := 0; i < players; i++ {
		if _, _, err := store.Join(ctx, s.Code, domain.Player{ID: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := store.Start(ctx, s.Code); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		for dup := 0; dup < 3; dup++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _, _, _ = store.RecordAnswer(ctx, s.Code, id, domain.AnswerRecord{QuestionIndex: 0, PointsAwarded: 100})
			}(fmt.Sprintf("p%d", i))
		}
	}
	wg.Wait()

	final, _ := store.Get(ctx, s.Code)
	for _, p := range final.Players {
		if p.Score != 100 || len(p.Answers) != 1 {
			t.Fatalf("player %s: score=%d answers=%d", p.ID, p.Score, len(p.Answers))
		}
	}
}

func TestSessionStoreConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	s, _ := store.Create(ctx, "quiz", "h")

	const players = 50
	sizes := make([]int, players)
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, added, err := store.Join(ctx, s.Code, domain.Player{ID: fmt.Sprintf("p%d", i)})
			if err != nil || !added {
				t.Errorf("join p%d: added=%v err=%v", i, added, err)
				return
			}
			sizes[i] = len(sess.Players)
		}(i)
	}
	wg.Wait()

	final, _ := store.Get(ctx, s.Code)
	if len(final.Players) != players {
		t.Fatalf("expected %d players, got %d", players, len(final.Players))
	}
	seen := map[string]bool{}
	for pos, p := range final.Players {
		if seen[p.ID] {
			t.Fatalf("player %s listed twice", p.ID)
		}
		seen[p.ID] = true
		var i int
		if _, err := fmt.Sscanf(p.ID, "p%d", &i); err != nil {
			t.Fatalf("unexpected id %q", p.ID)
		}
		// each join saw exactly the players ahead of it
		if sizes[i] != pos+1 {
			t.Fatalf("player %s at position %d saw %d players", p.ID, pos, sizes[i])
		}
	}
}

func TestSessionStoreUnknownCode(t *testing.T) {
	store := NewSessionStore()
	_, _, err := store.Join(context.Background(), "999999", domain.Player{ID: "p"})
	if !errors.Is(err, domain.ErrSessionNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
