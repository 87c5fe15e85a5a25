package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-live-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := newCountingLoader(t)
	clock := clockwork.NewFakeClock()
	repo := NewQuizRepository(loader, time.Minute).WithClock(clock)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected cache hit, loader calls %d", got)
	}

	// past ttl plus the maximum jitter
	clock.Advance(time.Minute + 7*time.Second)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", got)
	}
}

func TestQuizRepositoryCollapsesConcurrentMisses(t *testing.T) {
	loader := newCountingLoader(t)
	loader.delay = 50 * time.Millisecond
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected a single load, got %d", got)
	}
}

func TestStaticQuizLoaderNotFound(t *testing.T) {
	loader := newCountingLoader(t)
	_, err := loader.LoadQuiz(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestStaticQuizLoaderValidates(t *testing.T) {
	_, err := NewStaticQuizLoader(map[string]domain.Quiz{
		"broken": {Questions: []domain.Question{{Title: "no answer", Options: []string{"a"}}}},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	delay time.Duration
	calls atomic.Int32
}

func newCountingLoader(t *testing.T) *countingLoader {
	t.Helper()
	static, err := NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})
	if err != nil {
		t.Fatalf("static loader: %v", err)
	}
	return &countingLoader{QuizLoader: static}
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizRef string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	return l.QuizLoader.LoadQuiz(ctx, quizRef)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				Kind:          domain.KindSingleChoice,
				Title:         "What is 2 + 2?",
				Options:       []string{"3", "4"},
				CorrectAnswer: domain.SingleAnswer(1),
			},
		},
	}
}
