package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"quiz-live-service/internal/domain"
)

// QuizLoader fetches quiz content from its source of record (Postgres, the quiz service, a fixture map).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizRef string) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid repeated loader hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clockwork.NewRealClock(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

// WithClock swaps the expiry clock, mostly for tests.
func (r *QuizRepository) WithClock(c clockwork.Clock) *QuizRepository {
	r.clock = c
	return r
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizRef string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizRef); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizRef, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizRef); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizRef)
		if err != nil {
			return domain.Quiz{}, err
		}
		if r.ttl <= 0 {
			return quiz, nil
		}

		r.mu.Lock()
		r.cache[quizRef] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock.Now().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) lookup(quizRef string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizRef]
	if !ok || !entry.expiresAt.After(r.clock.Now()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// add up to 10% jitter to spread expirations
func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader serves quizzes from a fixed map (demos and tests).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

// NewStaticQuizLoader normalizes every quiz up front and fails on the first invalid one.
func NewStaticQuizLoader(quizzes map[string]domain.Quiz) (*StaticQuizLoader, error) {
	normalized := make(map[string]domain.Quiz, len(quizzes))
	for ref, quiz := range quizzes {
		if quiz.ID == "" {
			quiz.ID = ref
		}
		if err := quiz.Normalize(); err != nil {
			return nil, fmt.Errorf("quiz %s: %w", ref, err)
		}
		normalized[ref] = quiz
	}
	return &StaticQuizLoader{quizzes: normalized}, nil
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizRef string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizRef]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizRef)
}
