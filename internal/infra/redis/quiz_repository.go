package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quiz-live-service/internal/domain"
)

// QuizLoader fetches quiz content from its source of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizRef string) (domain.Quiz, error)
}

// QuizRepository caches normalized quizzes in Redis and falls back to a loader on cache miss.
// Quizzes are stored as: SET {prefix}quiz:{ref} <quiz JSON> EX ttl+jitter
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	prefix string
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, prefix string) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		prefix: prefix,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizRef string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizRef); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizRef, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizRef); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizRef)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err == nil {
			err = r.client.Set(ctx, r.key(quizRef), raw, r.ttlWithJitter()).Err()
		}
		if err != nil {
			// the loader result is still good, only caching failed
			log.Warn().Err(err).Str("quiz_ref", quizRef).Msg("cache quiz in redis")
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(ctx context.Context, quizRef string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.key(quizRef)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("quiz_ref", quizRef).Msg("read quiz cache")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		log.Warn().Err(err).Str("quiz_ref", quizRef).Msg("discarding undecodable cached quiz")
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizRef string) string {
	return r.prefix + "quiz:" + quizRef
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
