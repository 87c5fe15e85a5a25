package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"quiz-live-service/internal/domain"
)

const maxTxRetries = 16

var errCodeTaken = errors.New("code taken")

// SessionStore keeps every session as one JSON document and resolves join codes
// through an index key. Mutations run in WATCH/MULTI transactions so concurrent
// writers on other instances never lose updates.
//
// Keys:
//
//	{prefix}session:{id} -> session JSON
//	{prefix}code:{code}  -> id of the latest session using the code
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	clock  clockwork.Clock
	codes  domain.CodeSource
}

type Option func(*SessionStore)

func WithClock(c clockwork.Clock) Option {
	return func(s *SessionStore) { s.clock = c }
}

func WithCodeSource(src domain.CodeSource) Option {
	return func(s *SessionStore) { s.codes = src }
}

// WithPrefix namespaces every key, e.g. "quiz:".
func WithPrefix(prefix string) Option {
	return func(s *SessionStore) { s.prefix = prefix }
}

// NewSessionStore creates a store whose documents expire ttl after their last write (0 keeps them forever).
func NewSessionStore(client *redis.Client, ttl time.Duration, opts ...Option) *SessionStore {
	s := &SessionStore{
		client: client,
		ttl:    ttl,
		prefix: "quiz:",
		clock:  clockwork.NewRealClock(),
		codes:  domain.RandomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) Create(ctx context.Context, quizRef, hostID string) (domain.Session, error) {
	for attempt := 0; attempt < domain.MaxCodeAttempts; attempt++ {
		session := domain.Session{
			ID:        uuid.NewString(),
			Code:      s.codes(),
			QuizRef:   quizRef,
			HostID:    hostID,
			Status:    domain.StatusWaiting,
			Players:   []domain.Player{},
			CreatedAt: s.clock.Now().UTC(),
		}
		err := s.claimCode(ctx, session)
		if errors.Is(err, errCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return session, nil
	}
	return domain.Session{}, fmt.Errorf("create session after %d attempts: %w", domain.MaxCodeAttempts, domain.ErrCodeExhausted)
}

func (s *SessionStore) claimCode(ctx context.Context, session domain.Session) error {
	codeKey := s.codeKey(session.Code)
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			id, err := tx.Get(ctx, codeKey).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				existing, err := s.load(ctx, tx, id)
				if err == nil && existing.Status != domain.StatusFinished {
					return errCodeTaken
				}
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.sessionKey(session.ID), raw, s.ttl)
				pipe.Set(ctx, codeKey, session.ID, s.ttl)
				return nil
			})
			return err
		}, codeKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, errCodeTaken) {
			return fmt.Errorf("%w: claim code: %v", domain.ErrUpstream, err)
		}
		return err
	}
	return fmt.Errorf("%w: claim code: too much contention", domain.ErrUpstream)
}

func (s *SessionStore) Join(ctx context.Context, code string, player domain.Player) (domain.Session, bool, error) {
	var added bool
	sess, err := s.mutate(ctx, code, func(sess *domain.Session) (bool, error) {
		before := len(sess.Players)
		if err := sess.AddPlayer(player, s.clock.Now().UTC()); err != nil {
			return false, err
		}
		added = len(sess.Players) != before
		return added, nil
	})
	return sess, added, err
}

func (s *SessionStore) Leave(ctx context.Context, code, playerID string) (domain.Session, bool, error) {
	var removed bool
	sess, err := s.mutate(ctx, code, func(sess *domain.Session) (bool, error) {
		removed = sess.RemovePlayer(playerID)
		return removed, nil
	})
	return sess, removed, err
}

func (s *SessionStore) Start(ctx context.Context, code string) (domain.Session, error) {
	return s.mutate(ctx, code, func(sess *domain.Session) (bool, error) {
		return true, sess.Start(s.clock.Now().UTC())
	})
}

func (s *SessionStore) RecordAnswer(ctx context.Context, code, playerID string, rec domain.AnswerRecord) (domain.Session, domain.AnswerRecord, bool, error) {
	var (
		stored  domain.AnswerRecord
		applied bool
	)
	sess, err := s.mutate(ctx, code, func(sess *domain.Session) (bool, error) {
		var err error
		stored, err = sess.RecordAnswer(playerID, rec)
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			return false, nil
		}
		applied = err == nil
		return applied, err
	})
	return sess, stored, applied, err
}

func (s *SessionStore) Finish(ctx context.Context, code, reason string) (domain.Session, bool, error) {
	var transitioned bool
	sess, err := s.mutate(ctx, code, func(sess *domain.Session) (bool, error) {
		transitioned = sess.Finish(reason, s.clock.Now().UTC())
		return transitioned, nil
	})
	return sess, transitioned, err
}

func (s *SessionStore) Get(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.resolve(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	return s.load(ctx, s.client, id)
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (domain.Session, error) {
	return s.load(ctx, s.client, id)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.load(ctx, s.client, id)
	if err != nil {
		return err
	}
	codeKey := s.codeKey(sess.Code)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, codeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.sessionKey(id))
			if current == id {
				pipe.Del(ctx, codeKey)
			}
			return nil
		})
		return err
	}, codeKey)
	if err != nil {
		return fmt.Errorf("%w: delete session %s: %v", domain.ErrUpstream, id, err)
	}
	return nil
}

// mutate loads the session under WATCH, applies fn and writes the result back when fn reports a change.
// A write also renews the TTL of the code index while it still points at this session.
func (s *SessionStore) mutate(ctx context.Context, code string, fn func(*domain.Session) (bool, error)) (domain.Session, error) {
	id, err := s.resolve(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	key := s.sessionKey(id)

	for i := 0; i < maxTxRetries; i++ {
		var result domain.Session
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			sess, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			changed, err := fn(&sess)
			if err != nil {
				return err
			}
			result = sess
			if !changed {
				return nil
			}
			raw, err := json.Marshal(sess)
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			// the code index expires with the document it points at
			owner, err := tx.Get(ctx, s.codeKey(sess.Code)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, s.ttl)
				if owner == id && s.ttl > 0 {
					pipe.Expire(ctx, s.codeKey(sess.Code), s.ttl)
				}
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return result, nil
		case isDomainErr(err):
			return domain.Session{}, err
		default:
			return domain.Session{}, fmt.Errorf("%w: update session %s: %v", domain.ErrUpstream, code, err)
		}
	}
	return domain.Session{}, fmt.Errorf("%w: update session %s: too much contention", domain.ErrUpstream, code)
}

func (s *SessionStore) resolve(ctx context.Context, code string) (string, error) {
	id, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: code %s", domain.ErrSessionNotFound, code)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve code %s: %v", domain.ErrUpstream, code, err)
	}
	return id, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) load(ctx context.Context, c getter, id string) (domain.Session, error) {
	raw, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, fmt.Errorf("%w: id %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: load session %s: %v", domain.ErrUpstream, id, err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrAlreadyStarted,
		domain.ErrInvalidState,
		domain.ErrUpstream,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *SessionStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *SessionStore) codeKey(code string) string {
	return s.prefix + "code:" + code
}
