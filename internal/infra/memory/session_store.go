package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"quiz-live-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The store lock only guards the indexes; session mutations lock the session entry.
type SessionStore struct {
	clock clockwork.Clock
	codes domain.CodeSource
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*entry // id -> entry
	byCode   map[string]string // code -> id of the latest session using it
}

type entry struct {
	mu      sync.Mutex
	session domain.Session
}

type Option func(*SessionStore)

// WithClock sets the clock used for lifecycle timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *SessionStore) { s.clock = c }
}

// WithCodeSource replaces the random join code generator.
func WithCodeSource(src domain.CodeSource) Option {
	return func(s *SessionStore) { s.codes = src }
}

func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		clock:    clockwork.NewRealClock(),
		codes:    domain.RandomCode,
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
		byCode:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) Create(_ context.Context, quizRef, hostID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < domain.MaxCodeAttempts; attempt++ {
		code := s.codes()
		if s.codeInUseLocked(code) {
			continue
		}
		session := domain.Session{
			ID:        s.newID(),
			Code:      code,
			QuizRef:   quizRef,
			HostID:    hostID,
			Status:    domain.StatusWaiting,
			Players:   []domain.Player{},
			CreatedAt: s.clock.Now().UTC(),
		}
		s.sessions[session.ID] = &entry{session: session}
		s.byCode[code] = session.ID
		return session.Clone(), nil
	}
	return domain.Session{}, fmt.Errorf("create session after %d attempts: %w", domain.MaxCodeAttempts, domain.ErrCodeExhausted)
}

func (s *SessionStore) codeInUseLocked(code string) bool {
	id, ok := s.byCode[code]
	if !ok {
		return false
	}
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Status != domain.StatusFinished
}

func (s *SessionStore) Join(_ context.Context, code string, player domain.Player) (domain.Session, bool, error) {
	var added bool
	sess, err := s.mutate(code, func(sess *domain.Session) error {
		before := len(sess.Players)
		if err := sess.AddPlayer(player, s.clock.Now().UTC()); err != nil {
			return err
		}
		added = len(sess.Players) != before
		return nil
	})
	return sess, added, err
}

func (s *SessionStore) Leave(_ context.Context, code, playerID string) (domain.Session, bool, error) {
	var removed bool
	sess, err := s.mutate(code, func(sess *domain.Session) error {
		removed = sess.RemovePlayer(playerID)
		return nil
	})
	return sess, removed, err
}

func (s *SessionStore) Start(_ context.Context, code string) (domain.Session, error) {
	return s.mutate(code, func(sess *domain.Session) error {
		return sess.Start(s.clock.Now().UTC())
	})
}

func (s *SessionStore) RecordAnswer(_ context.Context, code, playerID string, rec domain.AnswerRecord) (domain.Session, domain.AnswerRecord, bool, error) {
	var (
		stored  domain.AnswerRecord
		applied bool
	)
	sess, err := s.mutate(code, func(sess *domain.Session) error {
		var err error
		stored, err = sess.RecordAnswer(playerID, rec)
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			return nil
		}
		applied = err == nil
		return err
	})
	return sess, stored, applied, err
}

func (s *SessionStore) Finish(_ context.Context, code, reason string) (domain.Session, bool, error) {
	var transitioned bool
	sess, err := s.mutate(code, func(sess *domain.Session) error {
		transitioned = sess.Finish(reason, s.clock.Now().UTC())
		return nil
	})
	return sess, transitioned, err
}

func (s *SessionStore) Get(_ context.Context, code string) (domain.Session, error) {
	e, err := s.byCodeEntry(code)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (s *SessionStore) GetByID(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: id %s", domain.ErrSessionNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: id %s", domain.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	e.mu.Lock()
	code := e.session.Code
	e.mu.Unlock()
	if s.byCode[code] == id {
		delete(s.byCode, code)
	}
	return nil
}

func (s *SessionStore) byCodeEntry(code string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", domain.ErrSessionNotFound, code)
	}
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", domain.ErrSessionNotFound, code)
	}
	return e, nil
}

// mutate applies fn under the session lock. The session is left untouched when fn fails.
func (s *SessionStore) mutate(code string, fn func(*domain.Session) error) (domain.Session, error) {
	e, err := s.byCodeEntry(code)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.session.Clone()
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	e.session = next
	return next.Clone(), nil
}
