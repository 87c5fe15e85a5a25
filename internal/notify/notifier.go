// Package notify dispatches session lifecycle events to analytics and stats collaborators.
// Delivery is best effort: failures are logged and never reach the game flow.
package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultPoolSize = 256
	defaultTimeout  = 10 * time.Second
)

// Event types emitted by the game service.
const (
	SessionCreated  = "session_created"
	SessionStarted  = "session_started"
	PlayerJoined    = "player_joined"
	AnswerSubmitted = "answer_submitted"
	SessionFinished = "session_finished"
	PlayerCompleted = "player_completed"
)

// Event is one lifecycle notification.
type Event struct {
	Type        string         `json:"eventType"`
	UserID      string         `json:"userId,omitempty"`
	SessionID   string         `json:"sessionId"`
	SessionCode string         `json:"sessionCode"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// Sink delivers events to one collaborator.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Notifier fans events out to its sinks on a bounded number of goroutines.
type Notifier struct {
	sinks   []Sink
	pool    chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup
	onDrop  func(Event)
}

type Option func(*Notifier)

// WithPoolSize bounds the number of in-flight deliveries.
func WithPoolSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.pool = make(chan struct{}, size)
		}
	}
}

// WithTimeout bounds a single delivery.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithDropHook is called for every delivery skipped because the pool was saturated.
func WithDropHook(fn func(Event)) Option {
	return func(n *Notifier) { n.onDrop = fn }
}

// New creates a Notifier. Callers should call Stop on shutdown to flush in-flight deliveries.
func New(sinks []Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sinks:   sinks,
		pool:    make(chan struct{}, defaultPoolSize),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify hands the event to every sink without blocking the caller.
func (n *Notifier) Notify(ctx context.Context, e Event) {
	if n == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, s := range n.sinks {
		n.dispatch(ctx, s, e)
	}
}

func (n *Notifier) dispatch(ctx context.Context, s Sink, e Event) {
	select {
	case n.pool <- struct{}{}:
	default:
		log.Warn().Str("sink", s.Name()).Str("event", e.Type).Str("session_id", e.SessionID).Msg("notify: pool saturated, dropping event")
		if n.onDrop != nil {
			n.onDrop(e)
		}
		return
	}

	n.wg.Add(1)
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Err(fmt.Errorf("%v, stack: %s", r, debug.Stack())).
					Str("sink", s.Name()).
					Msg("notify: sink panic")
			}
			cancel()
			<-n.pool
			n.wg.Done()
		}()

		if err := s.Deliver(ctx, e); err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Str("event", e.Type).Msg("notify: deliver failed")
		}
	}()
}

// Stop waits for in-flight deliveries.
func (n *Notifier) Stop() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
