package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/room"
)

type phase string

const (
	phaseGrace    phase = "starting"
	phaseQuestion phase = "question"
	phaseReveal   phase = "reveal"
	phaseHalted   phase = "halted"
	phaseFinished phase = "finished"
)

// runner walks one session through its questions. Every phase change happens under
// mu, and answer intake holds the read lock, so a question never closes while an
// answer for it is being recorded.
type runner struct {
	code    string
	id      string
	quizRef string
	total   int

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu       sync.RWMutex
	phase    phase
	index    int
	question domain.Question
	openedAt time.Time
	deadline time.Time
}

// stop marks the runner finished so it will not broadcast again, then cancels its timers.
func (r *runner) stop() {
	r.mu.Lock()
	r.phase = phaseFinished
	r.mu.Unlock()
	r.cancel()
}

func (r *runner) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// launch registers and starts the progression of a freshly started session.
func (g *GameService) launch(s domain.Session, total int) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		code:    s.Code,
		id:      s.ID,
		quizRef: s.QuizRef,
		total:   total,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		phase:   phaseGrace,
		index:   -1,
	}

	g.mu.Lock()
	if prev, ok := g.runners[s.Code]; ok {
		prev.cancel()
	}
	g.runners[s.Code] = r
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run(r)
	return r
}

func (g *GameService) run(r *runner) {
	defer g.wg.Done()
	logger := log.With().Str("code", r.code).Str("session_id", r.id).Logger()

	if !g.sleep(r.ctx, g.timing.Grace) {
		return
	}

	for i := 0; i < r.total; i++ {
		q, err := g.loadQuestion(r, i)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			g.halt(r, i, err)
			return
		}

		if !g.openQuestion(r, i, q) {
			return
		}
		logger.Debug().Int("question", i).Msg("question opened")

		if !g.waitForAnswers(r, q.Duration()) {
			return
		}

		ok, err := g.reveal(r, i, q)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			g.halt(r, i, err)
			return
		}
		if !ok {
			return
		}

		if !g.sleep(r.ctx, g.timing.RevealDelay) {
			return
		}
	}

	r.mu.Lock()
	if r.phase == phaseFinished {
		r.mu.Unlock()
		return
	}
	r.phase = phaseFinished
	r.mu.Unlock()

	// the session must be finalized even though finishing cancels r.ctx
	if _, _, err := g.finishSession(context.WithoutCancel(r.ctx), r.code, domain.ReasonCompleted, r.total); err != nil {
		logger.Error().Err(err).Msg("finish completed session")
	}
}

// loadQuestion re-reads the quiz so edits made mid-session apply to later questions.
func (g *GameService) loadQuestion(r *runner, index int) (domain.Question, error) {
	quiz, err := g.quizzes.GetQuiz(r.ctx, r.quizRef)
	if err != nil {
		return domain.Question{}, err
	}
	q, err := quiz.Question(index)
	if err != nil {
		return domain.Question{}, fmt.Errorf("quiz %s: %w", r.quizRef, err)
	}
	return q, nil
}

func (g *GameService) openQuestion(r *runner, i int, q domain.Question) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == phaseFinished {
		return false
	}
	now := g.clock.Now()
	r.phase = phaseQuestion
	r.index = i
	r.question = q
	r.openedAt = now
	r.deadline = now.Add(q.Duration())

	// drain a wake-up left over from the previous question
	select {
	case <-r.wake:
	default:
	}

	g.rooms.SendToAll(r.code, domain.Message{Type: domain.MsgQuestionStarted, Payload: domain.QuestionStartedPayload{
		QuestionIndex:    i,
		TotalQuestions:   r.total,
		Question:         q.Public(),
		TimeLimitSeconds: q.TimeLimit(),
		Deadline:         r.deadline.UTC(),
	}})
	return true
}

// reveal closes question i, stores timeout markers for players who did not answer and
// broadcasts the correct answer with the live leaderboard.
func (g *GameService) reveal(r *runner, i int, q domain.Question) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == phaseFinished {
		return false, nil
	}
	r.phase = phaseReveal

	s, err := g.sessions.Get(r.ctx, r.code)
	if err != nil {
		return false, err
	}
	elapsed := g.clock.Since(r.openedAt).Seconds()
	now := g.clock.Now().UTC()
	for _, p := range s.Players {
		if _, ok := p.AnswerFor(i); ok {
			continue
		}
		s, _, _, err = g.sessions.RecordAnswer(r.ctx, r.code, p.ID, domain.TimeoutRecord(i, elapsed, now))
		if err != nil {
			return false, err
		}
	}

	g.rooms.SendToAll(r.code, domain.Message{Type: domain.MsgAnswerRevealed, Payload: domain.AnswerRevealedPayload{
		QuestionIndex:     i,
		CorrectAnswer:     q.CorrectAnswer,
		CorrectAnswerText: q.CorrectText(),
		Leaderboard:       Rank(s.Players),
	}})
	return true, nil
}

// halt stops automatic progression after an upstream failure. The session keeps its
// state and only a host end moves it on.
func (g *GameService) halt(r *runner, i int, cause error) {
	r.mu.Lock()
	if r.phase == phaseFinished {
		r.mu.Unlock()
		return
	}
	r.phase = phaseHalted
	r.mu.Unlock()

	log.Error().Err(cause).Str("code", r.code).Int("question", i).Msg("progression halted")
	g.metrics.ProgressionHalted()
	g.rooms.SendToTag(r.code, room.HostTag, domain.Message{Type: domain.MsgProgressionHalted, Payload: domain.ProgressionHaltedPayload{
		QuestionIndex: i,
		Reason:        cause.Error(),
	}})
}

func (g *GameService) waitForAnswers(r *runner, limit time.Duration) bool {
	var wake <-chan struct{}
	if g.timing.EarlyReveal {
		wake = r.wake
	}
	timer := g.clock.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-wake:
		return true
	}
}

func (g *GameService) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := g.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
