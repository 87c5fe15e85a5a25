package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/metrics"
	"quiz-live-service/internal/notify"
	"quiz-live-service/internal/room"
)

const (
	DefaultGracePeriod = 3 * time.Second
	DefaultRevealDelay = 7 * time.Second
)

// Timing controls the pacing of a running session.
type Timing struct {
	// Grace is the pause between start and the first question.
	Grace time.Duration
	// RevealDelay is how long the correct answer stays on screen before the next question.
	RevealDelay time.Duration
	// EarlyReveal closes a question as soon as every player answered instead of waiting for the time limit.
	EarlyReveal bool
}

// Config wires the collaborators of a GameService. Notifier, Archive and Metrics are optional.
type Config struct {
	Sessions SessionRepository
	Quizzes  QuizRepository
	Rooms    *room.Broadcaster
	Notifier Notifier
	Archive  SessionArchive
	Metrics  *metrics.Metrics
	Clock    clockwork.Clock
	Timing   Timing
}

// GameService runs live quiz sessions: lifecycle commands, answer intake and the per-session progression.
type GameService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	rooms    *room.Broadcaster
	notifier Notifier
	archive  SessionArchive
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	timing   Timing

	mu      sync.Mutex
	runners map[string]*runner // by code
	wg      sync.WaitGroup
}

func NewGameService(cfg Config) *GameService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timing.Grace < 0 {
		cfg.Timing.Grace = 0
	}
	if cfg.Timing.RevealDelay < 0 {
		cfg.Timing.RevealDelay = 0
	}
	if cfg.Rooms == nil {
		cfg.Rooms = room.NewBroadcaster()
	}
	return &GameService{
		sessions: cfg.Sessions,
		quizzes:  cfg.Quizzes,
		rooms:    cfg.Rooms,
		notifier: cfg.Notifier,
		archive:  cfg.Archive,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		timing:   cfg.Timing,
		runners:  make(map[string]*runner),
	}
}

// CreateSession validates the quiz reference and opens a waiting session. When ep is
// non-nil it becomes the host channel of the new room.
func (g *GameService) CreateSession(ctx context.Context, quizRef, hostID string, ep room.Endpoint) (domain.Session, error) {
	quizRef, hostID = strings.TrimSpace(quizRef), strings.TrimSpace(hostID)
	if quizRef == "" || hostID == "" {
		return domain.Session{}, fmt.Errorf("%w: quizRef and hostId are required", domain.ErrInvalidArgument)
	}
	if _, err := g.quizzes.GetQuiz(ctx, quizRef); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	s, err := g.sessions.Create(ctx, quizRef, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	if ep != nil {
		g.rooms.Join(s.Code, ep, room.HostTag)
	}
	g.metrics.SessionCreated()
	g.notify(ctx, notify.Event{
		Type:        notify.SessionCreated,
		UserID:      hostID,
		SessionID:   s.ID,
		SessionCode: s.Code,
		Metadata:    map[string]any{"quizId": quizRef},
	})

	log.Info().Str("code", s.Code).Str("session_id", s.ID).Str("quiz_ref", quizRef).Msg("session created")
	return s, nil
}

// HostJoin attaches a (re)connected host endpoint to the room.
func (g *GameService) HostJoin(ctx context.Context, code, hostID string, ep room.Endpoint) (domain.Session, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if s.HostID != hostID {
		return domain.Session{}, fmt.Errorf("host-join %s: %w", code, domain.ErrUnauthorized)
	}
	g.rooms.Join(code, ep, room.HostTag)
	return s, nil
}

// JoinSession adds a player to a waiting session and announces them to the room.
func (g *GameService) JoinSession(ctx context.Context, code string, player domain.Player, ep room.Endpoint) (domain.Session, error) {
	player.ID = strings.TrimSpace(player.ID)
	player.DisplayName = strings.TrimSpace(player.DisplayName)
	if player.ID == "" {
		return domain.Session{}, fmt.Errorf("%w: player id is required", domain.ErrInvalidArgument)
	}
	if player.DisplayName == "" {
		player.DisplayName = player.ID
	}

	s, added, err := g.sessions.Join(ctx, code, player)
	if err != nil {
		return domain.Session{}, err
	}
	if ep != nil {
		g.rooms.Join(code, ep, room.PlayerTag(player.ID))
	}
	if !added {
		return s.PublicView(), nil
	}

	joined, _ := s.FindPlayer(player.ID)
	joined.Answers = nil
	msg := domain.Message{Type: domain.MsgPlayerJoined, Payload: joined}
	if ep != nil {
		g.rooms.SendToAllExcept(code, ep.ID(), msg)
	} else {
		g.rooms.SendToAll(code, msg)
	}
	g.notify(ctx, notify.Event{
		Type:        notify.PlayerJoined,
		UserID:      joined.UserID,
		SessionID:   s.ID,
		SessionCode: code,
		Metadata:    map[string]any{"playerId": joined.ID, "displayName": joined.DisplayName},
	})
	return s.PublicView(), nil
}

// Rejoin reattaches a known player's new connection, typically after a reconnect mid-game.
// Nothing is replayed; the returned snapshot is the catch-up state.
func (g *GameService) Rejoin(ctx context.Context, code, playerID string, ep room.Endpoint) (Snapshot, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	if _, ok := s.FindPlayer(playerID); !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, playerID)
	}
	g.rooms.Join(code, ep, room.PlayerTag(playerID))
	return g.snapshot(s, false), nil
}

// LeaveSession removes a player while the session is waiting. After start the player keeps
// their score and only the endpoint leaves the room.
func (g *GameService) LeaveSession(ctx context.Context, code, playerID string, ep room.Endpoint) error {
	_, removed, err := g.sessions.Leave(ctx, code, playerID)
	if err != nil {
		return err
	}
	if ep != nil {
		g.rooms.Leave(code, ep)
	}
	if removed {
		g.rooms.SendToAll(code, domain.Message{Type: domain.MsgPlayerLeft, Payload: domain.PlayerLeftPayload{PlayerID: playerID}})
	}
	return nil
}

// Disconnect forgets a closed endpoint. Players stay in their session and may rejoin.
func (g *GameService) Disconnect(endpointID string) {
	if code, tag, ok := g.rooms.Drop(endpointID); ok {
		log.Debug().Str("code", code).Str("tag", string(tag)).Str("endpoint_id", endpointID).Msg("endpoint disconnected")
	}
}

// StartSession moves a waiting session to active and launches its progression.
func (g *GameService) StartSession(ctx context.Context, code, hostID string) (domain.Session, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if s.HostID != hostID {
		return domain.Session{}, fmt.Errorf("start %s: %w", code, domain.ErrUnauthorized)
	}
	if s.Status != domain.StatusWaiting {
		return domain.Session{}, fmt.Errorf("start %s: %w", code, domain.ErrAlreadyStarted)
	}
	quiz, err := g.quizzes.GetQuiz(ctx, s.QuizRef)
	if err != nil {
		return domain.Session{}, fmt.Errorf("start %s: %w", code, err)
	}
	if len(quiz.Questions) == 0 {
		return domain.Session{}, fmt.Errorf("start %s: quiz %s has no questions: %w", code, s.QuizRef, domain.ErrInvalidState)
	}

	s, err = g.sessions.Start(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	g.metrics.SessionStarted()

	r := g.launch(s, len(quiz.Questions))
	g.rooms.SendToAll(code, domain.Message{Type: domain.MsgSessionStarted, Payload: domain.SessionStartedPayload{
		Code:         code,
		StartedAt:    *s.StartedAt,
		GraceSeconds: g.timing.Grace.Seconds(),
	}})
	g.notify(ctx, notify.Event{
		Type:        notify.SessionStarted,
		UserID:      s.HostID,
		SessionID:   s.ID,
		SessionCode: code,
		Metadata:    map[string]any{"players": len(s.Players), "totalQuestions": r.total},
	})
	log.Info().Str("code", code).Int("players", len(s.Players)).Int("questions", r.total).Msg("session started")
	return s, nil
}

// Submission is one answer sent by a player.
type Submission struct {
	Code     string
	PlayerID string
	// EndpointID is the connection the answer arrived on. It must be the one joined as PlayerID.
	EndpointID    string
	QuestionIndex int
	Answer        domain.Answer
	// ElapsedSeconds as measured by the client; nil means the server measures it.
	ElapsedSeconds *float64
}

// SubmitAnswer scores and records an answer for the active question. Repeated submissions
// return the first result unchanged.
func (g *GameService) SubmitAnswer(ctx context.Context, sub Submission) (domain.AnswerResult, error) {
	if !g.rooms.Has(sub.Code, sub.EndpointID, room.PlayerTag(sub.PlayerID)) {
		return domain.AnswerResult{}, fmt.Errorf("submit to %s as %s: endpoint not joined as that player: %w", sub.Code, sub.PlayerID, domain.ErrUnauthorized)
	}
	r := g.runner(sub.Code)
	if r == nil {
		if _, err := g.sessions.Get(ctx, sub.Code); err != nil {
			return domain.AnswerResult{}, err
		}
		return domain.AnswerResult{}, fmt.Errorf("submit to %s: no active question: %w", sub.Code, domain.ErrInvalidState)
	}

	// Hold the read lock for the whole intake so phase changes wait for in-flight answers.
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.phase != phaseQuestion {
		return domain.AnswerResult{}, fmt.Errorf("submit to %s: question closed: %w", sub.Code, domain.ErrInvalidState)
	}
	if sub.QuestionIndex != r.index {
		return domain.AnswerResult{}, fmt.Errorf("submit to %s: question %d is not active (current %d): %w", sub.Code, sub.QuestionIndex, r.index, domain.ErrInvalidState)
	}

	elapsed := g.clock.Since(r.openedAt).Seconds()
	if sub.ElapsedSeconds != nil {
		elapsed = *sub.ElapsedSeconds
	}
	if elapsed < 0 {
		elapsed = 0
	}
	q := r.question
	correct, points := Evaluate(q, sub.Answer, elapsed)
	rec := domain.AnswerRecord{
		QuestionIndex:  r.index,
		Answer:         sub.Answer,
		IsCorrect:      correct,
		PointsAwarded:  points,
		ElapsedSeconds: elapsed,
		RecordedAt:     g.clock.Now().UTC(),
	}

	s, stored, applied, err := g.sessions.RecordAnswer(ctx, sub.Code, sub.PlayerID, rec)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	player, _ := s.FindPlayer(sub.PlayerID)
	result := domain.AnswerResult{
		QuestionIndex: stored.QuestionIndex,
		IsCorrect:     stored.IsCorrect,
		Points:        stored.PointsAwarded,
		TotalScore:    player.Score,
		CorrectAnswer: q.CorrectAnswer,
		Duplicate:     !applied,
	}
	if !applied {
		return result, nil
	}

	g.metrics.AnswerRecorded(correct)
	answered, total := s.Answered(r.index), len(s.Players)
	g.rooms.SendToTag(sub.Code, room.HostTag, domain.Message{Type: domain.MsgAnswerCount, Payload: domain.AnswerCountPayload{
		QuestionIndex: r.index,
		Answered:      answered,
		Total:         total,
	}})
	g.rooms.SendToTag(sub.Code, room.HostTag, domain.Message{Type: domain.MsgPlayerAnswered, Payload: domain.PlayerAnsweredPayload{
		QuestionIndex: r.index,
		PlayerID:      player.ID,
		DisplayName:   player.DisplayName,
		IsCorrect:     correct,
		Points:        points,
	}})
	g.notify(ctx, notify.Event{
		Type:        notify.AnswerSubmitted,
		UserID:      player.UserID,
		SessionID:   s.ID,
		SessionCode: sub.Code,
		Metadata: map[string]any{
			"questionIndex": r.index,
			"isCorrect":     correct,
			"points":        points,
			"timeTaken":     elapsed,
		},
	})
	if g.timing.EarlyReveal && answered >= total {
		r.wakeUp()
	}
	return result, nil
}

// EndSession finishes the session on the host's command, cancelling its progression.
func (g *GameService) EndSession(ctx context.Context, code, hostID string) (domain.Session, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if s.HostID != hostID {
		return domain.Session{}, fmt.Errorf("end %s: %w", code, domain.ErrUnauthorized)
	}
	if s.Status == domain.StatusFinished {
		return domain.Session{}, fmt.Errorf("end %s: already finished: %w", code, domain.ErrInvalidState)
	}

	total := 0
	if r := g.runner(code); r != nil {
		r.stop()
		total = r.total
	} else if quiz, err := g.quizzes.GetQuiz(ctx, s.QuizRef); err == nil {
		total = len(quiz.Questions)
	}

	finished, transitioned, err := g.finishSession(ctx, code, domain.ReasonEndedByHost, total)
	if err != nil {
		return domain.Session{}, err
	}
	if !transitioned {
		return domain.Session{}, fmt.Errorf("end %s: already finished: %w", code, domain.ErrInvalidState)
	}
	return finished, nil
}

// GetSession returns the session as seen by viewerID: the host gets every answer, everybody else scores only.
func (g *GameService) GetSession(ctx context.Context, code, viewerID string) (domain.Session, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if viewerID != "" && viewerID == s.HostID {
		return s, nil
	}
	return s.PublicView(), nil
}

// Snapshot is the catch-up state of a session for a (re)connecting client.
type Snapshot struct {
	Session  domain.Session         `json:"session"`
	Phase    string                 `json:"phase"`
	Index    int                    `json:"questionIndex"`
	Total    int                    `json:"totalQuestions,omitempty"`
	Question *domain.PublicQuestion `json:"question,omitempty"`
	Deadline *time.Time             `json:"deadline,omitempty"`
}

// State returns the session together with its progression phase.
func (g *GameService) State(ctx context.Context, code, viewerID string) (Snapshot, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	return g.snapshot(s, viewerID != "" && viewerID == s.HostID), nil
}

func (g *GameService) snapshot(s domain.Session, full bool) Snapshot {
	snap := Snapshot{Session: s, Phase: string(s.Status), Index: -1}
	if !full {
		snap.Session = s.PublicView()
	}
	if r := g.runner(s.Code); r != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		snap.Phase = string(r.phase)
		snap.Index = r.index
		snap.Total = r.total
		if r.phase == phaseQuestion {
			pub := r.question.Public()
			deadline := r.deadline
			snap.Question = &pub
			snap.Deadline = &deadline
		}
	}
	return snap
}

// Leaderboard ranks the players of a session by their current score.
func (g *GameService) Leaderboard(ctx context.Context, code string) ([]domain.RankedPlayer, error) {
	s, err := g.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return Rank(s.Players), nil
}

// History returns a session by its stable id, falling back to the archive once the live store forgot it.
func (g *GameService) History(ctx context.Context, id, viewerID string) (domain.Session, error) {
	s, err := g.sessions.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) && g.archive != nil {
		s, err = g.archive.Load(ctx, id)
	}
	if err != nil {
		return domain.Session{}, err
	}
	if viewerID != "" && viewerID == s.HostID {
		return s, nil
	}
	return s.PublicView(), nil
}

// DeleteSession removes a session and its history. A live session is finished first.
func (g *GameService) DeleteSession(ctx context.Context, id, hostID string) error {
	s, err := g.sessions.GetByID(ctx, id)
	live := err == nil
	if errors.Is(err, domain.ErrNotFound) && g.archive != nil {
		s, err = g.archive.Load(ctx, id)
	}
	if err != nil {
		return err
	}
	if s.HostID != hostID {
		return fmt.Errorf("delete %s: %w", id, domain.ErrUnauthorized)
	}

	if live && s.Status != domain.StatusFinished {
		total := 0
		if r := g.runner(s.Code); r != nil {
			r.stop()
			total = r.total
		}
		if _, _, err := g.finishSession(ctx, s.Code, domain.ReasonDeleted, total); err != nil {
			return err
		}
	}
	if live {
		current, err := g.sessions.Get(ctx, s.Code)
		if err == nil && current.ID == id {
			g.rooms.CloseRoom(s.Code)
		}
		if err := g.sessions.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if g.archive != nil {
		if err := g.archive.Delete(ctx, id); err != nil {
			return err
		}
	}
	log.Info().Str("session_id", id).Str("code", s.Code).Msg("session deleted")
	return nil
}

// Shutdown cancels every running progression and waits for them to exit.
func (g *GameService) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	for _, r := range g.runners {
		r.cancel()
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishSession finalizes the store and, only for the call that performed the transition,
// broadcasts the final leaderboard, archives the session and emits completion events.
func (g *GameService) finishSession(ctx context.Context, code, reason string, totalQuestions int) (domain.Session, bool, error) {
	s, transitioned, err := g.sessions.Finish(ctx, code, reason)
	if err != nil {
		return domain.Session{}, false, err
	}
	g.forget(code)
	if !transitioned {
		return s, false, nil
	}

	ranked := Rank(s.Players)
	g.rooms.SendToAll(code, domain.Message{Type: domain.MsgSessionFinished, Payload: domain.SessionFinishedPayload{
		Code:        code,
		Reason:      reason,
		Leaderboard: ranked,
	}})
	g.metrics.SessionFinished(s.StartedAt != nil)

	if g.archive != nil {
		if err := g.archive.Save(ctx, s); err != nil {
			log.Error().Err(err).Str("session_id", s.ID).Msg("archive finished session")
		}
	}

	g.notify(ctx, notify.Event{
		Type:        notify.SessionFinished,
		UserID:      s.HostID,
		SessionID:   s.ID,
		SessionCode: code,
		Metadata:    map[string]any{"reason": reason, "players": len(s.Players), "totalQuestions": totalQuestions},
	})
	for _, row := range ranked {
		p, _ := s.FindPlayer(row.PlayerID)
		if p.UserID == "" {
			continue
		}
		correctAnswers := p.CorrectAnswers()
		accuracy := 0.0
		if totalQuestions > 0 {
			accuracy = float64(correctAnswers) / float64(totalQuestions) * 100
		}
		g.notify(ctx, notify.Event{
			Type:        notify.PlayerCompleted,
			UserID:      p.UserID,
			SessionID:   s.ID,
			SessionCode: code,
			Metadata: map[string]any{
				"quizId":         s.QuizRef,
				"score":          p.Score,
				"rank":           row.Rank,
				"totalPlayers":   len(s.Players),
				"accuracy":       accuracy,
				"correctAnswers": correctAnswers,
				"totalQuestions": totalQuestions,
				"isHost":         p.UserID == s.HostID,
				"won":            row.Rank == 1,
			},
		})
	}

	log.Info().Str("code", code).Str("reason", reason).Int("players", len(s.Players)).Msg("session finished")
	return s, true, nil
}

func (g *GameService) notify(ctx context.Context, e notify.Event) {
	if g.notifier == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = g.clock.Now().UTC()
	}
	g.notifier.Notify(ctx, e)
}

func (g *GameService) runner(code string) *runner {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runners[code]
}

func (g *GameService) forget(code string) {
	g.mu.Lock()
	r, ok := g.runners[code]
	delete(g.runners, code)
	g.mu.Unlock()
	if ok {
		r.cancel()
	}
}
