package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/metrics"
)

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

var (
	errEndpointClosed = errors.New("endpoint closed")
	errSlowConsumer   = errors.New("endpoint send buffer full")
)

type WSHandler struct {
	service  *app.GameService
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, m *metrics.Metrics) *WSHandler {
	return &WSHandler{
		service: service,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsEndpoint is the room-facing side of one connection. Sends never block the caller:
// a full buffer fails the send, the broadcaster drops the endpoint and kick closes the
// connection so the client notices and reconnects.
type wsEndpoint struct {
	id   string
	send chan domain.Message

	kick     func()
	kickOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func newWSEndpoint(kick func()) *wsEndpoint {
	return &wsEndpoint{id: uuid.NewString(), send: make(chan domain.Message, sendBuffer), kick: kick}
}

func (e *wsEndpoint) ID() string { return e.id }

func (e *wsEndpoint) Send(msg domain.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEndpointClosed
	}
	select {
	case e.send <- msg:
		return nil
	default:
		if e.kick != nil {
			e.kickOnce.Do(e.kick)
		}
		return errSlowConsumer
	}
}

func (e *wsEndpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.send)
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createSessionPayload struct {
	QuizRef string `json:"quizRef"`
	HostID  string `json:"hostId"`
}

type hostPayload struct {
	Code   string `json:"code"`
	HostID string `json:"hostId"`
}

type joinSessionPayload struct {
	Code   string `json:"code"`
	Player struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		AvatarToken string `json:"avatarToken"`
		UserID      string `json:"userId"`
	} `json:"player"`
}

type playerPayload struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type getSessionPayload struct {
	Code     string `json:"code"`
	ViewerID string `json:"viewerId"`
}

type submitAnswerPayload struct {
	Code           string        `json:"code"`
	PlayerID       string        `json:"playerId"`
	QuestionIndex  *int          `json:"questionIndex"`
	Answer         domain.Answer `json:"answer"`
	ElapsedSeconds *float64      `json:"elapsedSeconds"`
}

// ServeWS upgrades HTTP requests to websockets and routes their messages into the game service.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ep := newWSEndpoint(func() { _ = conn.Close() })
	h.metrics.ConnectionOpened()
	logger := log.With().Str("endpoint_id", ep.id).Logger()
	logger.Debug().Str("remote", r.RemoteAddr).Msg("ws connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range ep.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn().Err(err).Msg("ws write error")
				// unblock the reader, then drain until the endpoint is closed
				_ = conn.Close()
				for range ep.send {
				}
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("ws read error")
			}
			break
		}
		reply, err := h.dispatch(r.Context(), ep, inbound)
		if err != nil {
			if errors.Is(err, domain.ErrUpstream) || domain.ErrorCode(err) == "internal" {
				logger.Error().Err(err).Str("type", inbound.Type).Msg("ws command failed")
			}
			reply = domain.ErrorMessage(err)
		}
		if reply.Type != "" {
			if err := ep.Send(reply); err != nil {
				logger.Warn().Err(err).Str("type", reply.Type).Msg("ws reply dropped")
			}
		}
	}

	h.service.Disconnect(ep.id)
	ep.close()
	<-writerDone
	h.metrics.ConnectionClosed()
	logger.Debug().Msg("ws disconnected")
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrInvalidArgument)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// dispatch runs one inbound command. The returned message, if any, goes back to the origin only.
func (h *WSHandler) dispatch(ctx context.Context, ep *wsEndpoint, in inboundMessage) (domain.Message, error) {
	switch in.Type {
	case "create-session":
		var p createSessionPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		s, err := h.service.CreateSession(ctx, p.QuizRef, p.HostID, ep)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgSessionCreated, Payload: s}, nil

	case "host-join":
		var p hostPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		s, err := h.service.HostJoin(ctx, p.Code, p.HostID, ep)
		if err != nil {
			return domain.Message{}, err
		}
		snap, err := h.service.State(ctx, s.Code, p.HostID)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgHostJoined, Payload: snap}, nil

	case "join-session":
		var p joinSessionPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		s, err := h.service.JoinSession(ctx, p.Code, domain.Player{
			ID:          p.Player.ID,
			UserID:      p.Player.UserID,
			DisplayName: p.Player.DisplayName,
			AvatarToken: p.Player.AvatarToken,
		}, ep)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgJoinedSession, Payload: s}, nil

	case "rejoin-session":
		var p playerPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		snap, err := h.service.Rejoin(ctx, p.Code, p.PlayerID, ep)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgRejoinedSession, Payload: snap}, nil

	case "leave-session":
		var p playerPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		return domain.Message{}, h.service.LeaveSession(ctx, p.Code, p.PlayerID, ep)

	case "get-session":
		var p getSessionPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		snap, err := h.service.State(ctx, p.Code, p.ViewerID)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgSessionState, Payload: snap}, nil

	case "start-session":
		var p hostPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		_, err := h.service.StartSession(ctx, p.Code, p.HostID)
		return domain.Message{}, err

	case "submit-answer":
		var p submitAnswerPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		if p.QuestionIndex == nil {
			return domain.Message{}, fmt.Errorf("%w: questionIndex is required", domain.ErrInvalidArgument)
		}
		result, err := h.service.SubmitAnswer(ctx, app.Submission{
			Code:           p.Code,
			PlayerID:       p.PlayerID,
			EndpointID:     ep.ID(),
			QuestionIndex:  *p.QuestionIndex,
			Answer:         p.Answer,
			ElapsedSeconds: p.ElapsedSeconds,
		})
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MsgAnswerResult, Payload: result}, nil

	case "end-session":
		var p hostPayload
		if err := decode(in.Payload, &p); err != nil {
			return domain.Message{}, err
		}
		_, err := h.service.EndSession(ctx, p.Code, p.HostID)
		return domain.Message{}, err

	default:
		return domain.Message{}, fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidArgument, in.Type)
	}
}
