package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/metrics"
)

type createSessionRequest struct {
	QuizRef string `json:"quizRef" binding:"required"`
	HostID  string `json:"hostId" binding:"required"`
}

type errorResponse struct {
	Error domain.ErrorPayload `json:"error"`
}

// NewRouter builds the REST surface, the metrics endpoint and the websocket upgrade route.
func NewRouter(service *app.GameService, ws *WSHandler, m *metrics.Metrics) http.Handler {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	e.GET("/metrics", gin.WrapH(m.Handler()))
	e.GET("/ws", gin.WrapF(ws.ServeWS))

	api := &api{service: service}
	e.POST("/sessions", api.createSession)
	e.GET("/sessions/:code", api.getSession)
	e.GET("/sessions/:code/leaderboard", api.leaderboard)
	e.GET("/history/:id", api.history)
	e.DELETE("/history/:id", api.deleteHistory)

	return cors.AllowAll().Handler(e)
}

type api struct {
	service *app.GameService
}

func (a *api) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	s, err := a.service.CreateSession(c.Request.Context(), req.QuizRef, req.HostID, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (a *api) getSession(c *gin.Context) {
	s, err := a.service.GetSession(c.Request.Context(), c.Param("code"), c.Query("hostId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) leaderboard(c *gin.Context) {
	ranked, err := a.service.Leaderboard(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": c.Param("code"), "leaderboard": ranked})
}

func (a *api) history(c *gin.Context) {
	s, err := a.service.History(c.Request.Context(), c.Param("id"), c.Query("hostId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) deleteHistory(c *gin.Context) {
	hostID := c.Query("hostId")
	if hostID == "" {
		writeError(c, errors.Join(domain.ErrUnauthorized, errors.New("hostId is required")))
		return
	}
	if err := a.service.DeleteSession(c.Request.Context(), c.Param("id"), hostID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyStarted), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrCodeExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: domain.ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()}})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/healthz" || c.FullPath() == "/metrics" {
			return
		}
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
