package controller

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/api/response"
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"
	"ctchen222/Tic-Tac-Toe-Solo/internal/session"
	"ctchen222/Tic-Tac-Toe-Solo/internal/validator"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionRegistry is the part of the hub the controller needs.
type SessionRegistry interface {
	Register(ctx context.Context, conn session.Connection) (*session.Session, error)
	Lookup(id string) (*session.Session, bool)
	Count() int
}

// SessionController handles the polling API for game sessions.
type SessionController struct {
	sessions SessionRegistry
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessions SessionRegistry) *SessionController {
	return &SessionController{
		sessions: sessions,
	}
}

// RegisterRoutes mounts the session endpoints on rg.
func (sc *SessionController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", sc.Health)
	rg.POST("/sessions", sc.Create)

	sessions := rg.Group("/sessions/:id")
	sessions.GET("", sc.State)
	sessions.POST("/moves", sc.Move)
	sessions.POST("/restart", sc.Restart)
}

// Create opens a new session with a fresh game.
func (sc *SessionController) Create(c *gin.Context) {
	s, err := sc.sessions.Register(c.Request.Context(), nil)
	if err != nil {
		response.ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	response.CreatedResponse(c, s.Update())
}

// State returns the current state of a session.
func (sc *SessionController) State(c *gin.Context) {
	s, ok := sc.lookup(c)
	if !ok {
		return
	}

	response.SuccessResponse(c, s.Update())
}

// Move applies a human move.
func (sc *SessionController) Move(c *gin.Context) {
	s, ok := sc.lookup(c)
	if !ok {
		return
	}

	var req proto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.Struct(req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := s.Move(c.Request.Context(), *req.Row, *req.Col)
	if err != nil {
		if msg == nil {
			response.ErrorResponse(c, rejectionStatus(err), err.Error())
			return
		}
		response.FailureResponse(c, rejectionStatus(err), msg)
		return
	}

	response.SuccessResponse(c, msg)
}

// Restart discards the current game and starts a new one.
func (sc *SessionController) Restart(c *gin.Context) {
	s, ok := sc.lookup(c)
	if !ok {
		return
	}

	msg, err := s.Restart(c.Request.Context())
	if err != nil {
		response.ErrorResponse(c, rejectionStatus(err), err.Error())
		return
	}

	response.SuccessResponse(c, msg)
}

// Health reports liveness and the number of live sessions.
func (sc *SessionController) Health(c *gin.Context) {
	response.SuccessResponse(c, gin.H{
		"status":   "ok",
		"sessions": sc.sessions.Count(),
	})
}

func (sc *SessionController) lookup(c *gin.Context) (*session.Session, bool) {
	s, ok := sc.sessions.Lookup(c.Param("id"))
	if !ok {
		response.ErrorResponse(c, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, game.ErrOutOfBounds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}
