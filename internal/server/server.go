package server

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/api/controller"
	"ctchen222/Tic-Tac-Toe-Solo/internal/hub"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

type Server struct {
	hub      *hub.Hub
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds the gin engine: the JSON API under /api, the websocket
// endpoint at /ws and the static client from webDir for everything else.
func NewServer(h *hub.Hub, webDir string) *Server {
	s := &Server{
		hub:    h,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.engine.Use(gin.Recovery(), requestLogger())

	controller.NewSessionController(h).RegisterRoutes(s.engine.Group("/api"))
	s.engine.GET("/ws", s.handleWebSocket)
	if webDir != "" {
		s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(webDir))))
	}
	return s
}

// Engine returns the HTTP handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// handleWebSocket upgrades the connection, opens a session for it and pumps
// client messages until the client goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
		attribute.String("http.method", c.Request.Method),
	))
	defer span.End()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	sess, err := s.hub.Register(ctx, conn)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to register session", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to register session")
		_ = conn.Close()
		return
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))

	sess.Welcome(ctx)
	if err := sess.ReadPump(context.WithoutCancel(ctx)); err != nil {
		span.RecordError(err)
	}
	s.hub.Unregister(sess)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.DebugContext(c.Request.Context(), "HTTP request",
			"http.method", c.Request.Method,
			"http.path", c.Request.URL.Path,
			"http.status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
