package hub

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/bot"
	"ctchen222/Tic-Tac-Toe-Solo/internal/events"
	"ctchen222/Tic-Tac-Toe-Solo/internal/session"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("hub")

const defaultCleanupInterval = time.Minute

// Hub manages all the sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	register   chan *RegistrationRequest
	unregister chan *session.Session
	done       chan struct{}
	closing    sync.WaitGroup

	publisher       events.Publisher
	botOpts         []bot.Option
	sessionTTL      time.Duration
	cleanupInterval time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithPublisher sets the publisher every session reports its events to.
func WithPublisher(p events.Publisher) Option {
	return func(h *Hub) { h.publisher = p }
}

// WithOpponent sets the options used to build each session's opponent.
func WithOpponent(opts ...bot.Option) Option {
	return func(h *Hub) { h.botOpts = opts }
}

// WithSessionTTL sets how long a session may stay idle before it is dropped.
func WithSessionTTL(ttl time.Duration) Option {
	return func(h *Hub) { h.sessionTTL = ttl }
}

// WithCleanupInterval sets how often idle sessions are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.cleanupInterval = d
		}
	}
}

// NewHub creates a new hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:        make(map[string]*session.Session),
		register:        make(chan *RegistrationRequest),
		unregister:      make(chan *session.Session),
		done:            make(chan struct{}),
		publisher:       events.NopPublisher{},
		cleanupInterval: defaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub. It returns when ctx is done, after closing every session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Hub started", "session.ttl", h.sessionTTL)
	for {
		select {
		case req := <-h.register:
			req.reply <- h.createSession(req.Ctx, req.Conn)

		case s := <-h.unregister:
			h.removeSession(ctx, s, "unregistered")

		case <-ticker.C:
			h.sweepIdleSessions(ctx, time.Now())

		case <-ctx.Done():
			h.closeAll(context.WithoutCancel(ctx))
			h.closing.Wait()
			slog.InfoContext(ctx, "Hub stopped")
			return
		}
	}
}

func (h *Hub) createSession(ctx context.Context, conn session.Connection) *session.Session {
	s := session.New(uuid.New().String(), conn, h.publisher, h.botOpts...)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	slog.InfoContext(ctx, "Session created", "session.id", s.ID, "session.websocket", conn != nil)
	return s
}

// removeSession drops s from the registry and closes it on its own goroutine,
// so a session stuck on its client never holds up the Run loop.
func (h *Hub) removeSession(ctx context.Context, s *session.Session, reason string) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	if ok {
		slog.InfoContext(ctx, "Session removed", "session.id", s.ID, "reason", reason)
	}

	h.closing.Add(1)
	go func() {
		defer h.closing.Done()
		if err := s.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close session", "session.id", s.ID, "error", err)
		}
	}()
}

func (h *Hub) closeAll(ctx context.Context) {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session.Session)
	h.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close session", "session.id", s.ID, "error", err)
		}
	}
}

// Lookup returns the session with the given id.
func (h *Hub) Lookup(id string) (*session.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
