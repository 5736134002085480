// Package ws serves the charades protocol over WebSocket and the small HTTP
// surface the browser client uses to bootstrap a room.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/config"
	"github.com/cory-johannsen/mimic/internal/game/room"
	"github.com/cory-johannsen/mimic/internal/gameserver"
	"github.com/cory-johannsen/mimic/internal/observability"
)

// SessionHandler serves one upgraded connection until it closes.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn gameserver.Conn, remote string) error
}

// RoomService backs the HTTP routes.
type RoomService interface {
	CreateRoom(ctx context.Context) (*room.Room, error)
	Room(ctx context.Context, id string) (*room.Room, error)
}

// Server owns the fiber app. Every session it starts runs under a base
// context that Stop cancels.
type Server struct {
	cfg      config.WebSocketConfig
	sessions SessionHandler
	rooms    RoomService
	logger   *zap.Logger
	validate *validator.Validate

	app    *fiber.App
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// NewServer builds the app and registers its routes.
//
// Precondition: sessions, rooms, and logger must be non-nil.
// Postcondition: Returns a Server ready for ListenAndServe or Serve.
func NewServer(cfg config.WebSocketConfig, sessions SessionHandler, rooms RoomService, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		rooms:    rooms,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "mimic",
		DisableStartupMessage: true,
	})
	s.routes()
	return s
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	origins := s.cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{AllowOrigins: origins}))
	s.app.Use(observability.AccessLog(s.logger))

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/createRoom", s.handleCreateRoom)
	s.app.Get("/api/rooms/:id/status", s.handleRoomStatus)

	path := s.cfg.Path
	if path == "" {
		path = "/ws/room"
	}
	s.app.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get(path, websocket.New(s.handleSocket, websocket.Config{
		Origins: splitOrigins(origins),
	}))
}

// handleSocket bridges one upgraded connection to the session handler.
func (s *Server) handleSocket(c *websocket.Conn) {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	remote := c.RemoteAddr().String()
	conn := NewConn(c, s.cfg.MaxMessageBytes, s.cfg.PongWait, s.cfg.WriteTimeout)
	defer conn.Close()
	go conn.KeepAlive(s.cfg.PingInterval)

	s.logger.Info("client connected", zap.String("remote_addr", remote))
	if err := s.sessions.HandleSession(s.ctx, conn, remote); err != nil {
		s.logger.Debug("session ended",
			zap.String("remote_addr", remote),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.Info("session ended cleanly",
		zap.String("remote_addr", remote),
		zap.Duration("duration", time.Since(start)),
	)
}

// ListenAndServe listens on the configured address and serves until Stop.
//
// Postcondition: Returns nil after a Stop-initiated shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("websocket server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop ends every session, then shuts the HTTP server down. Later calls
// return the first result.
//
// Postcondition: No session goroutines remain, or ctx's error is returned.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { s.stopErr = s.stop(ctx) })
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}

func splitOrigins(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
