package status

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-embody/pkg/hub"
)

// shutdownTimeout bounds graceful shutdown on context cancellation.
const shutdownTimeout = 2 * time.Second

// Server is the fiber-based introspection server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	provider Provider
	app      *fiber.App
	events   *hub.Hub

	mu   sync.Mutex
	addr string
}

// NewServer builds the server and its routes. provider may be nil, in
// which case /api/state serves a zero snapshot.
func NewServer(cfg Config, provider Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		events:   hub.New("events", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "embody status",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/healthz", s.handleHealthz)
	api.Get("/state", s.handleState)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	// The hub outlives the listener slightly so disconnecting clients
	// can still unregister during shutdown.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.events.Run(hubCtx)
	}()

	s.logger.Info("status server listening", "addr", s.addr)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.app.Listener(ln) }()

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("status shutdown", "error", err)
		}
		stopHub()
		<-hubDone
		<-serveErr
		return ctx.Err()
	case err := <-serveErr:
		stopHub()
		<-hubDone
		return err
	}
}

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Publish broadcasts a typed event to all /ws/events subscribers.
func (s *Server) Publish(kind string, data any) {
	evt := Event{Kind: kind, At: time.Now().UTC(), Data: data}
	if err := s.events.BroadcastJSON(evt); err != nil {
		s.logger.Warn("event encode failed", "kind", kind, "error", err)
	}
}

// EventClients returns the number of connected event subscribers.
func (s *Server) EventClients() int {
	return s.events.ClientCount()
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	// Prime the stream before the pumps take over the connection.
	c.WriteJSON(Event{Kind: EventSnapshot, At: time.Now().UTC(), Data: s.snapshot()})

	client := hub.NewClient(s.events, c)
	client.Run()
}

func (s *Server) snapshot() Snapshot {
	if s.provider == nil {
		return Snapshot{}
	}
	return s.provider.Snapshot()
}
