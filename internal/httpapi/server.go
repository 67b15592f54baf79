package httpapi

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/domain"
	"github.com/park285/connect4-server/internal/obslog"
	"github.com/park285/connect4-server/pkg/c4dto"
)

const requestTimeout = 3 * time.Second

type Stats interface {
	ActiveSessions() int
	Waiting() int
}

type Standings interface {
	TopN(ctx context.Context, n int) ([]domain.Standing, error)
}

type Matches interface {
	RecentMatches(ctx context.Context, limit int) ([]domain.CompletedMatchRecord, error)
	MatchesByIdentity(ctx context.Context, identity string, limit int) ([]domain.CompletedMatchRecord, error)
}

type Snapshots interface {
	Load(ctx context.Context, sessionID string) (*c4dto.PublicState, error)
	SessionsByUser(ctx context.Context, identity string) ([]*c4dto.PublicState, error)
}

type Deps struct {
	Stats       Stats
	Leaderboard Standings
	Matches     Matches
	Snapshots   Snapshots
	// AllowOrigins is a comma separated CORS list; empty disables CORS.
	AllowOrigins string
	Logger       *zap.Logger
	Now          func() time.Time
}

// Server is the read-only HTTP API.
type Server struct {
	app     *fiber.App
	deps    Deps
	log     *zap.Logger
	started time.Time
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = obslog.L()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, log: deps.Logger, started: deps.Now()}
	s.app = fiber.New(fiber.Config{
		AppName:               "connect4",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	if strings.TrimSpace(deps.AllowOrigins) != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: deps.AllowOrigins,
			AllowMethods: "GET,OPTIONS",
		}))
	}
	s.app.Use(s.accessLog)

	s.app.Get("/health", s.health)
	s.app.Get("/leaderboard", s.leaderboard)
	s.app.Get("/matches/recent", s.recentMatches)
	s.app.Get("/players/:identity/matches", s.playerMatches)
	s.app.Get("/players/:identity/sessions", s.playerSessions)
	s.app.Get("/sessions/:id", s.session)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("http_request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	h := c4dto.Health{
		Status:        "ok",
		UptimeSeconds: int64(s.deps.Now().Sub(s.started) / time.Second),
	}
	if s.deps.Stats != nil {
		h.ActiveSessions = s.deps.Stats.ActiveSessions()
		h.WaitingPlayers = s.deps.Stats.Waiting()
	}
	return c.JSON(h)
}

func (s *Server) leaderboard(c *fiber.Ctx) error {
	if s.deps.Leaderboard == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	list, err := s.deps.Leaderboard.TopN(ctx, queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"standings": list})
}

func (s *Server) recentMatches(c *fiber.Ctx) error {
	if s.deps.Matches == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	list, err := s.deps.Matches.RecentMatches(ctx, queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"matches": list})
}

func (s *Server) playerMatches(c *fiber.Ctx) error {
	if s.deps.Matches == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	list, err := s.deps.Matches.MatchesByIdentity(ctx, c.Params("identity"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"matches": list})
}

func (s *Server) playerSessions(c *fiber.Ctx) error {
	if s.deps.Snapshots == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	list, err := s.deps.Snapshots.SessionsByUser(ctx, c.Params("identity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": list})
}

func (s *Server) session(c *fiber.Ctx) error {
	if s.deps.Snapshots == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	st, err := s.deps.Snapshots.Load(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	if st == nil {
		return c.Status(fiber.StatusNotFound).JSON(c4dto.DomainError{Code: c4dto.CodeNotFound, Message: "session not found"})
	}
	return c.JSON(st)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		code := c4dto.CodeBadRequest
		switch fe.Code {
		case fiber.StatusNotFound:
			code = c4dto.CodeNotFound
		case fiber.StatusServiceUnavailable, fiber.StatusInternalServerError:
			code = c4dto.CodeInternal
		}
		return c.Status(fe.Code).JSON(c4dto.DomainError{Code: code, Message: fe.Message})
	}
	s.log.Error("http_handler_error", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(c4dto.DomainError{
		Code:      c4dto.CodeInternal,
		Message:   "internal error",
		Retryable: true,
	})
}

func queryLimit(c *fiber.Ctx) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
