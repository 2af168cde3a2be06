package server

import (
	"log/slog"

	"backend-routetracking/internal/auth"
	"backend-routetracking/internal/config"
	"backend-routetracking/internal/geocode"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/queues"
	"backend-routetracking/internal/solver"
	"backend-routetracking/internal/stream"
	"backend-routetracking/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// DeploymentsTopic is the stream topic carrying deploy status messages.
const DeploymentsTopic = "deployments"

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Queue    *queues.Client
	Tracking *tracking.Handler
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}
	if cfg.AMQPURL != "" {
		s.Queue = queues.New(cfg.AMQPURL)
	}
	s.Tracking = newTrackingHandler(cfg, db, s.reporter())

	registerRoutes(s)
	return s
}

// newTrackingHandler wires the tracking core to configuration. Missing
// tracking settings leave the handler unconfigured rather than failing startup.
func newTrackingHandler(cfg config.Config, db *pgxpool.Pool, reporter tracking.MessageReporter) *tracking.Handler {
	var projects tracking.ProjectLoader
	if db != nil {
		projects = project.NewStore(db, cfg.Project.CapacityNames, cfg.Project.CustomPropertyNames)
	}

	provider, err := tracking.NewProvider(&cfg.Tracking, cfg.Servers)
	if err != nil {
		slog.Warn("tracking server not configured", "error", err)
		provider = nil
	}

	return tracking.NewHandler(
		provider,
		projects,
		solver.FromConfig(cfg.Solver),
		geocode.NewSchema(cfg.AddressFields),
		reporter,
	)
}

// reporter sends deploy status to websocket subscribers and, when a broker
// is configured, to the deployments queue.
func (s *Server) reporter() tracking.MessageReporter {
	reporters := tracking.Reporters{stream.NewReporter(s.Stream, DeploymentsTopic)}
	if s.Queue != nil {
		reporters = append(reporters, queues.NewReporter(s.Queue, DeploymentsTopic))
	}
	return reporters
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
