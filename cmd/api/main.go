package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/webdesk/internal/api/http"
	"github.com/spec-kit/webdesk/internal/api/http/handlers"
	"github.com/spec-kit/webdesk/internal/auth"
	"github.com/spec-kit/webdesk/internal/config"
	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/events"
	"github.com/spec-kit/webdesk/internal/observability"
	"github.com/spec-kit/webdesk/internal/persistence"
	"github.com/spec-kit/webdesk/internal/realtime"
	"github.com/spec-kit/webdesk/internal/repository"
	"github.com/spec-kit/webdesk/internal/service"
	"github.com/spec-kit/webdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	dependencies := map[string]handlers.Pinger{}

	var store repository.Store
	if cfg.UsesMemoryStore() {
		memory := repository.NewMemoryStore()
		if !cfg.IsProduction() {
			seedDevelopmentUsers(memory, tokens, logger)
		}
		store = memory
	} else {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
		dependencies["postgres"] = pg
	}

	dispatcher := events.NewInMemoryDispatcher()
	var redisPublisher *events.RedisPublisher
	if cfg.Events.RedisChannel != "" {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		redisPublisher = events.NewRedisPublisher(redis.Client, cfg.Events.RedisChannel)
		dependencies["redis"] = redis
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	hub := realtime.NewHub(logger)
	worker.StartEventSubscribers(ctx, dispatcher, worker.Subscribers{
		Notifications: service.NewNotificationService(dispatcher, logger, cfg.Notification),
		Redis:         redisPublisher,
		Hub:           hub,
	}, logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Realtime:       handlers.NewRealtimeHandler(hub, ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users()),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

// seedDevelopmentUsers fills the in-memory directory with one user per role
// and logs a token for each so the API can be exercised locally.
func seedDevelopmentUsers(store *repository.MemoryStore, tokens *auth.TokenManager, logger *zap.Logger) {
	for _, role := range []domain.UserRole{
		domain.UserRoleAdmin,
		domain.UserRoleClient,
		domain.UserRoleDeveloper,
		domain.UserRoleValidator,
	} {
		id := "dev-" + string(role)
		store.PutUser(domain.User{ID: id, Name: string(role), Email: id + "@localhost", Role: role, Active: true})
		token, _, err := tokens.GenerateToken(id, role)
		if err != nil {
			logger.Warn("failed to issue development token", zap.String("user_id", id), zap.Error(err))
			continue
		}
		logger.Info("development user", zap.String("user_id", id), zap.String("role", string(role)), zap.String("token", token))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
