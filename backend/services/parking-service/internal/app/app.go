package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libredis "parkpay/backend/libs/redis"
	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/config"
	"parkpay/backend/services/parking-service/internal/db"
	httpserver "parkpay/backend/services/parking-service/internal/http"
	"parkpay/backend/services/parking-service/internal/http/handlers"
	"parkpay/backend/services/parking-service/internal/http/middleware"
	"parkpay/backend/services/parking-service/internal/password"
	redisstore "parkpay/backend/services/parking-service/internal/redis"
	"parkpay/backend/services/parking-service/internal/repository"
	"parkpay/backend/services/parking-service/internal/service"
	"parkpay/backend/services/parking-service/internal/ws"
)

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	dispatcher  *audit.Dispatcher
	hub         *ws.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Database.Migrate {
		if err := db.Migrate(sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	tolerance, err := cfg.ToleranceAmount()
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, err
	}

	hub := ws.NewHub(cfg.WebSocket.PingInterval, logger.Named("ws"))
	dispatcher := audit.NewDispatcher(cfg.Audit.Buffer, logger,
		audit.NewLogSink(logger),
		redisstore.NewAuditStream(redisClient, cfg.Audit.Stream, cfg.Audit.StreamMaxLen),
		hub,
	)

	cardRepo := repository.NewCardRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	rateRepo := repository.NewRateRepository(sqlDB)
	operatorRepo := repository.NewOperatorRepository(sqlDB)
	rateCache := redisstore.NewRateCache(redisClient, cfg.Redis.RateTTL)

	clk := clock.System{}
	rateService, err := service.NewRateService(rateRepo, rateCache, cfg.Tariff.Rates, service.RateOptions{
		LocalTTL: cfg.Tariff.LocalTTL,
		Clock:    clk,
	}, logger)
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, err
	}
	logger.Info("fallback rate tables loaded", zap.Strings("vehicle_classes", rateService.DefaultClasses()))

	coordinator := service.NewCoordinator(cardRepo, sessionRepo, rateService, clk, dispatcher, logger, service.Options{
		Tolerance:           tolerance,
		CompensationTimeout: cfg.Tariff.CompensationTimeout,
	})
	cardService := service.NewCardService(cardRepo, clk, dispatcher, logger)
	operatorService := service.NewOperatorService(operatorRepo,
		password.NewBcryptHasher(cfg.Auth.BcryptCost),
		service.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clk),
		clk, dispatcher, logger,
	)

	parkingHandlers := handlers.NewParkingHandlers(coordinator, logger)
	adminHandlers := handlers.NewAdminHandlers(cardService, rateService, logger)
	authHandlers := handlers.NewAuthHandlers(operatorService, logger)
	eventsServer := ws.NewServer(hub, cfg.WebSocket.WriteTimeout, middleware.OperatorID, logger.Named("ws"))

	routes := httpserver.Routes{
		Health:         handlers.NewHealthHandler(sqlDB),
		Login:          authHandlers.Login,
		Enter:          parkingHandlers.Enter,
		Lookup:         parkingHandlers.Lookup,
		Pay:            parkingHandlers.Pay,
		Quote:          parkingHandlers.Quote,
		OpenSessions:   parkingHandlers.OpenSessions,
		Events:         eventsServer.HandleEvents,
		CreateCard:     adminHandlers.CreateCard,
		SetCardLost:    adminHandlers.SetLost,
		SaveRates:      adminHandlers.SaveRates,
		CreateOperator: authHandlers.CreateOperator,
	}

	router := httpserver.NewRouter(routes,
		middleware.AuthMiddleware(cfg.Auth.JWTSecret),
		middleware.AdminKeyMiddleware(cfg.Auth.AdminKeyHash),
	)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, httpserver.Options{
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}, logger,
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)

	return &App{
		server:      server,
		dispatcher:  dispatcher,
		hub:         hub,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server, audit dispatcher and websocket hub, and stops them together.
func (a *App) Run(ctx context.Context) error {
	return runServices(ctx, a.server, a.dispatcher, a.hub)
}

type runner interface {
	Run(ctx context.Context) error
}

// runServices stops the dispatcher only after the server has finished draining
// requests, so events published during graceful shutdown are still delivered.
func runServices(ctx context.Context, server, dispatcher runner, others ...runner) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopDispatch()
		return server.Run(ctx)
	})
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	for _, r := range others {
		r := r
		g.Go(func() error {
			return r.Run(ctx)
		})
	}
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if dropped := a.dispatcher.Dropped(); dropped > 0 {
		a.logger.Warn("audit events dropped during run", zap.Int64("dropped", dropped))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
