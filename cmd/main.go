package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"givetrack/internal/adapters"
	"givetrack/internal/bootstrap"
	authDelivery "givetrack/internal/delivery/auth"
	dashboardDelivery "givetrack/internal/delivery/dashboard"
	leaderboardDelivery "givetrack/internal/delivery/leaderboard"
	notifyDelivery "givetrack/internal/delivery/notify"
	"givetrack/internal/domain/achievement"
	ownMiddleware "givetrack/internal/middleware"
	"givetrack/internal/notify"
	"givetrack/internal/repository"
	achievementUC "givetrack/internal/usecase/achievement"
	authUC "givetrack/internal/usecase/auth"
	dashboardUC "givetrack/internal/usecase/dashboard"
	donationUC "givetrack/internal/usecase/donation"
	leaderboardUC "givetrack/internal/usecase/leaderboard"
	"givetrack/internal/usecase/ranking"
)

// store is everything the use cases need from persistence.
type store interface {
	donationUC.Storage
	dashboardUC.Storage
	leaderboardUC.Storage
	authUC.UserStorage
	achievementUC.UserStorage
	achievementUC.CatalogStorage
	ranking.Storage
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertAchievements(ctx context.Context, defs []achievement.Definition) error
}

type mainDeliveryHandler struct {
	auth        *authDelivery.AuthHandler
	dashboard   *dashboardDelivery.DashboardHandler
	leaderboard *leaderboardDelivery.LeaderboardHandler
	notify      *notifyDelivery.NotifyHandler
	session     *ownMiddleware.SessionAuth
}

type backends struct {
	mongo    *adapters.AdapterMongo
	redis    *adapters.AdapterRedis
	amqp     *adapters.AdapterAMQP
	store    store
	sessions authUC.SessionStorage
	locker   repository.Locker
}

func main() {
	logger := NewLogger("info")
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Fatalw("Failed to setup configuration", "error", err)
	}
	if cfg.LogLevel != "info" {
		logger = NewLogger(cfg.LogLevel)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := initBackends(ctx, logger, cfg)
	if err != nil {
		logger.Fatalw("Failed to initialize backends", "error", err)
	}
	defer b.close(logger)

	if cfg.SeedAchievements {
		if err := b.store.UpsertAchievements(ctx, achievement.Defaults()); err != nil {
			logger.Fatalw("Failed to seed achievement catalog", "error", err)
		}
		logger.Infow("achievement catalog seeded", "definitions", len(achievement.Defaults()))
	}

	hub := notify.NewHub(logger)
	var publisher notify.Publisher = hub
	if b.amqp != nil {
		publisher = notify.Multi{hub, notify.NewAMQPPublisher(b.amqp)}
	}

	handlers := initializeDeliveryHandlers(cfg, logger, b, hub, publisher)
	r := chi.NewRouter()
	handlers.Router(r, cfg)

	grpcServer, healthServer := newHealthServer()
	go watchHealth(ctx, healthServer, b)
	go serveGRPC(logger, grpcServer, cfg.GrpcPort)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Server is running on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("HTTP shutdown failed", "error", err)
	}
}

func NewLogger(level string) *zap.SugaredLogger {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		var lvl zapcore.Level
		if lvl.UnmarshalText([]byte(level)) == nil {
			cfg.Level.SetLevel(lvl)
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func initBackends(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) (*backends, error) {
	b := &backends{}

	if cfg.StorageBackend == "memory" {
		log.Warn("using in-memory storage, data will not survive a restart")
		b.store = repository.NewMemoryStorage()
		b.sessions = repository.NewSessionMapStorage()
	} else {
		b.mongo = adapters.NewAdapterMongo(cfg, log)
		if err := b.mongo.Init(ctx); err != nil {
			return nil, err
		}
		mongoStore := repository.NewMongoStore(b.mongo, log)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		b.store = mongoStore

		b.redis = adapters.NewAdapterRedis(cfg, log)
		if err := b.redis.Init(ctx); err != nil {
			return nil, err
		}
		b.sessions = repository.NewSessionRedisStorage(b.redis.GetClient(), cfg.SessionTTL)
	}

	switch cfg.LockBackend {
	case "redis":
		if b.redis == nil {
			return nil, errors.New("LOCK_BACKEND=redis needs the mongo storage backend with Redis configured")
		}
		b.locker = repository.NewRedisLocker(b.redis.GetClient(), cfg.LockTTL)
	default:
		b.locker = repository.NewKeyedMutex()
	}

	if cfg.AmqpUrl != "" {
		b.amqp = adapters.NewAdapterAMQP(cfg, log)
		if err := b.amqp.Init(ctx); err != nil {
			return nil, err
		}
	}

	log.Infow("backends initialized", "storage", cfg.StorageBackend, "locks", cfg.LockBackend, "amqp", b.amqp != nil)
	return b, nil
}

func (b *backends) close(log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if b.amqp != nil {
		if err := b.amqp.Close(ctx); err != nil {
			log.Warnw("AMQP close failed", "error", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(ctx); err != nil {
			log.Warnw("Redis close failed", "error", err)
		}
	}
	if b.mongo != nil {
		if err := b.mongo.Close(ctx); err != nil {
			log.Warnw("MongoDB close failed", "error", err)
		}
	}
}

func initializeDeliveryHandlers(
	cfg *bootstrap.Config,
	log *zap.SugaredLogger,
	b *backends,
	hub *notify.Hub,
	publisher notify.Publisher,
) *mainDeliveryHandler {
	unlocker := achievementUC.NewEngine(b.store, b.store, b.store, b.locker, publisher, log)
	ranker := ranking.NewEngine(b.store, b.store, b.locker, publisher, log)
	donations := donationUC.NewService(b.store, b.store, b.locker, unlocker, ranker, publisher, log)
	dashboard := dashboardUC.NewService(b.store, unlocker, log).WithHistoryLimit(cfg.PageLimitDonations)
	leaderboard := leaderboardUC.NewService(b.store, ranker, log).WithDefaultLimit(cfg.PageLimitLeaderboard)
	auth := authUC.NewAuthUsecaseHandler(b.store, b.sessions, b.store, b.locker, ranker, log)

	return &mainDeliveryHandler{
		auth:        authDelivery.NewAuthHandler(auth, cfg.SessionTTL, !cfg.IsLocalCors, log),
		dashboard:   dashboardDelivery.NewDashboardHandler(donations, dashboard, log),
		leaderboard: leaderboardDelivery.NewLeaderboardHandler(leaderboard, log),
		notify:      notifyDelivery.NewNotifyHandler(hub, cfg.IsLocalCors, log),
		session:     ownMiddleware.NewSessionAuth(auth, log),
	}
}

func (h *mainDeliveryHandler) Router(r chi.Router, cfg *bootstrap.Config) {
	if cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.auth.Register)
		r.Post("/login", h.auth.Login)
		r.Group(func(r chi.Router) {
			r.Use(h.session.Session)
			r.Delete("/logout", h.auth.Logout)
			r.Get("/profile", h.auth.Profile)
			r.Put("/password", h.auth.ChangePassword)
			r.Delete("/account", h.auth.DeleteAccount)
		})
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(h.session.Session)
		r.Put("/update-donations", h.dashboard.UpdateDonations)
		r.Get("/stats", h.dashboard.Stats)
		r.Get("/achievements", h.dashboard.Achievements)
		r.Get("/donations", h.dashboard.Donations)
		r.Get("/donations/{id}/receipt", h.dashboard.Receipt)
		r.Get("/referrals", h.dashboard.Referrals)
	})

	r.Route("/leaderboard", func(r chi.Router) {
		r.With(h.session.OptionalSession).Get("/", h.leaderboard.Board)
		r.With(h.session.Session).Get("/nearby", h.leaderboard.Nearby)
		r.Group(func(r chi.Router) {
			r.Use(ownMiddleware.AdminToken(cfg.AdminToken))
			r.Post("/update-ranks", h.leaderboard.UpdateRanks)
			r.Post("/reset-weekly", h.leaderboard.ResetWeekly)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(ownMiddleware.AdminToken(cfg.AdminToken))
		r.Post("/donations/{id}/refund", h.dashboard.Refund)
	})

	r.With(h.session.Session).Get("/ws", h.notify.Events)
}

func newHealthServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer, healthServer
}

func serveGRPC(log *zap.SugaredLogger, srv *grpc.Server, port string) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Errorw("gRPC health listener failed", "port", port, "error", err)
		return
	}
	log.Infof("gRPC health server is running on port %s", port)
	if err := srv.Serve(lis); err != nil {
		log.Errorw("gRPC health server stopped", "error", err)
	}
}

// watchHealth flips the overall serving status with the storage pings.
func watchHealth(ctx context.Context, hs *health.Server, b *backends) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		status := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if b.mongo != nil && b.mongo.Ping(pingCtx) != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if b.redis != nil && b.redis.Ping(pingCtx) != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()
		hs.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
