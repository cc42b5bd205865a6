package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/consult-backend/internal/ai"
	"github.com/ignatzorin/consult-backend/internal/config"
	"github.com/ignatzorin/consult-backend/internal/db"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	"github.com/ignatzorin/consult-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/consult-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/consult-backend/internal/http/router"
	aiAdapter "github.com/ignatzorin/consult-backend/internal/infrastructure/ai"
	"github.com/ignatzorin/consult-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/consult-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/obs"
	"github.com/ignatzorin/consult-backend/internal/queue"
	"github.com/ignatzorin/consult-backend/internal/service"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
	"github.com/ignatzorin/consult-backend/internal/usecase/qc"
	"github.com/ignatzorin/consult-backend/internal/worker"
	"github.com/ignatzorin/consult-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}
	lg := logger.Get()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		lg.Fatalf("main: ошибка инициализации трассировки: %v", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			lg.Warnf("main: ошибка остановки трассировки: %v", err)
		}
	}()

	checks := map[string]httpHandlers.Pinger{}

	// Хранилище бронирований.
	var uow repository.UnitOfWork
	switch cfg.StorageDriver {
	case "memory":
		lg.Warn("main: STORAGE_DRIVER=memory, данные не переживут рестарт")
		uow = persistence.NewMemoryUnitOfWork()
	default:
		dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
			lg.Fatalf("main: ошибка миграций: %v", err)
		}
		uow = persistence.NewPostgresUnitOfWork(dbConn)
		checks["postgres"] = dbConn.PingContext
	}

	// Redis хранит ключи идемпотентности отложенных задач.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Fatalf("main: redis недоступен: %v", err)
	}
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	publisher, err := queue.NewPublisher(cfg.AMQPURL, cfg.JobsExchange)
	if err != nil {
		lg.Fatalf("main: ошибка подключения к rabbitmq: %v", err)
	}
	defer publisher.Close()
	scheduler := queue.NewScheduler(rdb, publisher, 0)

	custodian, err := payment.NewOmiseCustodian(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		lg.Fatalf("main: ошибка инициализации платёжного провайдера: %v", err)
	}

	engine := booking.NewEngine(uow, custodian, scheduler)

	rules, err := settlement.LoadContentRules(cfg.QCRulesPath)
	if err != nil {
		lg.Fatalf("main: ошибка загрузки правил проверки отчётов: %v", err)
	}
	var reviewer qc.ContentReviewer
	if cfg.AIBaseURL != "" {
		reviewer = aiAdapter.NewReviewerAdapter(ai.NewClient(cfg.AIBaseURL, cfg.AIModel, cfg.AIAPIKey))
	} else {
		lg.Info("main: AI_BASE_URL не задан, отчёты проверяются только локальными правилами")
	}

	// Вебсокеты.
	hub := ws.NewHub()
	hubDone := goroutine.SafeGoWithContext(ctx, "ws-hub", hub.Run)

	processor := qc.NewProcessor(engine, reviewer, rules, hub)

	// Воркер отложенных задач.
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.JobsExchange,
		Queue:    cfg.JobsQueue,
		DLXName:  cfg.JobsDLX,
		DLXQueue: cfg.JobsDLX + ".dead",
	})
	if err != nil {
		lg.Fatalf("main: ошибка подготовки очереди задач: %v", err)
	}
	defer consumer.Close()
	deliveries, err := consumer.Deliveries(ctx)
	if err != nil {
		lg.Fatalf("main: ошибка подписки на очередь задач: %v", err)
	}
	dispatcher := worker.NewDispatcher(engine, processor, hub)
	workerDone := goroutine.SafeGoWithContext(ctx, "job-dispatcher", func(ctx context.Context) {
		dispatcher.Run(ctx, deliveries)
	})
	sweeperDone := goroutine.SafeGoWithContext(ctx, "expiry-sweeper", worker.NewSweeper(engine, cfg.ExpirySweepInterval).Run)

	// HTTP.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, 0)
	bookingHandler := httpHandlers.NewBookingHandler(engine, cfg.PaymentCurrency)
	healthHandler := httpHandlers.NewHealthHandler(checks)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins)

	router := httpRouter.SetupRouter(cfg, bookingHandler, healthHandler, wsHandler, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo("http-shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Errorf("main: ошибка остановки http сервера: %v", err)
		}
	})

	lg.Infof("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Errorf("main: сервер завершился с ошибкой: %v", err)
		stop()
	}

	<-workerDone
	<-sweeperDone
	<-hubDone
	lg.Info("main: сервис остановлен")
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Get().Errorf("main: ошибка закрытия базы: %v", err)
	}
}
