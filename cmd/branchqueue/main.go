// Package main запускает HTTP-сервер и планировщик напоминаний электронной очереди.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/branchqueue/internal/allocator"
	"github.com/mmeshcher/branchqueue/internal/config"
	"github.com/mmeshcher/branchqueue/internal/email"
	"github.com/mmeshcher/branchqueue/internal/events"
	"github.com/mmeshcher/branchqueue/internal/handler"
	"github.com/mmeshcher/branchqueue/internal/middleware"
	"github.com/mmeshcher/branchqueue/internal/notify"
	"github.com/mmeshcher/branchqueue/internal/reminder"
	"github.com/mmeshcher/branchqueue/internal/repository"
	"github.com/mmeshcher/branchqueue/internal/service"
	"github.com/mmeshcher/branchqueue/internal/sms"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	// Маркеры напоминаний и лимит бронирований живут в Redis, если он настроен
	var (
		markers        reminder.Markers = repo
		handlerOptions []handler.Option
	)
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}

		markers = reminder.NewRedisMarkers(rdb)
		limiter := middleware.NewRateLimiter(rdb, cfg.BookingRateLimit, time.Minute, "booking", logger)
		public := middleware.NewRateLimiter(rdb, cfg.PublicRateLimit, cfg.PublicRateWindow, "public", logger)
		handlerOptions = append(handlerOptions,
			handler.WithBookingLimiter(limiter.Middleware),
			handler.WithPublicLimiter(public.Middleware),
		)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.KafkaBrokers != "" {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
	}

	// Каналы без настроек отключены
	var (
		emailSender notify.EmailSender
		smsSender   notify.SMSSender
	)
	if s := email.NewSMTPSender(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort), cfg.SMTPFrom); s != nil {
		emailSender = s
	}
	if c := sms.NewClient(cfg.SMSWebhookURL, cfg.SMSWebhookToken); c.Enabled() {
		smsSender = c
	}
	notifier := notify.New(emailSender, smsSender, logger)

	scheduler := reminder.New(repo, notifier, markers, logger, reminder.Config{
		Interval: cfg.ReminderInterval,
		Location: loc,
	})

	svc := service.NewService(repo, allocator.New(repo), notifier, logger,
		service.WithLocation(loc),
		service.WithEvents(publisher),
		service.WithReminders(scheduler),
	)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, handlerOptions...)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск планировщика напоминаний
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting branchqueue server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
