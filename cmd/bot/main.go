// Package main is the entry point of the course enrollment assistant.
//
// The process wires four moving parts around the course record table:
// the encrypted enrollment-service client with SSO session recovery, the
// rush scheduler that bursts at selection-window openings, the periodic
// catalog refresh and waiting monitor, and the Telegram notifier that keeps
// the operator in the loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bykc-hub/bykc-assistant/config"
	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/bykc"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/telegram"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/persistence/postgres"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/persistence/redis"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/scheduler"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/scheduler/jobs"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/service"
	healthhttp "github.com/bykc-hub/bykc-assistant/internal/interface/http"
	tgbot "github.com/bykc-hub/bykc-assistant/internal/interface/telegram"
	"github.com/bykc-hub/bykc-assistant/pkg/logger"
	"github.com/bykc-hub/bykc-assistant/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	}).With("app", cfg.App.Name)
	slog.SetDefault(log)

	log.Info("starting",
		"environment", string(cfg.App.Environment),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Persistence
	// ─────────────────────────────────────────────────────────────────────────

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := postgres.NewCourseRepository(conn)

	redisConfig := redis.DefaultConfig()
	redisConfig.Host = cfg.Redis.Host
	redisConfig.Port = cfg.Redis.Port
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisConfig)
	defer redisClient.Close()
	tokenCache := redis.NewTokenCache(redisClient, cfg.Redis.TokenSecret)

	// ─────────────────────────────────────────────────────────────────────────
	// Enrollment service client
	// ─────────────────────────────────────────────────────────────────────────

	ssoConfig := bykc.DefaultSSOConfig(cfg.Bykc.RootURL)
	ssoConfig.LoginURL = cfg.Bykc.LoginURL
	ssoConfig.UserAgent = cfg.Bykc.UserAgent
	ssoConfig.Timeout = cfg.Bykc.RequestTimeout
	ssoConfig.Logger = log.With("component", "sso")

	authenticator := bykc.NewSSOClient(ssoConfig, bykc.Credentials{
		Username: cfg.Bykc.Username,
		Password: cfg.Bykc.Password,
	})
	session := bykc.NewSession(authenticator, tokenCache, log.With("component", "session"))

	clientConfig := bykc.DefaultClientConfig(cfg.Bykc.RootURL)
	clientConfig.UserAgent = cfg.Bykc.UserAgent
	clientConfig.PublicKeyPEM = cfg.Bykc.PublicKeyPEM
	clientConfig.EmployeeID = cfg.Bykc.EmployeeID
	clientConfig.Timeout = cfg.Bykc.RequestTimeout
	clientConfig.MaxAttempts = cfg.Bykc.MaxRetries
	clientConfig.RetryDelay = cfg.Bykc.RetryDelay
	clientConfig.Logger = log.With("component", "bykc")

	client, err := bykc.NewClient(clientConfig, session)
	if err != nil {
		return fmt.Errorf("create bykc client: %w", err)
	}
	enrollment := service.NewEnrollmentAdapter(client)

	// ─────────────────────────────────────────────────────────────────────────
	// Notifier
	// ─────────────────────────────────────────────────────────────────────────

	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgConfig.Logger = log.With("component", "telegram")
	tgClient := telegram.NewClient(tgConfig)

	notifierConfig := service.DefaultNotifierConfig(cfg.Telegram.ChatID)
	notifierConfig.RetryDelay = cfg.Telegram.NotifyRetryDelay
	notifierConfig.Logger = log.With("component", "notifier")
	notifier := service.NewNotifier(notifierConfig, tgClient)

	// ─────────────────────────────────────────────────────────────────────────
	// Application handlers and schedulers
	// ─────────────────────────────────────────────────────────────────────────

	rushHandler := command.NewRushCourseHandler(repo, enrollment, notifier, log.With("component", "rush"))
	rush := scheduler.NewRushScheduler(scheduler.RushConfig{
		Lead:    cfg.Scheduler.RushLead,
		Cadence: cfg.Scheduler.RushCadence,
		Window:  cfg.Scheduler.RushWindow,
		Logger:  log.With("component", "rush_scheduler"),
	}, rushHandler)
	defer rush.Stop()

	observe := command.NewObserveSnapshotHandler(repo, notifier, rush, log.With("component", "observe"))
	monitor := command.NewMonitorWaitingHandler(repo, enrollment, notifier, log.With("component", "monitor"))

	choose := command.NewChooseCourseHandler(repo, enrollment, observe, rush, notifier, log.With("component", "choose"))
	cancelCourse := command.NewCancelCourseHandler(repo, enrollment, rush, notifier, log.With("component", "cancel"))

	botConfig := tgbot.DefaultBotConfig(cfg.Telegram.ChatID)
	botConfig.Logger = log.With("component", "bot")
	bot := tgbot.NewBot(botConfig, tgClient, repo, choose, cancelCourse)

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log.With("component", "scheduler"),
		Timezone: timeutil.BeijingTZ,
	})
	if cfg.Features.CatalogRefresh {
		if err := sched.Register(
			jobs.NewRefreshCoursesJob(enrollment, observe, log.With("job", "refresh_courses")),
			scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshInterval),
		); err != nil {
			return err
		}
	}
	if cfg.Features.WaitingMonitor {
		if err := sched.Register(
			jobs.NewWaitingMonitorJob(monitor, log.With("job", "waiting_monitor")),
			scheduler.NewIntervalSchedule(cfg.Scheduler.MonitorInterval),
		); err != nil {
			return err
		}
	}

	var health *healthhttp.Server
	if cfg.Features.HealthServer {
		healthConfig := healthhttp.DefaultServerConfig(cfg.Observability.HealthAddr)
		healthConfig.Logger = log.With("component", "health")
		health = healthhttp.NewServer(healthConfig, conn, redisClient)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Startup
	// ─────────────────────────────────────────────────────────────────────────

	if err := client.SoftLogin(ctx); err != nil {
		return fmt.Errorf("initial login: %w", err)
	}

	if err := rearmBookedCourses(ctx, repo, rush, log); err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	if cfg.Features.OperatorBot {
		if err := bot.Start(ctx); err != nil {
			return fmt.Errorf("start operator bot: %w", err)
		}
	}
	if health != nil {
		health.Start()
	}

	// Prime the record table immediately instead of waiting a full interval.
	if cfg.Features.CatalogRefresh {
		if err := sched.RunNow(ctx, "refresh_courses"); err != nil {
			log.Warn("initial catalog refresh failed", "error", err)
		}
	}

	log.Info("started")

	// ─────────────────────────────────────────────────────────────────────────
	// Shutdown
	// ─────────────────────────────────────────────────────────────────────────

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("signal received, shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if health != nil {
			if err := health.Shutdown(shutdownCtx); err != nil {
				log.Warn("health server stop", "error", err)
			}
		}
		if cfg.Features.OperatorBot {
			bot.Stop()
		}
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop", "error", err)
		}
		rush.Stop()
	}()

	select {
	case <-done:
		log.Info("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out")
	}
	return nil
}

// rearmBookedCourses re-creates the rush jobs for every record that was
// Booked when the previous process died, so a restart never loses a
// pre-registered rush.
func rearmBookedCourses(ctx context.Context, repo course.Repository, rush *scheduler.RushScheduler, log *slog.Logger) error {
	booked, err := repo.ListByStatus(ctx, course.StatusBooked)
	if err != nil {
		return fmt.Errorf("list booked courses: %w", err)
	}

	for _, rec := range booked {
		rush.Arm(rec.ID, rec.SelectStartDate)
	}

	if len(booked) > 0 {
		log.Info("re-armed booked courses", "count", len(booked))
	}
	return nil
}
