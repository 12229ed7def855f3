// Package main is a one-shot maintenance binary: it runs the migrations and a
// single catalog sync, then exits. It exists for cron-driven setups and for
// priming a fresh deployment without starting the full assistant.
//
// Arming rushes needs a live process, so the worker merges snapshots with no
// rush scheduler attached; Booked records are re-armed when the assistant
// itself starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bykc-hub/bykc-assistant/config"
	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/bykc"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/telegram"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/persistence/postgres"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/persistence/redis"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/scheduler/jobs"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/service"
	"github.com/bykc-hub/bykc-assistant/pkg/logger"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run the migrations and exit without syncing the catalog")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *migrateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, migrateOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	}).With("app", cfg.App.Name, "mode", "worker")

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("schema is up to date")

	if migrateOnly {
		return nil
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

	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgConfig.Logger = log.With("component", "telegram")
	tgClient := telegram.NewClient(tgConfig)

	notifierConfig := service.DefaultNotifierConfig(cfg.Telegram.ChatID)
	notifierConfig.RetryDelay = cfg.Telegram.NotifyRetryDelay
	notifierConfig.Logger = log.With("component", "notifier")
	notifier := service.NewNotifier(notifierConfig, tgClient)

	observe := command.NewObserveSnapshotHandler(repo, notifier, nil, log.With("component", "observe"))

	if err := client.SoftLogin(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	refresh := jobs.NewRefreshCoursesJob(enrollment, observe, log.With("job", "refresh_courses"))
	if err := refresh.Run(ctx); err != nil {
		return err
	}

	log.Info("catalog sync finished")
	return nil
}
