// Package main запускает HTTP-сервер сервиса Phantom.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/900f/Phantom/internal/config"
	"github.com/900f/Phantom/internal/handler"
	"github.com/900f/Phantom/internal/notify"
	"github.com/900f/Phantom/internal/repository"
	"github.com/900f/Phantom/internal/roster"
	"github.com/900f/Phantom/internal/service"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		sugar.Warnw("failed to load .env", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	hub := roster.NewHub(logger)
	broadcaster := roster.NewBroadcaster(hub, repo, logger)

	svc := service.NewService(repo, notify.NewClient(cfg.WebhookURL), broadcaster, logger, cfg.DiscordInvite)
	defer svc.Close()

	h := handler.NewHandler(svc, logger, handler.Options{
		Realtime:        hub,
		AdminToken:      cfg.AdminToken,
		SubmitRateLimit: cfg.SubmitRateLimit,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	feeds := []roster.Feed{repository.NewChangeFeed(repo, logger)}
	if cfg.RosterPollInterval > 0 {
		feeds = append(feeds, roster.PollFeed{Interval: cfg.RosterPollInterval})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return broadcaster.Run(ctx)
	})

	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			return feed.Listen(ctx, broadcaster.Trigger)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting phantom server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Остановка по сигналу или по ошибке в одной из горутин.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		hub.Close()
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
		svc.Close()
		repo.Close()
		os.Exit(1)
	}
}
