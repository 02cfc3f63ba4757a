// Package main запускает HTTP-сервер сервиса предзаказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/preorder-system/internal/config"
	"github.com/mmeshcher/preorder-system/internal/handler"
	"github.com/mmeshcher/preorder-system/internal/middleware"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
	"github.com/mmeshcher/preorder-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var providerClient service.ProviderClient
	if cfg.ProviderAddress != "" {
		providerClient = provider.NewClient(cfg.ProviderAddress, cfg.ProviderAPIKey)
	}

	svc := service.NewService(repo, providerClient, logger, cfg.LifecycleInterval, cfg.PaymentPollInterval)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.ProviderChecksumKey)

	r := handler.NewRouter(h, logger)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновые переходы статусов кампаний и этапов по расписанию
	g.Go(func() error {
		svc.StartLifecycleUpdates(ctx)
		return nil
	})

	// Фоновая сверка зависших платежей с провайдером
	g.Go(func() error {
		svc.StartPaymentPolling(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting preorder server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
