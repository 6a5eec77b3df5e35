// Package main запускает HTTP-сервер сервиса стейкинг-пула.
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

	"github.com/mmeshcher/stakepool-system/internal/config"
	"github.com/mmeshcher/stakepool-system/internal/handler"
	"github.com/mmeshcher/stakepool-system/internal/keeper"
	"github.com/mmeshcher/stakepool-system/internal/metrics"
	"github.com/mmeshcher/stakepool-system/internal/middleware"
	"github.com/mmeshcher/stakepool-system/internal/repository"
	"github.com/mmeshcher/stakepool-system/internal/service"
	"github.com/mmeshcher/stakepool-system/internal/settlement"
	"github.com/mmeshcher/stakepool-system/internal/tier"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if cfg.SettlementAddress == "" {
		sugar.Fatalw("settlement system address is required")
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	settlementClient := settlement.NewClient(cfg.SettlementAddress)

	tiers := tier.NewRegistry()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := repo.GetPoolState(startupCtx)
	startupCancel()
	if err != nil {
		sugar.Fatalw("pool state read error", "error", err.Error())
	}

	treasury := pool.Treasury
	if cfg.TreasuryAccount != "" {
		treasury = cfg.TreasuryAccount
	}
	if treasury == "" {
		sugar.Fatalw("treasury account is required")
	}

	metrics.PoolBalance.Set(float64(pool.TotalBalance))

	svc := service.NewService(repo, settlementClient, tiers, treasury)
	defer svc.Close()

	sweeper := keeper.New(svc, logger)
	if err := sweeper.Register(cfg.SweepCron); err != nil {
		sugar.Fatalw("sweep schedule error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AdminKey, cfg.NotifierKey)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового прохода авто-реинвестирования по расписанию
	sweeper.Start()

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting stakepool server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		sweeper.Stop()

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
