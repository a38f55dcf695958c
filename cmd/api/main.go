package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sgl-admin/internal/config"
	"sgl-admin/internal/coupon"
	"sgl-admin/internal/database"
	"sgl-admin/internal/handler"
	"sgl-admin/internal/repository"
	"sgl-admin/internal/router"
	"sgl-admin/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)
	logger.Info().
		Str("store_backend", cfg.Store.Backend).
		Msg("starting sgl-admin API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise document store: %w", err)
	}
	defer closeStore()

	// Bulk code files come from S3 when enabled, with the local file system as fallback
	maxCodes := coupon.WithMaxCodes(cfg.Import.MaxCodes)
	fileLoader := coupon.NewFileLoader(cfg.Import.Dir, logger, maxCodes)
	var s3Loader coupon.Loader

	if cfg.S3.Enabled {
		s3Loader, err = coupon.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger, maxCodes)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
			s3Loader = nil
		}
	} else {
		logger.Info().Msg("using local file system for redeem code files (S3 disabled)")
	}

	codeLoader := coupon.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, s3Loader != nil, logger)

	ledgerRepo := repository.NewLedgerRepository(store, nil, logger)
	ledgerService := service.NewLedgerService(ledgerRepo, codeLoader, logger,
		service.WithMaxCodes(cfg.Import.MaxCodes),
		service.WithSequenceAttempts(cfg.Store.SequenceMaxAttempts),
	)

	promoHandler := handler.NewPromoHandler(ledgerService, logger)
	redeemCodeHandler := handler.NewRedeemCodeHandler(ledgerService, logger)

	mux := router.New(promoHandler, redeemCodeHandler, cfg.Auth.APIKey, logger)

	// Streaming responses lift their own write deadline
	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Cancelling the base context ends open promo code streams so Shutdown can drain
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
