package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/punchamoorthee/invoicesync/internal/api"
	"github.com/punchamoorthee/invoicesync/internal/config"
	"github.com/punchamoorthee/invoicesync/internal/logger"
	"github.com/punchamoorthee/invoicesync/internal/service"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
	"github.com/punchamoorthee/invoicesync/internal/store"
	"github.com/punchamoorthee/invoicesync/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	baseLogger := logger.Init(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoiceStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("unable to open invoice storage")
	}
	defer invoiceStore.Close()

	loc, _ := cfg.Location()

	// Initialize Layers
	provider := simplybook.NewClient(cfg.SimplyBook, baseLogger.With().Str("component", "simplybook").Logger())
	tokens := simplybook.NewTokenManager(provider, cfg.SimplyBook)
	invoices := service.NewInvoiceService(
		service.NewAggregator(tokens, provider, cfg.TaxIDFieldPosition),
		service.NewTaxCalculator(cfg.TaxRate, loc),
		invoiceStore,
		service.NewSnapshotStore(),
		loc,
	)

	static, err := web.Handler(cfg.StaticDir)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load invoice page")
	}
	router := api.NewRouter(api.NewHandler(invoices, invoiceStore), baseLogger, static)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A webhook makes several sequential provider calls, each bounded by UPSTREAM_TIMEOUT.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  time.Minute,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("storage", cfg.StorageDriver).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.InvoiceStore, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("using in-memory storage, invoices are lost on restart")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
