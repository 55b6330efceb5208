package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ledgerplatform/identity-ledger/pkg/config"
	"github.com/ledgerplatform/identity-ledger/pkg/dbkit"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	cfg := config.LoadLedger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	defer startCancel()

	pool, err := dbkit.OpenPool(startCtx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := migrate(startCtx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		log.Info().Msg("migrations complete")
	}

	app := &App{
		DB:              pool,
		Store:           NewStore(pool, cfg.StatementTimeout, cfg.LockTimeout, cfg.MaxRetries),
		InternalSecret:  cfg.InternalSecret,
		IdentityBaseURL: cfg.IdentityBaseURL,
		HTTPClient:      newHTTPClient(),
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Router(cfg.MaxInflight),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("ledger service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("ledger service shutdown complete")
}
