// Package main runs the earnd server: the balance ledger and withdrawal
// settlement service behind the earning platform.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/cryptozy/earnd/internal/app"
	"github.com/cryptozy/earnd/internal/app/httpapi"
	"github.com/cryptozy/earnd/internal/app/storage/postgres"
	"github.com/cryptozy/earnd/internal/config"
	"github.com/cryptozy/earnd/pkg/logger"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional env file")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("earnd").WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	var stores app.Stores
	if cfg.StoreDriver == config.DriverPostgres {
		db, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.WithError(err).Error("database unreachable")
			os.Exit(1)
		}

		store := postgres.New(db)
		stores = app.Stores{Profiles: store, Transactions: store, Withdrawals: store}
		log.Info("using postgres storage")
	} else {
		log.Warn("using in-memory storage; data is lost on restart")
	}

	application, err := app.New(stores, app.Options{
		SessionSigningKey: []byte(cfg.SessionSigningKey),
		SessionTTL:        cfg.SessionTTL,
		FaucetPayAPIKey:   cfg.FaucetPayAPIKey,
		HCaptchaSecret:    cfg.HCaptchaSecret,
		WithdrawThrottle:  cfg.WithdrawThrottle,
		WriteQueueSize:    cfg.WriteQueueSize,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = application.Start(startCtx)
	cancel()
	if err != nil {
		log.WithError(err).Error("start services")
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewHandler(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("earnd listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown incomplete")
	}
	log.Info("earnd stopped")
}
