package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/cliparse"
	"github.com/danielhkuo/paco-server/db"
	"github.com/danielhkuo/paco-server/fixtures"
	"github.com/danielhkuo/paco-server/logging"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/router"
	"github.com/danielhkuo/paco-server/schedule"
	"github.com/danielhkuo/paco-server/signals"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.Setup(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		slog.Error("logging setup failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("Server stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func run(cfg cliparse.Config) error {
	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn, cfg.DatabaseType); err != nil {
		return err
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FixturesPath != "" {
		file, err := fixtures.Load(cfg.FixturesPath)
		if err != nil {
			return err
		}
		store := schedule.NewStore(db.NewRepository(dbConn), signals.NewGenerator(signals.NewLockedSource(cfg.SignalSeed)), calendar.Real())
		if _, err := fixtures.Seed(ctx, store, file); err != nil {
			return err
		}
	}

	server := http.Server{
		Handler:           middleware.CORS(router.NewRouter(dbConn, cfg)),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port, "stale_policy", cfg.StalePolicy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Wait for Ctrl-C signal
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("Server closed", "error", err)
	return err
}
