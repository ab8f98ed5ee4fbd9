package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/trustwire/internal/cli"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "HTTP bind host")
	port := fs.Int("port", 8090, "HTTP bind port")
	readTimeout := fs.Duration("read-timeout", 15*time.Second, "HTTP server read timeout")
	writeTimeout := fs.Duration("write-timeout", 15*time.Minute, "HTTP server write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	runTimeout := fs.Duration("run-timeout", 10*time.Minute, "Timeout of one admin-triggered pipeline run")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port < 1 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "Invalid flags: --port must be between 1 and 65535")
		return 2
	}
	if *readTimeout <= 0 || *writeTimeout <= 0 || *shutdownTimeout <= 0 || *runTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "Invalid flags: timeouts must be > 0")
		return 2
	}

	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	svc, release, err := newPipeline(ctx, pool, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline setup failed")
		fmt.Fprintf(os.Stderr, "Pipeline setup failed: %v\n", err)
		return 1
	}
	defer release()

	srv := httpapi.NewServer(pool, svc, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		RunTimeout:      *runTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
