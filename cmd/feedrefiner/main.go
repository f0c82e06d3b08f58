package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/app"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/infrastructure/scheduler"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/logging"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/transport/httptrigger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// run parses flags and performs one invocation or serves the trigger.
// stdout carries only the JSON result; every log line goes to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		serve      bool
	)
	fs := flag.NewFlagSet("feedrefiner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "path to config file")
	fs.BoolVar(&serve, "serve", false, "run the HTTP trigger server instead of a single run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		printResult(stdout, domain.Failed(err))
		return nil
	}

	logger := logging.NewWithWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	application := app.New(ctx, cfg, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	if !serve {
		printResult(stdout, application.Run(ctx))
		return nil
	}

	if err := runServer(ctx, cfg, application, logger); err != nil {
		logger.Error("server stopped", "error", err)
	}
	return nil
}

// printResult writes the run result as the process output. The exit code
// is zero even for failed runs; the error is carried in the document.
func printResult(w io.Writer, res domain.RunResult) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(res)
}

func runServer(ctx context.Context, cfg config.Config, application *app.Application, logger *slog.Logger) error {
	router := httptrigger.NewRouter(application, httptrigger.Options{
		Logger:  logger.With("component", "http"),
		Metrics: application.Metrics().Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	logger.Info("http listening", "addr", cfg.HTTP.Addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var ticker *scheduler.IntervalScheduler
	if cfg.Run.Interval > 0 {
		ticker = scheduler.NewIntervalScheduler(cfg.Run.Interval)
		err := ticker.Start(ctx, func(time.Time) {
			res, ok := application.TryRun(ctx)
			if !ok {
				logger.Info("scheduled run skipped, another run in progress")
				return
			}
			if res.Error != "" {
				logger.Error("scheduled run failed", "error", res.Error)
			}
		})
		if err != nil {
			return err
		}
		logger.Info("periodic runs enabled", "interval", cfg.Run.Interval)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http serve failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if ticker != nil {
		if err := ticker.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop incomplete", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http stopped")
	return nil
}
