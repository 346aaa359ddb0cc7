// Command testserver runs a fake chat completions endpoint for trying
// tokenflood without spending tokens.
//
// Usage:
//
//	testserver [flags]
//
// Point an endpoint spec at it with base_url http://localhost:8080/v1.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenflood/internal/logging"
	"tokenflood/testserver"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		host     string
		port     int
		logLevel string
		cfg      testserver.Config
	)
	cmd := &cobra.Command{
		Use:          "testserver",
		Short:        "Fake OpenAI compatible chat completions server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.FailRate < 0 || cfg.FailRate > 100 {
				return fmt.Errorf("fail-rate must be between 0 and 100, got %d", cfg.FailRate)
			}
			logger, err := logging.New(cmd.ErrOrStderr(), logLevel, logging.FormatConsole)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, logger, net.JoinHostPort(host, strconv.Itoa(port)), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&host, "host", "localhost", "host to bind to")
	f.IntVar(&port, "port", 8080, "port to listen on")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.DurationVar(&cfg.Latency, "latency", 200*time.Millisecond, "base response latency")
	f.DurationVar(&cfg.PerOutputToken, "per-token", 5*time.Millisecond, "extra latency per requested output token")
	f.IntVar(&cfg.FailRate, "fail-rate", 0, "percentage of requests answered with an error")
	f.IntVar(&cfg.FailStatus, "fail-status", http.StatusInternalServerError, "status code of simulated failures")
	f.StringVar(&cfg.APIKey, "api-key", "", "require this key as bearer token or api-key header")
	f.Int64Var(&cfg.Seed, "seed", 0, "seed for simulated failures, 0 picks one")
	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, addr string, cfg testserver.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           testserver.NewServer(cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("test server listening",
		zap.String("base_url", "http://"+ln.Addr().String()+"/v1"),
		zap.Duration("latency", cfg.Latency),
		zap.Duration("per_token", cfg.PerOutputToken),
		zap.Int("fail_rate", cfg.FailRate),
		zap.Bool("auth", cfg.APIKey != ""),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
