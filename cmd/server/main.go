package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/piperpc/piperpc/internal/infrastructure/logging"
	"github.com/piperpc/piperpc/internal/infrastructure/transport"
	"github.com/piperpc/piperpc/pkg/server"
)

var version = "0.1.0"

func main() {
	transportName := flag.String("transport", "piperpc", "name of the duplex endpoint to serve on")
	stdio := flag.Bool("stdio", false, "serve over standard input/output instead of the named endpoint")
	concurrency := flag.Int("concurrency", 0, "maximum simultaneously executing requests per session")
	timeout := flag.Duration("request-timeout", 10*time.Second, "per-request execution timeout")
	verbose := flag.Bool("verbose", false, "enable trace-level diagnostics")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig = logging.DevelopmentConfig()
	}
	logger, err := logging.New(logConfig)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts := []server.Option{
		server.WithTransportName(*transportName),
		server.WithConcurrency(*concurrency),
		server.WithRequestTimeout(*timeout),
		server.WithLogger(logger),
	}
	if *stdio {
		opts = append(opts, server.WithStreamFactory(transport.NewStdioStreamFactory()))
	}

	srv, err := server.NewServer("piperpc", version, opts...)
	if err != nil {
		logger.Error("failed to construct server", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	// The protocol mandates exit code 0 only when a shutdown request
	// preceded the exit notification.
	os.Exit(srv.ExitCode())
}
