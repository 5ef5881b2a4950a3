package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/metrics"
	"github.com/fauxcloud/fauxcloud/internal/mysql"
	"github.com/fauxcloud/fauxcloud/internal/pkg/logging"
	"github.com/fauxcloud/fauxcloud/internal/sqldb"
)

func main() {
	var (
		port        = pflag.Int("port", 3306, "wire protocol listen port")
		metricsPort = pflag.Int("metrics-port", 3307, "HTTP side channel listen port")
		dataDir     = pflag.String("data-dir", "./data/rdb", "backing store directory, purged on start")
		logLevel    = pflag.String("log-level", "", "log level, defaults to LOG_LEVEL env or info")
	)
	pflag.Parse()

	level := *logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	logger, err := logging.New(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // flushes buffer, if any

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aRegistry, err := sqldb.NewRegistry(*dataDir, logger)
	if err != nil {
		logger.Fatal("error initializing data directory", zap.Error(err))
	}

	anExecutor := sqldb.NewExecutor(aRegistry, logger)

	srv, err := mysql.NewServer(anExecutor, logger, *port)
	if err != nil {
		logger.Fatal("error starting server", zap.Error(err))
	}
	srv.Serve(ctx)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *metricsPort),
		Handler: metrics.NewRouter(metrics.NewCollector(anExecutor), logger),
	}
	go func() {
		logger.Info("metrics listening on port", zap.Int("port", *metricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	srv.Stop()
	metricsServer.Shutdown(ctx)

	if err := aRegistry.Close(); err != nil {
		logger.Error("error closing databases", zap.Error(err))
	}
}
