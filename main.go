package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/armin976/noema-gateway/internal/app"
	"github.com/armin976/noema-gateway/internal/env"
	"github.com/armin976/noema-gateway/internal/logger"
	"github.com/armin976/noema-gateway/internal/version"
	"github.com/armin976/noema-gateway/pkg/format"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(startTime, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("Noema Gateway has shutdown")
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	logger.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(mem.HeapAlloc),
		"heap_sys", format.Bytes(mem.HeapSys),
		"heap_inuse", format.Bytes(mem.HeapInuse),
		"total_alloc", format.Bytes(mem.TotalAlloc),
	)

	logger.Info("Runtime Stats",
		"uptime", format.Duration(time.Since(startTime)),
		"num_goroutines", runtime.NumGoroutine(),
		"num_gc_cycles", mem.NumGC,
		"num_cpu", runtime.NumCPU(),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("NOEMA_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("NOEMA_FILE_OUTPUT", true),
		LogDir:     env.GetEnvOrDefault("NOEMA_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("NOEMA_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("NOEMA_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("NOEMA_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("NOEMA_THEME", "default"),
	}
}
