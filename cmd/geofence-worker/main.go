package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/motionfleet/fleetzones/config"
	"github.com/motionfleet/fleetzones/internal/logging"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	logCloser, err := logging.Configure(cfg.Logging, os.Stderr)
	if err != nil {
		panic(fmt.Sprintf("ошибка настройки логов, %v", err))
	}
	defer func() { _ = logCloser.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunGeofenceWorker(ctx, cfg, defaultWorkerFactories(), workerRunOpts{
		swaggerPath: os.Getenv("swaggerPath"),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("geofence-worker stopped")
		os.Exit(1)
	}
}
