package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motionfleet/fleetzones/config"
	geofencesapi "github.com/motionfleet/fleetzones/internal/api/geofences_api"
	"github.com/motionfleet/fleetzones/internal/broker/kafka"
	"github.com/motionfleet/fleetzones/internal/cache/rediscache"
	"github.com/motionfleet/fleetzones/internal/logging"
	"github.com/motionfleet/fleetzones/internal/services/geofences"
	"github.com/motionfleet/fleetzones/internal/services/suggestions"
	"github.com/motionfleet/fleetzones/internal/storage/memgeofence"
	"github.com/motionfleet/fleetzones/internal/storage/pggeofence"
	log "github.com/sirupsen/logrus"
)

type geofenceStore interface {
	geofences.Repository
	suggestions.Repository
	Ping(ctx context.Context) error
	Close()
}

type geofenceAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   geofenceAPIOpts

	api      *geofencesapi.API
	svc      *geofences.Service
	consumer *kafka.Consumer

	closers []func()
}

func mustBootstrapGeofenceAPI() *geofenceAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	logCloser, err := logging.Configure(cfg.Logging, os.Stderr)
	if err != nil {
		panic(fmt.Sprintf("ошибка настройки логов, %v", err))
	}

	gc := cfg.Geofence
	grpcAddr := gc.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := gc.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := gc.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "geofence-api"
	}
	positionsTopic := cfg.Kafka.PositionsTopicName
	if positionsTopic == "" {
		positionsTopic = "gps.positions"
	}
	eventsTopic := cfg.Kafka.GeofenceEventsTopicName
	if eventsTopic == "" {
		eventsTopic = "geofence.events"
	}
	zonesTTL := time.Duration(gc.ZonesCacheTTLSeconds) * time.Second
	if zonesTTL <= 0 {
		zonesTTL = time.Minute
	}
	timeout := time.Duration(gc.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rlPerMinute := int64(gc.OptimizeRateLimitPerMinute)
	if rlPerMinute <= 0 {
		rlPerMinute = 30
	}

	st := mustOpenStore(gc.StorageDriver, cfg.Database.ConnString())

	rc := rediscache.New(cfg.Redis.Addr())
	rl := rediscache.NewRateLimiter(cfg.Redis.Addr())

	producer := kafka.NewProducer(cfg.Kafka.Brokers())
	svc := geofences.New(st, rc, zonesTTL, geofences.WithPublisher(producer, eventsTopic))
	engine := suggestions.NewEngine(st)

	api := geofencesapi.New(svc, engine,
		geofencesapi.WithCache(rc),
		geofencesapi.WithRateLimit(rl, rlPerMinute),
		geofencesapi.WithTimeout(timeout),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), positionsTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	log.WithFields(log.Fields{
		"storage":         driverName(gc.StorageDriver),
		"positions_topic": positionsTopic,
		"events_topic":    eventsTopic,
	}).Info("geofence-api bootstrapped")

	return &geofenceAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: geofenceAPIOpts{
			grpcAddr:      grpcAddr,
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         positionsTopic,
			consumerGroup: consumerGroup,
			ready: map[string]func(context.Context) error{
				"storage": st.Ping,
				"redis":   rc.Ping,
			},
		},
		api:      api,
		svc:      svc,
		consumer: consumer,
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
			func() { _ = rl.Close() },
			func() { _ = rc.Close() },
			st.Close,
			func() { closeQuietly(logCloser) },
		},
	}
}

func driverName(d string) string {
	if d == "" {
		return "postgres"
	}
	return d
}

func mustOpenStore(driver, connString string) geofenceStore {
	switch driverName(driver) {
	case "memory":
		return memgeofence.New()
	case "postgres":
		return mustOpenPostgresWithRetry(connString, 60*time.Second)
	default:
		panic(fmt.Sprintf("unknown storage_driver %q", driver))
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pggeofence.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pggeofence.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func (a *geofenceAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *geofenceAPIApp) Run() error {
	return runGeofenceAPI(a.ctx, a.opts, a.api, a.svc, a.consumer)
}
