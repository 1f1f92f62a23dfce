package main

import (
	"context"
	"fmt"
	"time"

	"github.com/motionfleet/fleetzones/config"
	"github.com/motionfleet/fleetzones/internal/broker/kafka"
	"github.com/motionfleet/fleetzones/internal/cache"
	"github.com/motionfleet/fleetzones/internal/cache/rediscache"
	"github.com/motionfleet/fleetzones/internal/services/refresher"
	"github.com/motionfleet/fleetzones/internal/services/suggestions"
	"github.com/motionfleet/fleetzones/internal/storage/memgeofence"
	"github.com/motionfleet/fleetzones/internal/storage/pggeofence"
	log "github.com/sirupsen/logrus"
)

type workerStore interface {
	suggestions.Repository
	refresher.Repository
	Ping(ctx context.Context) error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (st workerStore, closeFn func(), err error)
	newProducer func(cfg *config.Config) refresher.Producer
	newCache    func(cfg *config.Config) cache.BytesCache
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			switch cfg.Geofence.StorageDriver {
			case "memory":
				// годится только для локального запуска: данные не общие с API
				st := memgeofence.New()
				return st, st.Close, nil
			case "", "postgres":
				st, err := pggeofence.New(cfg.Database.ConnString())
				if err != nil {
					return nil, nil, err
				}
				return st, st.Close, nil
			default:
				return nil, nil, fmt.Errorf("unknown storage_driver %q", cfg.Geofence.StorageDriver)
			}
		},
		newProducer: func(cfg *config.Config) refresher.Producer {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			return rediscache.New(cfg.Redis.Addr())
		},
	}
}

type workerRunOpts struct {
	swaggerPath string
	onListen    func(httpAddr string)
	// onStart получает собранный refresher (для тестов).
	onStart func(r *refresher.Refresher)
}

func RunGeofenceWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerRunOpts) error {
	topic := cfg.Kafka.ZoneSuggestionsTopicName
	if topic == "" {
		topic = "zone.suggestions"
	}

	gc := cfg.Geofence
	interval := time.Duration(gc.WorkerRefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	concurrency := gc.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	daysBack := gc.WorkerDaysBack
	if daysBack <= 0 {
		daysBack = suggestions.DefaultDaysBack
	}
	cacheTTL := time.Duration(gc.WorkerCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 2 * interval
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	c := f.newCache(cfg)

	r := refresher.New(st, suggestions.NewEngine(st), c, producer, topic).
		WithSettings(interval, concurrency, daysBack, cacheTTL)
	if opts.onStart != nil {
		opts.onStart(r)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	if opts.swaggerPath != "" {
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    gc.WorkerHTTPAddr,
				swaggerPath: opts.swaggerPath,
				onListen:    opts.onListen,
				refresher:   r,
				cfg:         cfg,
				ready:       readinessChecks(st, c),
			})
		}()
	}

	log.WithFields(log.Fields{
		"topic":       topic,
		"interval":    interval.String(),
		"concurrency": concurrency,
		"days_back":   daysBack,
	}).Info("geofence-worker started")

	// первый цикл сразу, не дожидаясь тикера
	r.Trigger()

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		cancel()
		<-runErr
		return err
	}
}

func readinessChecks(st workerStore, c cache.BytesCache) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{"storage": st.Ping}
	if p, ok := c.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = p.Ping
	}
	return checks
}
