package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	geofencesapi "github.com/motionfleet/fleetzones/internal/api/geofences_api"
	"github.com/motionfleet/fleetzones/internal/broker/messages"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type geofenceAPIOpts struct {
	grpcAddr    string
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	// зависимости для /readyz: имя -> ping
	ready map[string]func(context.Context) error

	onListen func(grpcAddr, httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runGeofenceAPI(ctx context.Context, opts geofenceAPIOpts, api *geofencesapi.API, svc geofencesapi.GeofenceService, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	if opts.onListen != nil {
		opts.onListen(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	// остановка любой части гасит остальные
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- runGRPCServer(ctx, grpcLis)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, newRouter(api, opts.swaggerPath, opts.ready))
	}()

	// nil-канал без консьюмера никогда не сработает в select
	var consumerErr chan error
	if consumer != nil {
		consumerErr = make(chan error, 1)
		go func() {
			log.WithFields(log.Fields{"topic": opts.topic, "group": opts.consumerGroup}).Info("kafka consumer started")
			consumerErr <- consumer.Consume(ctx, positionHandler(ctx, svc))
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-grpcErr:
		return err
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("consume returned")
		}
		return errors.Wrap(err, "kafka consumer stopped")
	}
}

// positionHandler превращает сообщение из топика позиций в RecordPosition.
// Невалидные сообщения и неизвестные машины пропускаются (commit), иначе
// они блокировали бы партицию навсегда.
func positionHandler(ctx context.Context, svc geofencesapi.GeofenceService) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		var m messages.PositionRecorded
		if err := json.Unmarshal(value, &m); err != nil {
			log.WithError(err).Warn("skip malformed position message")
			return nil
		}

		p := &models.PositionSample{
			VehicleID: m.VehicleID,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Speed:     m.Speed,
			Heading:   m.Heading,
			Accuracy:  m.Accuracy,
		}
		if m.Timestamp != nil {
			p.Timestamp = m.Timestamp.UTC()
		}

		res, err := svc.RecordPosition(ctx, p)
		if err != nil {
			if _, ok := models.IsValidationError(err); ok || errors.Is(err, models.ErrVehicleUnassigned) {
				log.WithField("vehicle_id", m.VehicleID).WithError(err).Warn("skip position message")
				return nil
			}
			return errors.Wrap(err, "record position")
		}
		if res.EventsCreated > 0 {
			log.WithFields(log.Fields{"vehicle_id": m.VehicleID, "events": res.EventsCreated}).Debug("position produced transitions")
		}
		return nil
	}
}

func runGRPCServer(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
		_ = lis.Close()
	}()

	log.WithField("addr", lis.Addr().String()).Info("gRPC health server listening")
	return s.Serve(lis)
}

func newRouter(api *geofencesapi.API, swaggerPath string, ready map[string]func(context.Context) error) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyHandler(ready))
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	r.Mount("/", api.Handler())
	return r
}

// readyHandler пингует зависимости; любая ошибка даёт 503. Наружу уходят
// только имена зависимостей, текст ошибок остаётся в логе.
func readyHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := []string{}
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				log.WithField("dependency", name).WithError(err).Warn("readiness check failed")
				failed = append(failed, name)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			sort.Strings(failed)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failed": failed})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", lis.Addr().String()).Info("HTTP server listening")
	return srv.Serve(lis)
}
