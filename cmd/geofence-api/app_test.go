package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	geofencesapi "github.com/motionfleet/fleetzones/internal/api/geofences_api"
	"github.com/motionfleet/fleetzones/internal/broker/messages"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/motionfleet/fleetzones/internal/services/geofences"
	"github.com/motionfleet/fleetzones/internal/services/suggestions"
	"github.com/motionfleet/fleetzones/internal/storage/memgeofence"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fixture struct {
	st        *memgeofence.Storage
	svc       *geofences.Service
	api       *geofencesapi.API
	vehicleID string
}

func newFixture() fixture {
	st := memgeofence.New()
	campaignID := st.AddCampaign(models.Campaign{})
	vehicleID := st.AddVehicle(models.Vehicle{CampaignID: &campaignID, IsActive: true})
	st.AddZone(models.Geofence{
		CampaignID: campaignID, Name: "MG Road",
		CenterLat: 12.9716, CenterLng: 77.5946, RadiusMeters: 500, IsActive: true,
	})
	svc := geofences.New(st, nil, 0)
	return fixture{st: st, svc: svc, api: geofencesapi.New(svc, suggestions.NewEngine(st)), vehicleID: vehicleID}
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

type fakeConsumer struct {
	msgs [][]byte
	errs chan error
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(nil, m); err != nil {
			c.errs <- err
			return err
		}
	}
	c.errs <- nil
	<-ctx.Done()
	return ctx.Err()
}

func TestRunGeofenceAPI_ServesHTTPAndHealth(t *testing.T) {
	f := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan [2]string, 1)
	opts := geofenceAPIOpts{
		grpcAddr:      "127.0.0.1:0",
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   writeSwagger(t),
		topic:         "gps.positions",
		consumerGroup: "g",
		onListen:      func(grpcAddr, httpAddr string) { addrCh <- [2]string{grpcAddr, httpAddr} },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runGeofenceAPI(ctx, opts, f.api, f.svc, nil) }()
	addrs := <-addrCh
	base := "http://" + addrs[1]

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"swagger"`)

	resp, err = http.Post(base+"/check-geofences", "application/json",
		strings.NewReader(`{"vehicleId":"`+f.vehicleID+`","latitude":12.9716,"longitude":77.5946}`))
	require.NoError(t, err)
	var out struct {
		Success       bool `json:"success"`
		EventsCreated int  `json:"eventsCreated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_ = resp.Body.Close()
	require.True(t, out.Success)
	require.Equal(t, 1, out.EventsCreated)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	conn, err := grpc.NewClient(addrs[0], grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting servers to stop")
	}
}

func TestRunGeofenceAPI_SwaggerRequired(t *testing.T) {
	f := newFixture()
	err := runGeofenceAPI(context.Background(), geofenceAPIOpts{}, f.api, f.svc, nil)
	require.Error(t, err)

	err = runGeofenceAPI(context.Background(), geofenceAPIOpts{swaggerPath: filepath.Join(t.TempDir(), "missing.json")}, f.api, f.svc, nil)
	require.ErrorContains(t, err, "swagger file not found")
}

func TestRunGeofenceAPI_ConsumesPositions(t *testing.T) {
	f := newFixture()

	enter, _ := json.Marshal(messages.PositionRecorded{VehicleID: f.vehicleID, Latitude: 12.9716, Longitude: 77.5946})
	cons := &fakeConsumer{
		msgs: [][]byte{
			[]byte(`not json`),
			[]byte(`{"vehicle_id":"` + uuid.NewString() + `","latitude":1,"longitude":1}`),
			[]byte(`{"vehicle_id":"bad","latitude":1,"longitude":1}`),
			enter,
		},
		errs: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = runGeofenceAPI(ctx, geofenceAPIOpts{
			grpcAddr: "127.0.0.1:0", httpAddr: "127.0.0.1:0", swaggerPath: writeSwagger(t),
		}, f.api, f.svc, cons)
	}()

	select {
	case err := <-cons.errs:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not run")
	}

	evs, err := f.st.ListVehicleEvents(context.Background(), f.vehicleID, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, models.EventTypeEnter, evs[0].EventType)
}

type failingService struct {
	geofencesapi.GeofenceService
}

func (failingService) RecordPosition(context.Context, *models.PositionSample) (*geofences.Result, error) {
	return nil, errors.New("connection refused")
}

func TestRunGeofenceAPI_ConsumerFailureStopsProcess(t *testing.T) {
	f := newFixture()
	cons := &fakeConsumer{
		msgs: [][]byte{[]byte(`{"vehicle_id":"` + uuid.NewString() + `","latitude":1,"longitude":1}`)},
		errs: make(chan error, 1),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runGeofenceAPI(context.Background(), geofenceAPIOpts{
			grpcAddr: "127.0.0.1:0", httpAddr: "127.0.0.1:0", swaggerPath: writeSwagger(t),
		}, f.api, failingService{}, cons)
	}()

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "kafka consumer stopped")
		require.ErrorContains(t, err, "connection refused")
	case <-time.After(3 * time.Second):
		t.Fatal("consumer failure did not stop the process")
	}
}

func TestPositionHandler_StoreFailureIsNotCommitted(t *testing.T) {
	h := positionHandler(context.Background(), failingService{})
	err := h(nil, []byte(`{"vehicle_id":"`+uuid.NewString()+`","latitude":1,"longitude":1}`))
	require.ErrorContains(t, err, "record position")
}

func TestPositionHandler_KeepsOptionalFields(t *testing.T) {
	f := newFixture()
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("IST", 19800))
	speed := 12.5
	b, _ := json.Marshal(messages.PositionRecorded{
		VehicleID: f.vehicleID, Latitude: 10, Longitude: 10, Speed: &speed, Timestamp: &ts,
	})

	require.NoError(t, positionHandler(context.Background(), f.svc)(nil, b))

	ps, err := f.st.ListPositionsSince(context.Background(), []string{f.vehicleID}, time.Time{})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, 12.5, *ps[0].Speed)
	require.True(t, ts.Equal(ps[0].Timestamp))
	require.Nil(t, ps[0].Heading)
}

func TestReadyHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	rec := httptest.NewRecorder()
	readyHandler(map[string]func(context.Context) error{"storage": ok, "redis": ok})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	readyHandler(map[string]func(context.Context) error{"storage": ok, "redis": down})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"not ready","failed":["redis"]}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "dial tcp")
}
