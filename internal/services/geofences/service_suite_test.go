package geofences

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	cachemocks "github.com/motionfleet/fleetzones/internal/cache/mocks"
	"github.com/motionfleet/fleetzones/internal/broker/messages"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	geofencesmocks "github.com/motionfleet/fleetzones/internal/services/geofences/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo  *geofencesmocks.MockRepository
	cache *cachemocks.MockBytesCache
	pub   *geofencesmocks.MockPublisher
	svc   *Service

	vehicleID  string
	campaignID string
	zones      []*models.Geofence
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &geofencesmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.pub = &geofencesmocks.MockPublisher{}
	s.svc = New(s.repo, s.cache, 10*time.Minute, WithPublisher(s.pub, "geofence.events"))

	s.vehicleID = uuid.NewString()
	s.campaignID = uuid.NewString()
	s.zones = []*models.Geofence{{
		ID: uuid.NewString(), CampaignID: s.campaignID, Name: "MG Road",
		CenterLat: 12.9716, CenterLng: 77.5946, RadiusMeters: 500, IsActive: true,
	}}
}

func (s *ServiceSuite) zonesKey() string {
	return "geofences:" + s.campaignID + ":active"
}

func (s *ServiceSuite) expectCacheMiss() {
	s.cache.On("Get", mock.Anything, s.zonesKey()).Return(nil, false, nil).Once()
	s.repo.On("ListActiveZones", mock.Anything, s.campaignID).Return(s.zones, nil).Once()
	s.cache.On("Set", mock.Anything, s.zonesKey(), mock.Anything, 10*time.Minute).Return(nil).Once()
}

func (s *ServiceSuite) TestCheckPosition_ValidationBeforeIO() {
	_, err := s.svc.CheckPosition(context.Background(), "not-a-uuid", 91, -181)
	ve, ok := models.IsValidationError(err)
	s.Require().True(ok)
	s.Require().Equal([]string{
		"Invalid vehicle ID format",
		"latitude must be between -90 and 90",
		"longitude must be between -180 and 180",
	}, ve.Details)
	s.repo.AssertNotCalled(s.T(), "GetVehicleCampaign", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCheckPosition_UnknownVehicle() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(nil, models.ErrNotFound).Once()

	_, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 1, 1)
	s.Require().ErrorIs(err, models.ErrVehicleUnassigned)
}

func (s *ServiceSuite) TestCheckPosition_UnassignedVehicle() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(nil, nil).Once()

	_, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 1, 1)
	s.Require().ErrorIs(err, models.ErrVehicleUnassigned)
	s.repo.AssertNotCalled(s.T(), "ListActiveZones", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCheckPosition_StoreFailureIsOpaque() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(nil, errors.New("conn refused")).Once()

	_, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 1, 1)
	s.Require().Error(err)
	s.Require().NotErrorIs(err, models.ErrVehicleUnassigned)
	_, isValidation := models.IsValidationError(err)
	s.Require().False(isValidation)
}

func (s *ServiceSuite) TestCheckPosition_NoZones() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.cache.On("Get", mock.Anything, s.zonesKey()).Return(nil, false, nil).Once()
	s.repo.On("ListActiveZones", mock.Anything, s.campaignID).Return([]*models.Geofence{}, nil).Once()
	s.cache.On("Set", mock.Anything, s.zonesKey(), []byte("[]"), 10*time.Minute).Return(nil).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 1, 1)
	s.Require().NoError(err)
	s.Require().Equal(0, res.EventsCreated)
	s.Require().Empty(res.Events)
	s.repo.AssertNotCalled(s.T(), "LatestZoneStates", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCheckPosition_EnterPersistsAndPublishes() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, []string{s.zones[0].ID}).
		Return(map[string]models.EventType{}, nil).Once()

	stored := &models.GeofenceEvent{
		ID: uuid.NewString(), GeofenceID: s.zones[0].ID, VehicleID: s.vehicleID,
		EventType: models.EventTypeEnter, Latitude: 12.9716, Longitude: 77.5946, Timestamp: time.Now(),
	}
	s.repo.On("AppendTransitions", mock.Anything, s.vehicleID, mock.MatchedBy(func(ts []models.Transition) bool {
		return len(ts) == 1 && ts[0].Event.EventType == models.EventTypeEnter && !ts[0].WasInside
	})).Return([]*models.GeofenceEvent{stored}, nil).Once()

	s.pub.On("PublishJSON", mock.Anything, "geofence.events", s.vehicleID, mock.MatchedBy(func(m messages.GeofenceTransition) bool {
		return m.EventID == stored.ID && m.CampaignID == s.campaignID && m.EventType == "enter"
	})).Return(nil).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 12.9716, 77.5946)
	s.Require().NoError(err)
	s.Require().Equal(1, res.EventsCreated)
	s.Require().Equal(stored, res.Events[0])
	s.repo.AssertExpectations(s.T())
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCheckPosition_ZonesFromCache() {
	b, err := json.Marshal(s.zones)
	s.Require().NoError(err)

	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.cache.On("Get", mock.Anything, s.zonesKey()).Return(b, true, nil).Once()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, []string{s.zones[0].ID}).
		Return(map[string]models.EventType{s.zones[0].ID: models.EventTypeExit}, nil).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 12.98, 77.60)
	s.Require().NoError(err)
	s.Require().Equal(0, res.EventsCreated)
	s.repo.AssertNotCalled(s.T(), "ListActiveZones", mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "AppendTransitions", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCheckPosition_CacheErrorFallsBackToStore() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.cache.On("Get", mock.Anything, s.zonesKey()).Return(nil, false, errors.New("redis down")).Once()
	s.repo.On("ListActiveZones", mock.Anything, s.campaignID).Return(s.zones, nil).Once()
	s.cache.On("Set", mock.Anything, s.zonesKey(), mock.Anything, 10*time.Minute).Return(errors.New("redis down")).Once()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, mock.Anything).Return(map[string]models.EventType{}, nil).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 0, 0)
	s.Require().NoError(err)
	s.Require().Equal(0, res.EventsCreated)
}

func (s *ServiceSuite) TestCheckPosition_AppendFailureFailsCall() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, mock.Anything).Return(map[string]models.EventType{}, nil).Once()
	s.repo.On("AppendTransitions", mock.Anything, s.vehicleID, mock.Anything).Return(nil, errors.New("write rejected")).Once()
	s.cache.On("Delete", mock.Anything, s.zonesKey()).Return(errors.New("redis down")).Once()

	_, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 12.9716, 77.5946)
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "append transitions")
	s.cache.AssertExpectations(s.T())
	s.pub.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCheckPosition_PublishFailureDoesNotFailCall() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, mock.Anything).Return(map[string]models.EventType{}, nil).Once()
	s.repo.On("AppendTransitions", mock.Anything, s.vehicleID, mock.Anything).
		Return([]*models.GeofenceEvent{{ID: "e1", GeofenceID: s.zones[0].ID, VehicleID: s.vehicleID, EventType: models.EventTypeEnter}}, nil).Once()
	s.pub.On("PublishJSON", mock.Anything, "geofence.events", s.vehicleID, mock.Anything).Return(errors.New("broker down")).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 12.9716, 77.5946)
	s.Require().NoError(err)
	s.Require().Equal(1, res.EventsCreated)
}

func (s *ServiceSuite) TestCheckPosition_StaleTransitionsNotCounted() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, mock.Anything).Return(map[string]models.EventType{}, nil).Once()
	s.repo.On("AppendTransitions", mock.Anything, s.vehicleID, mock.Anything).Return([]*models.GeofenceEvent{}, nil).Once()

	res, err := s.svc.CheckPosition(context.Background(), s.vehicleID, 12.9716, 77.5946)
	s.Require().NoError(err)
	s.Require().Equal(0, res.EventsCreated)
	s.pub.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestRecordPosition_InvalidOptionalFields() {
	speed, heading := -1.0, 400.0
	_, err := s.svc.RecordPosition(context.Background(), &models.PositionSample{
		VehicleID: s.vehicleID, Latitude: 1, Longitude: 1, Speed: &speed, Heading: &heading,
	})
	ve, ok := models.IsValidationError(err)
	s.Require().True(ok)
	s.Require().Equal([]string{"speed cannot be negative", "heading must be between 0 and 360"}, ve.Details)
}

func (s *ServiceSuite) TestRecordPosition_UnassignedVehicleStillStored() {
	p := &models.PositionSample{VehicleID: s.vehicleID, Latitude: 1, Longitude: 1}
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(nil, nil).Once()
	s.repo.On("InsertPositionAndTransitions", mock.Anything, p, mock.MatchedBy(func(ts []models.Transition) bool {
		return len(ts) == 0
	})).Return([]*models.GeofenceEvent{}, nil).Once()

	res, err := s.svc.RecordPosition(context.Background(), p)
	s.Require().NoError(err)
	s.Require().Equal(0, res.EventsCreated)
	s.repo.AssertExpectations(s.T())
	s.repo.AssertNotCalled(s.T(), "ListActiveZones", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestRecordPosition_SampleAndTransitionsWrittenTogether() {
	p := &models.PositionSample{VehicleID: s.vehicleID, Latitude: 12.9716, Longitude: 77.5946}
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, []string{s.zones[0].ID}).
		Return(map[string]models.EventType{}, nil).Once()

	stored := &models.GeofenceEvent{ID: "e1", GeofenceID: s.zones[0].ID, VehicleID: s.vehicleID, EventType: models.EventTypeEnter}
	s.repo.On("InsertPositionAndTransitions", mock.Anything, p, mock.MatchedBy(func(ts []models.Transition) bool {
		return len(ts) == 1 && ts[0].Event.EventType == models.EventTypeEnter
	})).Return([]*models.GeofenceEvent{stored}, nil).Once()
	s.pub.On("PublishJSON", mock.Anything, "geofence.events", s.vehicleID, mock.Anything).Return(nil).Once()

	res, err := s.svc.RecordPosition(context.Background(), p)
	s.Require().NoError(err)
	s.Require().Equal(1, res.EventsCreated)
	s.repo.AssertExpectations(s.T())
	s.repo.AssertNotCalled(s.T(), "AppendTransitions", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestRecordPosition_WriteFailureDropsZonesCache() {
	p := &models.PositionSample{VehicleID: s.vehicleID, Latitude: 12.9716, Longitude: 77.5946}
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(&s.campaignID, nil).Once()
	s.expectCacheMiss()
	s.repo.On("LatestZoneStates", mock.Anything, s.vehicleID, mock.Anything).Return(map[string]models.EventType{}, nil).Once()
	s.repo.On("InsertPositionAndTransitions", mock.Anything, p, mock.Anything).Return(nil, models.ErrNotFound).Once()
	s.cache.On("Delete", mock.Anything, s.zonesKey()).Return(nil).Once()

	_, err := s.svc.RecordPosition(context.Background(), p)
	s.Require().ErrorIs(err, models.ErrNotFound)
	s.cache.AssertExpectations(s.T())
	s.pub.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestRecordPosition_UnknownVehicle() {
	s.repo.On("GetVehicleCampaign", mock.Anything, s.vehicleID).Return(nil, models.ErrNotFound).Once()

	_, err := s.svc.RecordPosition(context.Background(), &models.PositionSample{VehicleID: s.vehicleID})
	s.Require().ErrorIs(err, models.ErrVehicleUnassigned)
	s.repo.AssertNotCalled(s.T(), "InsertPositionAndTransitions", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestListVehicleEvents_LimitClamp() {
	s.repo.On("ListVehicleEvents", mock.Anything, s.vehicleID, DefaultEventsLimit).Return([]*models.GeofenceEvent{}, nil).Twice()
	s.repo.On("ListVehicleEvents", mock.Anything, s.vehicleID, 7).Return([]*models.GeofenceEvent{}, nil).Once()

	_, err := s.svc.ListVehicleEvents(context.Background(), s.vehicleID, 0)
	s.Require().NoError(err)
	_, err = s.svc.ListVehicleEvents(context.Background(), s.vehicleID, 501)
	s.Require().NoError(err)
	_, err = s.svc.ListVehicleEvents(context.Background(), s.vehicleID, 7)
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())

	_, err = s.svc.ListVehicleEvents(context.Background(), "bad", 7)
	_, ok := models.IsValidationError(err)
	s.Require().True(ok)
}

func (s *ServiceSuite) TestLatestCampaignPositions() {
	_, err := s.svc.LatestCampaignPositions(context.Background(), "bad")
	ve, ok := models.IsValidationError(err)
	s.Require().True(ok)
	s.Require().Equal([]string{"Invalid campaign ID format"}, ve.Details)

	s.repo.On("LatestCampaignPositions", mock.Anything, s.campaignID).
		Return([]*models.PositionSample{{VehicleID: s.vehicleID}}, nil).Once()
	ps, err := s.svc.LatestCampaignPositions(context.Background(), s.campaignID)
	s.Require().NoError(err)
	s.Require().Len(ps, 1)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
