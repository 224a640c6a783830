package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type hostelStore interface {
	ListHostels(ctx context.Context) ([]models.Hostel, error)
	FindHostelByID(ctx context.Context, id string) (*models.Hostel, error)
	CreateHostel(ctx context.Context, hostel *models.Hostel) error
	ListRooms(ctx context.Context, hostelID string) ([]models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
}

// CreateHostelRequest is the admin payload for adding a hostel.
type CreateHostelRequest struct {
	Name   string `json:"name" validate:"required"`
	Warden string `json:"warden"`
}

// CreateRoomRequest is the admin payload for adding a room to a hostel.
type CreateRoomRequest struct {
	Number   string `json:"number" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
}

// HostelService manages hostels and their rooms.
type HostelService struct {
	repo      hostelStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHostelService constructs the service.
func NewHostelService(repo hostelStore, validate *validator.Validate, logger *zap.Logger) *HostelService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostelService{repo: repo, validator: validate, logger: logger}
}

// List returns all hostels.
func (s *HostelService) List(ctx context.Context) ([]models.Hostel, error) {
	hostels, err := s.repo.ListHostels(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hostels")
	}
	return hostels, nil
}

// Create adds a hostel.
func (s *HostelService) Create(ctx context.Context, req CreateHostelRequest) (*models.Hostel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid hostel payload")
	}
	hostel := &models.Hostel{Name: req.Name, Warden: req.Warden}
	if err := s.repo.CreateHostel(ctx, hostel); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create hostel")
	}
	s.logger.Info("hostel created", zap.String("hostel_id", hostel.ID))
	return hostel, nil
}

// Rooms lists the rooms of a hostel.
func (s *HostelService) Rooms(ctx context.Context, hostelID string) ([]models.Room, error) {
	if _, err := s.repo.FindHostelByID(ctx, hostelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hostel not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hostel")
	}
	rooms, err := s.repo.ListRooms(ctx, hostelID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, nil
}

// AddRoom adds a room to a hostel.
func (s *HostelService) AddRoom(ctx context.Context, hostelID string, req CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	if _, err := s.repo.FindHostelByID(ctx, hostelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hostel not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hostel")
	}
	room := &models.Room{HostelID: hostelID, Number: req.Number, Capacity: req.Capacity}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	return room, nil
}
