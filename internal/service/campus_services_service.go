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

type campusServiceStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.CampusService, error)
	FindByID(ctx context.Context, id string) (*models.CampusService, error)
	Create(ctx context.Context, service *models.CampusService) error
}

// CreateCampusServiceRequest is the admin payload for adding a bookable
// service.
type CreateCampusServiceRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// CampusServiceService manages the catalog of bookable campus services.
type CampusServiceService struct {
	repo      campusServiceStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCampusServiceService constructs the service.
func NewCampusServiceService(repo campusServiceStore, validate *validator.Validate, logger *zap.Logger) *CampusServiceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampusServiceService{repo: repo, validator: validate, logger: logger}
}

// List returns campus services; students only see active ones.
func (s *CampusServiceService) List(ctx context.Context, activeOnly bool) ([]models.CampusService, error) {
	services, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list services")
	}
	return services, nil
}

// Get returns a campus service by id.
func (s *CampusServiceService) Get(ctx context.Context, id string) (*models.CampusService, error) {
	service, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}
	return service, nil
}

// Create adds a bookable service, active by default.
func (s *CampusServiceService) Create(ctx context.Context, req CreateCampusServiceRequest) (*models.CampusService, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service payload")
	}
	service := &models.CampusService{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		Active:      true,
	}
	if err := s.repo.Create(ctx, service); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create service")
	}
	s.logger.Info("campus service created", zap.String("service_id", service.ID))
	return service, nil
}
