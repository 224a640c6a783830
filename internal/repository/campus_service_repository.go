package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/campus-portal-api/internal/models"
)

// CampusServiceRepository handles persistence of bookable campus services.
type CampusServiceRepository struct {
	db *sqlx.DB
}

// NewCampusServiceRepository constructs the repository.
func NewCampusServiceRepository(db *sqlx.DB) *CampusServiceRepository {
	return &CampusServiceRepository{db: db}
}

// List returns campus services, optionally only active ones.
func (r *CampusServiceRepository) List(ctx context.Context, activeOnly bool) ([]models.CampusService, error) {
	query := `SELECT id, name, description, location, active FROM campus_services`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`
	var services []models.CampusService
	if err := r.db.SelectContext(ctx, &services, query); err != nil {
		return nil, fmt.Errorf("list campus services: %w", err)
	}
	return services, nil
}

// FindByID returns a campus service by its ID.
func (r *CampusServiceRepository) FindByID(ctx context.Context, id string) (*models.CampusService, error) {
	const query = `SELECT id, name, description, location, active FROM campus_services WHERE id = $1`
	var service models.CampusService
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		return nil, err
	}
	return &service, nil
}

// Create persists a new campus service.
func (r *CampusServiceRepository) Create(ctx context.Context, service *models.CampusService) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	const query = `INSERT INTO campus_services (id, name, description, location, active)
        VALUES (:id, :name, :description, :location, :active)`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("create campus service: %w", err)
	}
	return nil
}
