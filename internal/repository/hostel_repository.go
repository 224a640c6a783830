package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/campus-portal-api/internal/models"
)

// HostelRepository handles persistence of hostels and rooms.
type HostelRepository struct {
	db *sqlx.DB
}

// NewHostelRepository constructs the repository.
func NewHostelRepository(db *sqlx.DB) *HostelRepository {
	return &HostelRepository{db: db}
}

// ListHostels returns all hostels.
func (r *HostelRepository) ListHostels(ctx context.Context) ([]models.Hostel, error) {
	const query = `SELECT id, name, warden, created_at FROM hostels ORDER BY name ASC`
	var hostels []models.Hostel
	if err := r.db.SelectContext(ctx, &hostels, query); err != nil {
		return nil, fmt.Errorf("list hostels: %w", err)
	}
	return hostels, nil
}

// FindHostelByID returns a hostel by its ID.
func (r *HostelRepository) FindHostelByID(ctx context.Context, id string) (*models.Hostel, error) {
	const query = `SELECT id, name, warden, created_at FROM hostels WHERE id = $1`
	var hostel models.Hostel
	if err := r.db.GetContext(ctx, &hostel, query, id); err != nil {
		return nil, err
	}
	return &hostel, nil
}

// CreateHostel persists a new hostel.
func (r *HostelRepository) CreateHostel(ctx context.Context, hostel *models.Hostel) error {
	if hostel.ID == "" {
		hostel.ID = uuid.NewString()
	}
	if hostel.CreatedAt.IsZero() {
		hostel.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO hostels (id, name, warden, created_at) VALUES (:id, :name, :warden, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hostel); err != nil {
		return fmt.Errorf("create hostel: %w", err)
	}
	return nil
}

// ListRooms returns the rooms of a hostel.
func (r *HostelRepository) ListRooms(ctx context.Context, hostelID string) ([]models.Room, error) {
	const query = `SELECT id, hostel_id, number, capacity, occupied FROM rooms WHERE hostel_id = $1 ORDER BY number ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, hostelID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom persists a new room.
func (r *HostelRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	const query = `INSERT INTO rooms (id, hostel_id, number, capacity, occupied) VALUES (:id, :hostel_id, :number, :capacity, :occupied)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}
