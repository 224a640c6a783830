package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/campus-portal-api/internal/models"
)

// RequestRepository handles persistence of workflow requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) ext(q sqlx.ExtContext) sqlx.ExtContext {
	if q == nil {
		return r.db
	}
	return q
}

const requestColumns = `id, type, status, student_id, subject_user_id, course_code, book_id, enrollment_id, borrowing_id, note, admin_note, created_at, decided_at, decided_by`

// Create persists a new pending request.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	const query = `INSERT INTO requests (id, type, status, student_id, subject_user_id, course_code, book_id, enrollment_id, borrowing_id, note, admin_note, created_at)
        VALUES (:id, :type, :status, :student_id, :subject_user_id, :course_code, :book_id, :enrollment_id, :borrowing_id, :note, :admin_note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// FindByID returns a request by its ID.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id = $1`, requestColumns)
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests filtered by the provided criteria.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, requestColumns, clause, size, offset)
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM requests" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// MarkDecided transitions a request out of PENDING. The status guard
// makes the transition race-safe: when two admins decide concurrently
// the second update affects zero rows.
func (r *RequestRepository) MarkDecided(ctx context.Context, q sqlx.ExtContext, id string, status models.RequestStatus, adminNote, decidedBy string, decidedAt time.Time) (bool, error) {
	const query = `UPDATE requests SET status = $2, admin_note = $3, decided_by = $4, decided_at = $5
        WHERE id = $1 AND status = $6`
	res, err := r.ext(q).ExecContext(ctx, query, id, status, adminNote, decidedBy, decidedAt, models.RequestStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark request decided: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark request decided rows: %w", err)
	}
	return affected > 0, nil
}
