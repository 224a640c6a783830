package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/campus-portal-api/internal/models"
)

// AppointmentRepository handles persistence of appointments, their
// per-date token sequences and the appointment event trail.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) ext(q sqlx.ExtContext) sqlx.ExtContext {
	if q == nil {
		return r.db
	}
	return q
}

const appointmentColumns = `id, student_id, service_id, staff_id, appointment_date, appointment_time, token, status, notes, admin_notes, created_at, updated_at`

// Create persists a new appointment. Tx-aware so booking can pair the
// insert with token allocation.
func (r *AppointmentRepository) Create(ctx context.Context, q sqlx.ExtContext, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now
	if appointment.Status == "" {
		appointment.Status = models.AppointmentStatusPending
	}
	const query = `INSERT INTO appointments (id, student_id, service_id, staff_id, appointment_date, appointment_time, token, status, notes, admin_notes, created_at, updated_at)
        VALUES (:id, :student_id, :service_id, :staff_id, :appointment_date, :appointment_time, :token, :status, :notes, :admin_notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(q), query, appointment); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// NextSequence atomically advances the per-date token counter and
// returns the new value. The upsert serializes concurrent bookings for
// the same date on the counter row, so two bookings can never observe
// the same sequence number.
func (r *AppointmentRepository) NextSequence(ctx context.Context, q sqlx.ExtContext, date time.Time) (int, error) {
	const query = `INSERT INTO appointment_sequences (seq_date, last_seq) VALUES ($1, 1)
        ON CONFLICT (seq_date) DO UPDATE SET last_seq = appointment_sequences.last_seq + 1
        RETURNING last_seq`
	var seq int
	if err := sqlx.GetContext(ctx, r.ext(q), &seq, query, date.Format("2006-01-02")); err != nil {
		return 0, fmt.Errorf("next appointment sequence: %w", err)
	}
	return seq, nil
}

// SlotTaken reports whether an active appointment already occupies the
// slot for the given service, date and time.
func (r *AppointmentRepository) SlotTaken(ctx context.Context, q sqlx.ExtContext, serviceID string, date time.Time, slot string) (bool, error) {
	const query = `SELECT 1 FROM appointments
        WHERE service_id = $1 AND appointment_date = $2 AND appointment_time = $3
        AND status NOT IN ($4, $5) LIMIT 1`
	var exists int
	err := sqlx.GetContext(ctx, r.ext(q), &exists, query, serviceID, date.Format("2006-01-02"), slot,
		models.AppointmentStatusCancelled, models.AppointmentStatusRejected)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check slot: %w", err)
	}
	return true, nil
}

// OccupiedTimes lists the times blocked for a service on a date,
// excluding cancelled and rejected appointments.
func (r *AppointmentRepository) OccupiedTimes(ctx context.Context, serviceID string, date time.Time) ([]string, error) {
	const query = `SELECT appointment_time FROM appointments
        WHERE service_id = $1 AND appointment_date = $2 AND status NOT IN ($3, $4)`
	var times []string
	err := r.db.SelectContext(ctx, &times, query, serviceID, date.Format("2006-01-02"),
		models.AppointmentStatusCancelled, models.AppointmentStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("list occupied times: %w", err)
	}
	return times, nil
}

// FindByID returns an appointment by its ID.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, err
	}
	return &appointment, nil
}

// FindDetailByID returns an appointment with student and service info.
func (r *AppointmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	const query = `SELECT a.id, a.student_id, a.service_id, a.staff_id, a.appointment_date, a.appointment_time, a.token, a.status, a.notes, a.admin_notes, a.created_at, a.updated_at,
        s.full_name AS student_name, cs.name AS service_name
        FROM appointments a
        LEFT JOIN students s ON s.id = a.student_id
        LEFT JOIN campus_services cs ON cs.id = a.service_id
        WHERE a.id = $1`
	var detail models.AppointmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns appointments filtered by the provided criteria.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error) {
	base := `FROM appointments a
LEFT JOIN students s ON s.id = a.student_id
LEFT JOIN campus_services cs ON cs.id = a.service_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, fmt.Sprintf("a.service_id = $%d", len(args)+1))
		args = append(args, filter.ServiceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("a.appointment_date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
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

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.service_id, a.staff_id, a.appointment_date, a.appointment_time, a.token, a.status, a.notes, a.admin_notes, a.created_at, a.updated_at,
        s.full_name AS student_name, cs.name AS service_name
        %s ORDER BY a.appointment_date DESC, a.appointment_time ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var appointments []models.AppointmentDetail
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appointments, total, nil
}

// ListQueueForDate returns pending and approved appointments for a date
// ordered by time ascending. Queue positions are assigned by the caller.
func (r *AppointmentRepository) ListQueueForDate(ctx context.Context, date time.Time) ([]models.AppointmentDetail, error) {
	const query = `SELECT a.id, a.student_id, a.service_id, a.staff_id, a.appointment_date, a.appointment_time, a.token, a.status, a.notes, a.admin_notes, a.created_at, a.updated_at,
        s.full_name AS student_name, cs.name AS service_name
        FROM appointments a
        LEFT JOIN students s ON s.id = a.student_id
        LEFT JOIN campus_services cs ON cs.id = a.service_id
        WHERE a.appointment_date = $1 AND a.status IN ($2, $3)
        ORDER BY a.appointment_time ASC`
	var appointments []models.AppointmentDetail
	err := r.db.SelectContext(ctx, &appointments, query, date.Format("2006-01-02"),
		models.AppointmentStatusPending, models.AppointmentStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list appointment queue: %w", err)
	}
	return appointments, nil
}

// UpdateStatus transitions an appointment guarded by its current status,
// so concurrent decisions cannot both win.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus, adminNotes string) (bool, error) {
	const query = `UPDATE appointments SET status = $3, admin_notes = CASE WHEN $4 <> '' THEN $4 ELSE admin_notes END, updated_at = $5
        WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, adminNotes, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update appointment status rows: %w", err)
	}
	return affected > 0, nil
}

// CreateEvent appends a row to the appointment audit trail.
func (r *AppointmentRepository) CreateEvent(ctx context.Context, event *models.AppointmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO appointment_events (id, appointment_id, status, message, created_at)
        VALUES (:id, :appointment_id, :status, :message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create appointment event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail of an appointment, oldest first.
func (r *AppointmentRepository) ListEvents(ctx context.Context, appointmentID string) ([]models.AppointmentEvent, error) {
	const query = `SELECT id, appointment_id, status, message, created_at FROM appointment_events WHERE appointment_id = $1 ORDER BY created_at ASC`
	var events []models.AppointmentEvent
	if err := r.db.SelectContext(ctx, &events, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list appointment events: %w", err)
	}
	return events, nil
}
