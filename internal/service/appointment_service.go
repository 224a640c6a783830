package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/pkg/config"
	"github.com/studiva/campus-portal-api/pkg/database"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type appointmentStore interface {
	Create(ctx context.Context, q sqlx.ExtContext, appointment *models.Appointment) error
	NextSequence(ctx context.Context, q sqlx.ExtContext, date time.Time) (int, error)
	SlotTaken(ctx context.Context, q sqlx.ExtContext, serviceID string, date time.Time, slot string) (bool, error)
	OccupiedTimes(ctx context.Context, serviceID string, date time.Time) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AppointmentDetail, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error)
	ListQueueForDate(ctx context.Context, date time.Time) ([]models.AppointmentDetail, error)
	UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus, adminNotes string) (bool, error)
	CreateEvent(ctx context.Context, event *models.AppointmentEvent) error
	ListEvents(ctx context.Context, appointmentID string) ([]models.AppointmentEvent, error)
}

type serviceCatalog interface {
	FindByID(ctx context.Context, id string) (*models.CampusService, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type audienceNotifier interface {
	Notify(ctx context.Context, userID, title, message string, ntype models.NotificationType)
	Broadcast(ctx context.Context, audience models.AnnouncementAudience, title, message string, ntype models.NotificationType)
}

type bookingMetrics interface {
	AppointmentBooked()
}

// appointmentTransitions encodes the status machine. Absent entries are
// terminal states.
var appointmentTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentStatusPending:  {models.AppointmentStatusApproved, models.AppointmentStatusRejected, models.AppointmentStatusCancelled},
	models.AppointmentStatusApproved: {models.AppointmentStatusCompleted, models.AppointmentStatusCancelled, models.AppointmentStatusNoShow},
}

func transitionAllowed(from, to models.AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookAppointmentRequest is the boundary payload for booking a slot.
type BookAppointmentRequest struct {
	ServiceID    string `json:"service_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Time         string `json:"time" validate:"required"`
	Notes        string `json:"notes"`
	StudentID    string `json:"student_id"`
	StudentEmail string `json:"student_email"`
}

// UpdateAppointmentStatusRequest is the admin transition payload.
type UpdateAppointmentStatusRequest struct {
	Status     string `json:"status" validate:"required"`
	AdminNotes string `json:"admin_notes"`
}

// AppointmentService books service slots, allocates daily queue tokens
// and drives the appointment state machine.
type AppointmentService struct {
	repo      appointmentStore
	services  serviceCatalog
	students  studentDirectory
	tx        txRunner
	notifier  audienceNotifier
	cache     *CacheService
	metrics   bookingMetrics
	cfg       config.AppointmentConfig
	slotTTL   time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAppointmentService constructs the appointment service.
func NewAppointmentService(repo appointmentStore, services serviceCatalog, students studentDirectory, tx txRunner, notifier audienceNotifier, cache *CacheService, metrics bookingMetrics, cfg config.AppointmentConfig, slotTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DayStart == "" {
		cfg.DayStart = "09:00"
	}
	if cfg.DayEnd == "" {
		cfg.DayEnd = "17:00"
	}
	if cfg.SlotInterval <= 0 {
		cfg.SlotInterval = 30 * time.Minute
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = "APT"
	}
	if slotTTL <= 0 {
		slotTTL = 30 * time.Second
	}
	return &AppointmentService{
		repo: repo, services: services, students: students, tx: tx,
		notifier: notifier, cache: cache, metrics: metrics,
		cfg: cfg, slotTTL: slotTTL, validator: validate, logger: logger,
	}
}

// Book reserves a slot and allocates the next daily token. Sequence
// advance, slot check and the insert run in one transaction so
// concurrent bookings for the same date serialize on the counter row:
// tokens are never shared and a slot can only be won once.
func (s *AppointmentService) Book(ctx context.Context, req BookAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	if date.Before(truncateToDay(time.Now().UTC())) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book a past date")
	}
	if !s.slotInGrid(req.Time) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time must fall on a %s interval between %s and %s", s.cfg.SlotInterval, s.cfg.DayStart, s.cfg.DayEnd))
	}

	service, err := s.services.FindByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrReferenceNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve service")
	}
	if !service.Active {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "service is not accepting appointments")
	}

	student, err := s.resolveStudent(ctx, models.StudentRef{ID: req.StudentID, Email: req.StudentEmail})
	if err != nil {
		return nil, err
	}

	appointment := &models.Appointment{
		StudentID: student.ID,
		ServiceID: service.ID,
		Date:      date,
		Time:      req.Time,
		Status:    models.AppointmentStatusPending,
		Notes:     req.Notes,
	}

	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		// Advancing the counter locks the per-date sequence row, so
		// same-date bookings serialize here and the slot check below
		// always sees the latest committed occupant. A losing racer
		// rolls back, which also undoes its counter increment.
		seq, err := s.repo.NextSequence(ctx, tx, date)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate token")
		}
		appointment.Token = fmt.Sprintf("%s%s%03d", s.cfg.TokenPrefix, date.Format("20060102"), seq)

		taken, err := s.repo.SlotTaken(ctx, tx, service.ID, date, req.Time)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "slot is already booked")
		}

		if err := s.repo.Create(ctx, tx, appointment); err != nil {
			// the partial unique index on active (service, date, time)
			// rows backstops the slot check
			if database.IsUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "slot is already booked")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, appointment.ID, models.AppointmentStatusPending, "Appointment requested")
	s.invalidateSlots(ctx, service.ID, date)
	if s.metrics != nil {
		s.metrics.AppointmentBooked()
	}

	if s.notifier != nil {
		if student.UserID != nil {
			s.notifier.Notify(ctx, *student.UserID, "Appointment booked",
				fmt.Sprintf("Your appointment at %s on %s %s is booked. Your token is %s.", service.Name, req.Date, req.Time, appointment.Token),
				models.NotificationSuccess)
		}
		s.notifier.Broadcast(ctx, models.AnnouncementAudienceAdmins, "New appointment",
			fmt.Sprintf("%s booked %s on %s %s (token %s).", student.FullName, service.Name, req.Date, req.Time, appointment.Token),
			models.NotificationInfo)
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("token", appointment.Token),
		zap.String("service_id", service.ID))
	return appointment, nil
}

// AvailableSlots returns the bookable grid for a service on a date,
// served from cache when warm.
func (s *AppointmentService) AvailableSlots(ctx context.Context, serviceID string, date time.Time) ([]models.Slot, error) {
	key := slotCacheKey(serviceID, date)
	var cached []models.Slot
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if _, err := s.services.FindByID(ctx, serviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve service")
	}

	occupied, err := s.repo.OccupiedTimes(ctx, serviceID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupied slots")
	}
	taken := make(map[string]bool, len(occupied))
	for _, t := range occupied {
		taken[t] = true
	}

	slots := s.buildGrid(taken)
	if s.cache != nil {
		s.cache.Set(ctx, key, slots, s.slotTTL)
	}
	return slots, nil
}

// Get returns an appointment with student and service info.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return detail, nil
}

// List returns appointments matching the filter. Student callers are
// restricted to their own records.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter, actor *models.JWTClaims) ([]models.AppointmentDetail, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.AppointmentDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
		}
		filter.StudentID = student.ID
	}

	appointments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return appointments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus applies an admin transition. The guarded update makes
// concurrent decisions race-safe: only one wins, the loser gets a
// conflict.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id string, req UpdateAppointmentStatusRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	to := models.AppointmentStatus(req.Status)
	switch to {
	case models.AppointmentStatusApproved, models.AppointmentStatusRejected,
		models.AppointmentStatusCompleted, models.AppointmentStatusCancelled,
		models.AppointmentStatusNoShow:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if !transitionAllowed(appointment.Status, to) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move appointment from %s to %s", appointment.Status, to))
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appointment.Status, to, req.AdminNotes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "appointment was updated concurrently")
	}

	appointment.Status = to
	if req.AdminNotes != "" {
		appointment.AdminNotes = req.AdminNotes
	}

	s.recordEvent(ctx, id, to, statusEventMessage(to))
	if to == models.AppointmentStatusRejected || to == models.AppointmentStatusCancelled {
		s.invalidateSlots(ctx, appointment.ServiceID, appointment.Date)
	}
	s.notifyStudent(ctx, appointment.StudentID, "Appointment update",
		fmt.Sprintf("Your appointment %s is now %s.", appointment.Token, to), notificationTypeFor(to))

	s.logger.Info("appointment status updated",
		zap.String("appointment_id", id),
		zap.String("status", string(to)))
	return appointment, nil
}

// Cancel lets the owning student withdraw a pending or approved
// appointment; admins may cancel any.
func (s *AppointmentService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	if actor.Role != models.RoleAdmin {
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil || student.ID != appointment.StudentID {
			return appErrors.Clone(appErrors.ErrForbidden, "appointment belongs to another student")
		}
	}
	if !transitionAllowed(appointment.Status, models.AppointmentStatusCancelled) {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot cancel a %s appointment", appointment.Status))
	}

	cancelled, err := s.repo.UpdateStatus(ctx, id, appointment.Status, models.AppointmentStatusCancelled, "")
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	if !cancelled {
		return appErrors.Clone(appErrors.ErrConflict, "appointment was updated concurrently")
	}

	s.recordEvent(ctx, id, models.AppointmentStatusCancelled, "Appointment cancelled")
	s.invalidateSlots(ctx, appointment.ServiceID, appointment.Date)
	s.notifyStudent(ctx, appointment.StudentID, "Appointment cancelled",
		fmt.Sprintf("Your appointment %s has been cancelled.", appointment.Token), models.NotificationWarning)
	return nil
}

// QueueToday returns today's active appointments in visiting order with
// 1-based positions. Positions are computed here on every read, so
// cancellations ahead in the line shift everyone up.
func (s *AppointmentService) QueueToday(ctx context.Context) ([]models.QueueEntry, error) {
	today := truncateToDay(time.Now().UTC())
	appointments, err := s.repo.ListQueueForDate(ctx, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue")
	}

	entries := make([]models.QueueEntry, 0, len(appointments))
	for i, appointment := range appointments {
		entries = append(entries, models.QueueEntry{AppointmentDetail: appointment, QueuePosition: i + 1})
	}
	return entries, nil
}

// History returns the audit trail of an appointment.
func (s *AppointmentService) History(ctx context.Context, id string) ([]models.AppointmentEvent, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment history")
	}
	return events, nil
}

func (s *AppointmentService) resolveStudent(ctx context.Context, ref models.StudentRef) (*models.Student, error) {
	if ref.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id or student_email is required")
	}
	var (
		student *models.Student
		err     error
	)
	if ref.ID != "" {
		student, err = s.students.FindByID(ctx, ref.ID)
	} else {
		student, err = s.students.FindByEmail(ctx, ref.Email)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrReferenceNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	return student, nil
}

// slotInGrid reports whether the time lands on a configured interval
// within the booking window.
func (s *AppointmentService) slotInGrid(slot string) bool {
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return false
	}
	start, err := time.Parse("15:04", s.cfg.DayStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", s.cfg.DayEnd)
	if err != nil {
		return false
	}
	if t.Before(start) || !t.Before(end) {
		return false
	}
	return t.Sub(start)%s.cfg.SlotInterval == 0
}

func (s *AppointmentService) buildGrid(taken map[string]bool) []models.Slot {
	start, _ := time.Parse("15:04", s.cfg.DayStart)
	end, _ := time.Parse("15:04", s.cfg.DayEnd)

	var slots []models.Slot
	for t := start; t.Before(end); t = t.Add(s.cfg.SlotInterval) {
		key := t.Format("15:04")
		slots = append(slots, models.Slot{
			Time:        key,
			DisplayTime: t.Format("3:04 PM"),
			Available:   !taken[key],
		})
	}
	return slots
}

func (s *AppointmentService) recordEvent(ctx context.Context, appointmentID string, status models.AppointmentStatus, message string) {
	event := &models.AppointmentEvent{AppointmentID: appointmentID, Status: status, Message: message}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record appointment event", zap.String("appointment_id", appointmentID), zap.Error(err))
	}
}

func (s *AppointmentService) notifyStudent(ctx context.Context, studentID, title, message string, ntype models.NotificationType) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil || student.UserID == nil {
		return
	}
	s.notifier.Notify(ctx, *student.UserID, title, message, ntype)
}

func (s *AppointmentService) invalidateSlots(ctx context.Context, serviceID string, date time.Time) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, slotCacheKey(serviceID, date))
	}
}

func slotCacheKey(serviceID string, date time.Time) string {
	return fmt.Sprintf("slots:%s:%s", serviceID, date.Format("2006-01-02"))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func statusEventMessage(status models.AppointmentStatus) string {
	switch status {
	case models.AppointmentStatusApproved:
		return "Appointment approved"
	case models.AppointmentStatusRejected:
		return "Appointment rejected"
	case models.AppointmentStatusCompleted:
		return "Appointment completed"
	case models.AppointmentStatusCancelled:
		return "Appointment cancelled"
	case models.AppointmentStatusNoShow:
		return "Student did not show up"
	default:
		return "Appointment updated"
	}
}

func notificationTypeFor(status models.AppointmentStatus) models.NotificationType {
	switch status {
	case models.AppointmentStatusApproved, models.AppointmentStatusCompleted:
		return models.NotificationSuccess
	case models.AppointmentStatusRejected, models.AppointmentStatusNoShow:
		return models.NotificationWarning
	default:
		return models.NotificationInfo
	}
}
