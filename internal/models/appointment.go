package models

import "time"

// AppointmentStatus represents the appointment state machine:
// PENDING -> {APPROVED, REJECTED, CANCELLED}; APPROVED -> {COMPLETED,
// CANCELLED, NO_SHOW}; the remaining four states are terminal.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusApproved  AppointmentStatus = "APPROVED"
	AppointmentStatusRejected  AppointmentStatus = "REJECTED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow    AppointmentStatus = "NO_SHOW"
)

// Appointment is a booked service slot identified by a human-readable token.
type Appointment struct {
	ID         string            `db:"id" json:"id"`
	StudentID  string            `db:"student_id" json:"student_id"`
	ServiceID  string            `db:"service_id" json:"service_id"`
	StaffID    *string           `db:"staff_id" json:"staff_id,omitempty"`
	Date       time.Time         `db:"appointment_date" json:"appointment_date"`
	Time       string            `db:"appointment_time" json:"appointment_time"`
	Token      string            `db:"token" json:"token"`
	Status     AppointmentStatus `db:"status" json:"status"`
	Notes      string            `db:"notes" json:"notes"`
	AdminNotes string            `db:"admin_notes" json:"admin_notes"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentDetail enriches Appointment with student and service info.
type AppointmentDetail struct {
	Appointment
	StudentName string `db:"student_name" json:"student_name"`
	ServiceName string `db:"service_name" json:"service_name"`
}

// AppointmentEvent is the appointment-scoped audit trail, separate from
// user notifications.
type AppointmentEvent struct {
	ID            string            `db:"id" json:"id"`
	AppointmentID string            `db:"appointment_id" json:"appointment_id"`
	Status        AppointmentStatus `db:"status" json:"status"`
	Message       string            `db:"message" json:"message"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// Slot describes one bookable interval in the daily grid.
type Slot struct {
	Time        string `json:"time"`
	DisplayTime string `json:"display_time"`
	Available   bool   `json:"available"`
}

// QueueEntry is a same-day appointment with its ephemeral queue rank.
// The position is recomputed on every read, never persisted.
type QueueEntry struct {
	AppointmentDetail
	QueuePosition int `json:"queue_position"`
}

// AppointmentFilter constrains appointment listing.
type AppointmentFilter struct {
	StudentID string
	ServiceID string
	Status    AppointmentStatus
	Date      *time.Time
	Page      int
	PageSize  int
}
