package models

import "time"

// Student represents a registered student record.
type Student struct {
	ID           string    `db:"id" json:"id"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	StudentNo    string    `db:"student_no" json:"student_no"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	HostelRoomID *string   `db:"hostel_room_id" json:"hostel_room_id,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StudentRef identifies a student either by canonical id or by email.
// Boundary handlers accept both forms; resolution to the internal id
// happens exactly once before a reference enters the workflow layer.
type StudentRef struct {
	ID    string
	Email string
}

// IsZero reports whether the reference carries no identity at all.
func (r StudentRef) IsZero() bool {
	return r.ID == "" && r.Email == ""
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
