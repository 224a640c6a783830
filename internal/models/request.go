package models

import "time"

// RequestType enumerates the actions a student can ask an admin to approve.
type RequestType string

const (
	RequestTypeEnroll   RequestType = "ENROLL"
	RequestTypeUnenroll RequestType = "UNENROLL"
	RequestTypeBorrow   RequestType = "BORROW"
	RequestTypeReturn   RequestType = "RETURN"
	RequestTypeNewUser  RequestType = "NEW_USER"
	RequestTypeHostel   RequestType = "HOSTEL"
	RequestTypeLibrary  RequestType = "LIBRARY"
	RequestTypeCourse   RequestType = "COURSE"
	RequestTypeOther    RequestType = "OTHER"
)

// RequestStatus captures the workflow states of a request. Decided
// requests are retained with a terminal status for auditability.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// RequestDecision is an admin verdict on a pending request.
type RequestDecision string

const (
	DecisionApproved RequestDecision = "APPROVED"
	DecisionRejected RequestDecision = "REJECTED"
)

// Request stores a student action awaiting an admin decision. Which of
// the reference columns are meaningful depends on the type: ENROLL
// carries a course code, UNENROLL an enrollment id, BORROW a book id,
// RETURN a borrowing id, NEW_USER the pending user id.
type Request struct {
	ID            string        `db:"id" json:"id"`
	Type          RequestType   `db:"type" json:"type"`
	Status        RequestStatus `db:"status" json:"status"`
	StudentID     *string       `db:"student_id" json:"student_id,omitempty"`
	SubjectUserID *string       `db:"subject_user_id" json:"subject_user_id,omitempty"`
	CourseCode    *string       `db:"course_code" json:"course_code,omitempty"`
	BookID        *string       `db:"book_id" json:"book_id,omitempty"`
	EnrollmentID  *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	BorrowingID   *string       `db:"borrowing_id" json:"borrowing_id,omitempty"`
	Note          string        `db:"note" json:"note"`
	AdminNote     string        `db:"admin_note" json:"admin_note"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	DecidedAt     *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy     *string       `db:"decided_by" json:"decided_by,omitempty"`
}

// RequestFilter constrains request listing.
type RequestFilter struct {
	Status    RequestStatus
	Type      RequestType
	StudentID string
	Page      int
	PageSize  int
}
