package models

import "time"

// BorrowingStatus represents the lifecycle of a borrowing.
type BorrowingStatus string

// Possible borrowing statuses.
const (
	BorrowingStatusBorrowed BorrowingStatus = "BORROWED"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
)

// Borrowing links a student to a borrowed book copy.
type Borrowing struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	BookID     string          `db:"book_id" json:"book_id"`
	BorrowedAt time.Time       `db:"borrowed_at" json:"borrowed_at"`
	DueAt      time.Time       `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time      `db:"returned_at" json:"returned_at,omitempty"`
	Status     BorrowingStatus `db:"status" json:"status"`
	Fine       float64         `db:"fine" json:"fine"`
}

// BorrowingDetail enriches Borrowing with student and book info.
type BorrowingDetail struct {
	Borrowing
	StudentName string `db:"student_name" json:"student_name"`
	BookTitle   string `db:"book_title" json:"book_title"`
}

// BorrowingFilter captures filtering criteria for listing borrowings.
type BorrowingFilter struct {
	StudentID string
	BookID    string
	Status    BorrowingStatus
	Page      int
	PageSize  int
}
