package models

import "time"

// Book represents a library title with copy accounting. The invariant
// 0 <= available_copies <= total_copies is enforced both by guarded
// updates and by a database check constraint.
type Book struct {
	ID              string    `db:"id" json:"id"`
	ISBN            string    `db:"isbn" json:"isbn"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BookFilter captures filtering criteria for listing books.
type BookFilter struct {
	Search        string
	AvailableOnly bool
	Page          int
	PageSize      int
}
