package models

import "time"

// Course represents an offered course.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Title      string    `db:"title" json:"title"`
	Credits    int       `db:"credits" json:"credits"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Instructor string    `db:"instructor" json:"instructor"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Search   string
	Page     int
	PageSize int
}
