package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type courseFinderStub struct {
	courses map[string]*models.Course
}

func (s *courseFinderStub) FindByCode(ctx context.Context, q sqlx.ExtContext, code string) (*models.Course, error) {
	if course, ok := s.courses[code]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

type enrollmentWriterStub struct {
	enrollments map[string]*models.Enrollment
	createErr   error
	created     []*models.Enrollment
}

func (s *enrollmentWriterStub) FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Enrollment, error) {
	if enrollment, ok := s.enrollments[id]; ok {
		return enrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentWriterStub) Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentWriterStub) Drop(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	enrollment, ok := s.enrollments[id]
	if !ok || enrollment.Status != models.EnrollmentStatusEnrolled {
		return false, nil
	}
	enrollment.Status = models.EnrollmentStatusDropped
	return true, nil
}

type bookStockStub struct {
	books map[string]*models.Book
}

func (s *bookStockStub) FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Book, error) {
	if book, ok := s.books[id]; ok {
		return book, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookStockStub) DecrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	book, ok := s.books[id]
	if !ok || book.AvailableCopies <= 0 {
		return false, nil
	}
	book.AvailableCopies--
	return true, nil
}

func (s *bookStockStub) IncrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	book, ok := s.books[id]
	if !ok || book.AvailableCopies >= book.TotalCopies {
		return false, nil
	}
	book.AvailableCopies++
	return true, nil
}

type borrowingWriterStub struct {
	borrowings map[string]*models.Borrowing
	created    []*models.Borrowing
	lastFine   float64
}

func (s *borrowingWriterStub) FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Borrowing, error) {
	if borrowing, ok := s.borrowings[id]; ok {
		return borrowing, nil
	}
	return nil, sql.ErrNoRows
}

func (s *borrowingWriterStub) Create(ctx context.Context, q sqlx.ExtContext, borrowing *models.Borrowing) error {
	s.created = append(s.created, borrowing)
	return nil
}

func (s *borrowingWriterStub) MarkReturned(ctx context.Context, q sqlx.ExtContext, id string, returnedAt time.Time, fine float64) (bool, error) {
	borrowing, ok := s.borrowings[id]
	if !ok || borrowing.Status == models.BorrowingStatusReturned {
		return false, nil
	}
	borrowing.Status = models.BorrowingStatusReturned
	s.lastFine = fine
	return true, nil
}

type userActivatorStub struct {
	users map[string]*models.User
}

func (s *userActivatorStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userActivatorStub) Activate(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	user, ok := s.users[id]
	if !ok || user.Active {
		return false, nil
	}
	user.Active = true
	return true, nil
}

type studentWriterStub struct {
	created   []*models.Student
	nextNo    string
	createErr error
}

func (s *studentWriterStub) Create(ctx context.Context, q sqlx.ExtContext, student *models.Student) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, student)
	return nil
}

func (s *studentWriterStub) NextStudentNo(ctx context.Context, q sqlx.ExtContext, year int) (string, error) {
	return s.nextNo, nil
}

func strPtr(v string) *string { return &v }

func TestEnrollApplierCreatesEnrollment(t *testing.T) {
	courses := &courseFinderStub{courses: map[string]*models.Course{
		"CS101": {ID: "course-1", Code: "CS101", Title: "Algorithms"},
	}}
	enrollments := &enrollmentWriterStub{}
	applier := NewEnrollApplier(courses, enrollments)

	request := &models.Request{StudentID: strPtr("student-1"), CourseCode: strPtr("CS101")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "Algorithms")
	require.Len(t, enrollments.created, 1)
	require.Equal(t, "course-1", enrollments.created[0].CourseID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollments.created[0].Status)
}

func TestEnrollApplierCourseMissing(t *testing.T) {
	applier := NewEnrollApplier(&courseFinderStub{courses: map[string]*models.Course{}}, &enrollmentWriterStub{})

	request := &models.Request{StudentID: strPtr("student-1"), CourseCode: strPtr("NOPE")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrReferenceNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollApplierDuplicateEnrollment(t *testing.T) {
	courses := &courseFinderStub{courses: map[string]*models.Course{
		"CS101": {ID: "course-1", Code: "CS101", Title: "Algorithms"},
	}}
	enrollments := &enrollmentWriterStub{createErr: &pq.Error{Code: "23505"}}
	applier := NewEnrollApplier(courses, enrollments)

	request := &models.Request{StudentID: strPtr("student-1"), CourseCode: strPtr("CS101")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUnenrollApplierForeignEnrollment(t *testing.T) {
	enrollments := &enrollmentWriterStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "student-2", Status: models.EnrollmentStatusEnrolled},
	}}
	applier := NewUnenrollApplier(enrollments)

	request := &models.Request{StudentID: strPtr("student-1"), EnrollmentID: strPtr("enr-1")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrReferenceNotFound.Code, appErrors.FromError(err).Code)
}

func TestUnenrollApplierAlreadyDropped(t *testing.T) {
	enrollments := &enrollmentWriterStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusDropped},
	}}
	applier := NewUnenrollApplier(enrollments)

	request := &models.Request{StudentID: strPtr("student-1"), EnrollmentID: strPtr("enr-1")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBorrowApplierOpensLoan(t *testing.T) {
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", Title: "The Go Programming Language", TotalCopies: 2, AvailableCopies: 1},
	}}
	borrowings := &borrowingWriterStub{borrowings: map[string]*models.Borrowing{}}
	applier := NewBorrowApplier(books, borrowings, 14)

	request := &models.Request{StudentID: strPtr("student-1"), BookID: strPtr("book-1")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "The Go Programming Language")
	require.Equal(t, 0, books.books["book-1"].AvailableCopies)
	require.Len(t, borrowings.created, 1)

	loan := borrowings.created[0]
	require.Equal(t, models.BorrowingStatusBorrowed, loan.Status)
	require.WithinDuration(t, loan.BorrowedAt.Add(14*24*time.Hour), loan.DueAt, time.Second)
}

func TestBorrowApplierNoCopies(t *testing.T) {
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", Title: "Sold Out", TotalCopies: 1, AvailableCopies: 0},
	}}
	borrowings := &borrowingWriterStub{}
	applier := NewBorrowApplier(books, borrowings, 14)

	request := &models.Request{StudentID: strPtr("student-1"), BookID: strPtr("book-1")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
	require.Empty(t, borrowings.created)
}

func TestReturnApplierOnTime(t *testing.T) {
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", TotalCopies: 2, AvailableCopies: 1},
	}}
	borrowings := &borrowingWriterStub{borrowings: map[string]*models.Borrowing{
		"brw-1": {ID: "brw-1", StudentID: "student-1", BookID: "book-1", DueAt: time.Now().UTC().Add(24 * time.Hour), Status: models.BorrowingStatusBorrowed},
	}}
	applier := NewReturnApplier(books, borrowings, 5, nil)

	request := &models.Request{StudentID: strPtr("student-1"), BorrowingID: strPtr("brw-1")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "Thank you")
	require.Zero(t, borrowings.lastFine)
	require.Equal(t, 2, books.books["book-1"].AvailableCopies)
}

func TestReturnApplierChargesLateFine(t *testing.T) {
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", TotalCopies: 2, AvailableCopies: 1},
	}}
	// Due 49 hours ago rounds up to three late days.
	borrowings := &borrowingWriterStub{borrowings: map[string]*models.Borrowing{
		"brw-1": {ID: "brw-1", StudentID: "student-1", BookID: "book-1", DueAt: time.Now().UTC().Add(-49 * time.Hour), Status: models.BorrowingStatusBorrowed},
	}}
	applier := NewReturnApplier(books, borrowings, 5, nil)

	request := &models.Request{StudentID: strPtr("student-1"), BorrowingID: strPtr("brw-1")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "late fine")
	require.Equal(t, 15.0, borrowings.lastFine)
}

func TestReturnApplierWarnsWhenStockAtCapacity(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", TotalCopies: 2, AvailableCopies: 2},
	}}
	borrowings := &borrowingWriterStub{borrowings: map[string]*models.Borrowing{
		"brw-1": {ID: "brw-1", StudentID: "student-1", BookID: "book-1", DueAt: time.Now().UTC().Add(24 * time.Hour), Status: models.BorrowingStatusBorrowed},
	}}
	applier := NewReturnApplier(books, borrowings, 5, zap.New(core))

	request := &models.Request{StudentID: strPtr("student-1"), BorrowingID: strPtr("brw-1")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "Thank you")
	require.Equal(t, 2, books.books["book-1"].AvailableCopies)
	require.Len(t, logs.FilterMessage("book stock already at capacity on return").All(), 1)
}

func TestReturnApplierAlreadyReturned(t *testing.T) {
	books := &bookStockStub{books: map[string]*models.Book{
		"book-1": {ID: "book-1", TotalCopies: 2, AvailableCopies: 2},
	}}
	borrowings := &borrowingWriterStub{borrowings: map[string]*models.Borrowing{
		"brw-1": {ID: "brw-1", StudentID: "student-1", BookID: "book-1", Status: models.BorrowingStatusReturned},
	}}
	applier := NewReturnApplier(books, borrowings, 5, nil)

	request := &models.Request{StudentID: strPtr("student-1"), BorrowingID: strPtr("brw-1")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestNewUserApplierActivatesAccount(t *testing.T) {
	users := &userActivatorStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "ada@example.com", FullName: "Ada Lovelace", Role: models.RoleStudent},
	}}
	students := &studentWriterStub{nextNo: "S2026-0042"}
	applier := NewNewUserApplier(users, students)

	request := &models.Request{SubjectUserID: strPtr("user-1")}
	outcome, err := applier.Apply(context.Background(), nil, request)
	require.NoError(t, err)
	require.Contains(t, outcome, "S2026-0042")
	require.True(t, users.users["user-1"].Active)
	require.Len(t, students.created, 1)
	require.Equal(t, "ada@example.com", students.created[0].Email)
	require.True(t, students.created[0].Active)
}

func TestNewUserApplierAlreadyActive(t *testing.T) {
	users := &userActivatorStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Active: true},
	}}
	applier := NewNewUserApplier(users, &studentWriterStub{nextNo: "S2026-0001"})

	request := &models.Request{SubjectUserID: strPtr("user-1")}
	_, err := applier.Apply(context.Background(), nil, request)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
