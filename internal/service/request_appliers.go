package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/pkg/database"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type courseFinder interface {
	FindByCode(ctx context.Context, q sqlx.ExtContext, code string) (*models.Course, error)
}

type enrollmentWriter interface {
	FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Enrollment, error)
	Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error
	Drop(ctx context.Context, q sqlx.ExtContext, id string) (bool, error)
}

type bookStockWriter interface {
	FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Book, error)
	DecrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error)
	IncrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error)
}

type borrowingWriter interface {
	FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Borrowing, error)
	Create(ctx context.Context, q sqlx.ExtContext, borrowing *models.Borrowing) error
	MarkReturned(ctx context.Context, q sqlx.ExtContext, id string, returnedAt time.Time, fine float64) (bool, error)
}

type userActivator interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Activate(ctx context.Context, q sqlx.ExtContext, id string) (bool, error)
}

type studentWriter interface {
	Create(ctx context.Context, q sqlx.ExtContext, student *models.Student) error
	NextStudentNo(ctx context.Context, q sqlx.ExtContext, year int) (string, error)
}

// EnrollApplier registers the student in the referenced course when an
// enroll request is approved.
type EnrollApplier struct {
	courses     courseFinder
	enrollments enrollmentWriter
}

// NewEnrollApplier constructs the enroll side effect.
func NewEnrollApplier(courses courseFinder, enrollments enrollmentWriter) *EnrollApplier {
	return &EnrollApplier{courses: courses, enrollments: enrollments}
}

// Apply creates the enrollment row inside the decision transaction.
func (a *EnrollApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	if request.StudentID == nil || request.CourseCode == nil {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "enroll request is missing its references")
	}
	course, err := a.courses.FindByCode(ctx, tx, *request.CourseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrReferenceNotFound, fmt.Sprintf("course %s not found", *request.CourseCode))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
	}

	enrollment := &models.Enrollment{
		StudentID: *request.StudentID,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusEnrolled,
	}
	if err := a.enrollments.Create(ctx, tx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return "", appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("student is already enrolled in %s", course.Code))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return fmt.Sprintf("You have been enrolled in %s (%s).", course.Title, course.Code), nil
}

// UnenrollApplier drops the referenced enrollment.
type UnenrollApplier struct {
	enrollments enrollmentWriter
}

// NewUnenrollApplier constructs the unenroll side effect.
func NewUnenrollApplier(enrollments enrollmentWriter) *UnenrollApplier {
	return &UnenrollApplier{enrollments: enrollments}
}

// Apply transitions the enrollment to dropped inside the decision
// transaction.
func (a *UnenrollApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	if request.EnrollmentID == nil {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "unenroll request is missing its enrollment reference")
	}
	enrollment, err := a.enrollments.FindByID(ctx, tx, *request.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "enrollment not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
	}
	if request.StudentID != nil && enrollment.StudentID != *request.StudentID {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "enrollment does not belong to the requesting student")
	}

	dropped, err := a.enrollments.Drop(ctx, tx, enrollment.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	if !dropped {
		return "", appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer active")
	}
	return "Your course enrollment has been dropped.", nil
}

// BorrowApplier lends a copy of the referenced book: it decrements the
// available stock and opens a borrowing with the configured loan period.
type BorrowApplier struct {
	books      bookStockWriter
	borrowings borrowingWriter
	loanPeriod time.Duration
}

// NewBorrowApplier constructs the borrow side effect.
func NewBorrowApplier(books bookStockWriter, borrowings borrowingWriter, loanPeriodDays int) *BorrowApplier {
	if loanPeriodDays <= 0 {
		loanPeriodDays = 14
	}
	return &BorrowApplier{books: books, borrowings: borrowings, loanPeriod: time.Duration(loanPeriodDays) * 24 * time.Hour}
}

// Apply takes a copy off the shelf inside the decision transaction. The
// guarded decrement affects zero rows when no copy is available, which
// surfaces as an unavailability error rather than negative stock.
func (a *BorrowApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	if request.StudentID == nil || request.BookID == nil {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "borrow request is missing its references")
	}
	book, err := a.books.FindByID(ctx, tx, *request.BookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "book not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve book")
	}

	taken, err := a.books.DecrementAvailable(ctx, tx, book.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve book copy")
	}
	if !taken {
		return "", appErrors.Clone(appErrors.ErrUnavailable, fmt.Sprintf("no copies of %q are available", book.Title))
	}

	now := time.Now().UTC()
	borrowing := &models.Borrowing{
		StudentID:  *request.StudentID,
		BookID:     book.ID,
		BorrowedAt: now,
		DueAt:      now.Add(a.loanPeriod),
		Status:     models.BorrowingStatusBorrowed,
	}
	if err := a.borrowings.Create(ctx, tx, borrowing); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create borrowing")
	}
	return fmt.Sprintf("%q is yours until %s.", book.Title, borrowing.DueAt.Format("2 Jan 2006")), nil
}

// ReturnApplier closes the referenced borrowing and puts the copy back
// on the shelf, charging a late fine when the due date has passed.
type ReturnApplier struct {
	books      bookStockWriter
	borrowings borrowingWriter
	finePerDay float64
	logger     *zap.Logger
}

// NewReturnApplier constructs the return side effect.
func NewReturnApplier(books bookStockWriter, borrowings borrowingWriter, finePerDay float64, logger *zap.Logger) *ReturnApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnApplier{books: books, borrowings: borrowings, finePerDay: finePerDay, logger: logger}
}

// Apply closes the borrowing inside the decision transaction. The
// guarded increment keeps available_copies within total_copies even if
// stock was adjusted concurrently.
func (a *ReturnApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	if request.BorrowingID == nil {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "return request is missing its borrowing reference")
	}
	borrowing, err := a.borrowings.FindByID(ctx, tx, *request.BorrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "borrowing not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve borrowing")
	}
	if request.StudentID != nil && borrowing.StudentID != *request.StudentID {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "borrowing does not belong to the requesting student")
	}

	now := time.Now().UTC()
	fine := a.fineFor(borrowing.DueAt, now)
	closed, err := a.borrowings.MarkReturned(ctx, tx, borrowing.ID, now, fine)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close borrowing")
	}
	if !closed {
		return "", appErrors.Clone(appErrors.ErrConflict, "borrowing is already returned")
	}

	restocked, err := a.books.IncrementAvailable(ctx, tx, borrowing.BookID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restock book copy")
	}
	if !restocked {
		// stock was already at total_copies, likely adjusted by hand
		a.logger.Warn("book stock already at capacity on return",
			zap.String("book_id", borrowing.BookID),
			zap.String("borrowing_id", borrowing.ID))
	}

	if fine > 0 {
		return fmt.Sprintf("Book returned. A late fine of %.2f has been charged.", fine), nil
	}
	return "Book returned. Thank you.", nil
}

func (a *ReturnApplier) fineFor(dueAt, returnedAt time.Time) float64 {
	if !returnedAt.After(dueAt) {
		return 0
	}
	daysLate := math.Ceil(returnedAt.Sub(dueAt).Hours() / 24)
	return daysLate * a.finePerDay
}

// NewUserApplier activates a pending account and provisions its student
// record when a registration is approved.
type NewUserApplier struct {
	users    userActivator
	students studentWriter
}

// NewNewUserApplier constructs the registration side effect.
func NewNewUserApplier(users userActivator, students studentWriter) *NewUserApplier {
	return &NewUserApplier{users: users, students: students}
}

// Apply activates the user and creates the student record inside the
// decision transaction, allocating the next student number for the
// current year.
func (a *NewUserApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	if request.SubjectUserID == nil {
		return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "registration request is missing its user reference")
	}
	user, err := a.users.FindByID(ctx, *request.SubjectUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrReferenceNotFound, "user not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
	}

	activated, err := a.users.Activate(ctx, tx, user.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate user")
	}
	if !activated {
		return "", appErrors.Clone(appErrors.ErrConflict, "account is already active")
	}

	now := time.Now().UTC()
	studentNo, err := a.students.NextStudentNo(ctx, tx, now.Year())
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate student number")
	}
	student := &models.Student{
		UserID:    &user.ID,
		StudentNo: studentNo,
		FullName:  user.FullName,
		Email:     user.Email,
		Active:    true,
	}
	if err := a.students.Create(ctx, tx, student); err != nil {
		if database.IsUniqueViolation(err) {
			return "", appErrors.Clone(appErrors.ErrConflict, "a student record already exists for this account")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student record")
	}
	return fmt.Sprintf("Your account has been activated. Your student number is %s.", studentNo), nil
}

// DefaultAppliers wires the standard side effect per request type.
// Hostel, library, course and other requests carry no entity side
// effect; approving them only transitions the request itself.
func DefaultAppliers(enroll *EnrollApplier, unenroll *UnenrollApplier, borrow *BorrowApplier, ret *ReturnApplier, newUser *NewUserApplier) map[models.RequestType]RequestApplier {
	return map[models.RequestType]RequestApplier{
		models.RequestTypeEnroll:   enroll,
		models.RequestTypeUnenroll: unenroll,
		models.RequestTypeBorrow:   borrow,
		models.RequestTypeReturn:   ret,
		models.RequestTypeNewUser:  newUser,
	}
}
