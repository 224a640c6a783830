package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	FindByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	MarkDecided(ctx context.Context, q sqlx.ExtContext, id string, status models.RequestStatus, adminNote, decidedBy string, decidedAt time.Time) (bool, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type studentResolver interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
}

type decisionNotifier interface {
	Notify(ctx context.Context, userID, title, message string, ntype models.NotificationType)
}

type decisionMetrics interface {
	RequestDecided(requestType, status string)
}

// RequestApplier performs the entity side effect of an approved request
// inside the decision transaction. The returned string describes the
// outcome for the student-facing notification.
type RequestApplier interface {
	Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error)
}

// RequestApplierFunc allows using plain functions as appliers.
type RequestApplierFunc func(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error)

// Apply implements RequestApplier.
func (f RequestApplierFunc) Apply(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
	return f(ctx, tx, request)
}

// CreateRequestRequest is the boundary payload for filing a request.
// The requester may be identified by id or by email; it is resolved to
// the canonical student id exactly once, here.
type CreateRequestRequest struct {
	Type         string `json:"type" validate:"required"`
	StudentID    string `json:"student_id"`
	StudentEmail string `json:"student_email"`
	CourseCode   string `json:"course_code"`
	BookID       string `json:"book_id"`
	EnrollmentID string `json:"enrollment_id"`
	BorrowingID  string `json:"borrowing_id"`
	Note         string `json:"note"`
}

// DecideRequestRequest is the admin verdict payload.
type DecideRequestRequest struct {
	Status    string `json:"status" validate:"required"`
	AdminNote string `json:"admin_note"`
}

// RequestService is the workflow engine: it files pending requests and
// applies admin decisions with their type-specific side effects.
type RequestService struct {
	repo      requestStore
	students  studentResolver
	tx        txRunner
	notifier  decisionNotifier
	metrics   decisionMetrics
	appliers  map[models.RequestType]RequestApplier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs the workflow engine.
func NewRequestService(repo requestStore, students studentResolver, tx txRunner, notifier decisionNotifier, metrics decisionMetrics, appliers map[models.RequestType]RequestApplier, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if appliers == nil {
		appliers = make(map[models.RequestType]RequestApplier)
	}
	return &RequestService{repo: repo, students: students, tx: tx, notifier: notifier, metrics: metrics, appliers: appliers, validator: validate, logger: logger}
}

// Create validates and files a new pending request.
func (s *RequestService) Create(ctx context.Context, req CreateRequestRequest) (*models.Request, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	reqType := models.RequestType(req.Type)
	switch reqType {
	case models.RequestTypeEnroll, models.RequestTypeUnenroll, models.RequestTypeBorrow,
		models.RequestTypeReturn, models.RequestTypeHostel, models.RequestTypeLibrary,
		models.RequestTypeCourse, models.RequestTypeOther:
	case models.RequestTypeNewUser:
		return nil, appErrors.Clone(appErrors.ErrValidation, "new user requests are filed by registration")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", req.Type))
	}

	student, err := s.resolveStudent(ctx, models.StudentRef{ID: req.StudentID, Email: req.StudentEmail})
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		Type:      reqType,
		Status:    models.RequestStatusPending,
		StudentID: &student.ID,
		Note:      req.Note,
	}

	switch reqType {
	case models.RequestTypeEnroll:
		if req.CourseCode == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course_code is required for enroll requests")
		}
		request.CourseCode = &req.CourseCode
	case models.RequestTypeUnenroll:
		if req.EnrollmentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment_id is required for unenroll requests")
		}
		request.EnrollmentID = &req.EnrollmentID
	case models.RequestTypeBorrow:
		if req.BookID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "book_id is required for borrow requests")
		}
		request.BookID = &req.BookID
	case models.RequestTypeReturn:
		if req.BorrowingID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "borrowing_id is required for return requests")
		}
		request.BorrowingID = &req.BorrowingID
	}

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	s.logger.Info("request filed",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("student_id", student.ID))
	return request, nil
}

// FileRegistration records the pending approval request for a fresh
// signup. Called by the registration flow, never from the HTTP boundary.
func (s *RequestService) FileRegistration(ctx context.Context, userID, note string) (*models.Request, error) {
	request := &models.Request{
		Type:          models.RequestTypeNewUser,
		Status:        models.RequestStatusPending,
		SubjectUserID: &userID,
		Note:          note,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to file registration request")
	}
	return request, nil
}

// List returns requests with pagination metadata.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return requests, pagination, nil
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

// Decide applies an admin verdict. The status claim, the type-specific
// side effect and the request transition run in a single transaction:
// if the side effect cannot be applied the whole decision fails and the
// request stays pending. The student notification is written after
// commit and is deliberately best-effort.
func (s *RequestService) Decide(ctx context.Context, id string, req DecideRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	decision := models.RequestDecision(strings.ToUpper(req.Status))
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status must be %s or %s", models.DecisionApproved, models.DecisionRejected))
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request already decided")
	}

	now := time.Now().UTC()
	finalStatus := models.RequestStatusRejected
	if decision == models.DecisionApproved {
		finalStatus = models.RequestStatusApproved
	}

	var outcome string
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		claimed, err := s.repo.MarkDecided(ctx, tx, id, finalStatus, req.AdminNote, actor.UserID, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition request")
		}
		if !claimed {
			return appErrors.Clone(appErrors.ErrConflict, "request already decided")
		}
		if decision != models.DecisionApproved {
			return nil
		}
		applier, ok := s.appliers[request.Type]
		if !ok {
			return nil
		}
		outcome, err = applier.Apply(ctx, tx, request)
		return err
	})
	if err != nil {
		return nil, err
	}

	request.Status = finalStatus
	request.AdminNote = req.AdminNote
	request.DecidedAt = &now
	request.DecidedBy = &actor.UserID

	s.notifyDecision(ctx, request, decision, outcome)
	if s.metrics != nil {
		s.metrics.RequestDecided(string(request.Type), string(finalStatus))
	}

	s.logger.Info("request decided",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("status", string(finalStatus)),
		zap.String("decided_by", actor.UserID))
	return request, nil
}

func (s *RequestService) resolveStudent(ctx context.Context, ref models.StudentRef) (*models.Student, error) {
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

func (s *RequestService) notifyDecision(ctx context.Context, request *models.Request, decision models.RequestDecision, outcome string) {
	if s.notifier == nil {
		return
	}
	userID := s.recipientUserID(ctx, request)
	if userID == "" {
		return
	}

	var (
		title   string
		message string
		ntype   models.NotificationType
	)
	if decision == models.DecisionApproved {
		title = "Request approved"
		ntype = models.NotificationSuccess
		message = outcome
		if message == "" {
			message = fmt.Sprintf("Your %s request has been approved.", requestTypeLabel(request.Type))
		}
	} else {
		title = "Request rejected"
		ntype = models.NotificationWarning
		message = fmt.Sprintf("Your %s request has been rejected.", requestTypeLabel(request.Type))
	}
	if request.AdminNote != "" {
		message = fmt.Sprintf("%s Note: %s", message, request.AdminNote)
	}

	s.notifier.Notify(ctx, userID, title, message, ntype)
}

func (s *RequestService) recipientUserID(ctx context.Context, request *models.Request) string {
	if request.SubjectUserID != nil {
		return *request.SubjectUserID
	}
	if request.StudentID == nil {
		return ""
	}
	student, err := s.students.FindByID(ctx, *request.StudentID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient", zap.String("student_id", *request.StudentID), zap.Error(err))
		return ""
	}
	if student.UserID == nil {
		return ""
	}
	return *student.UserID
}

func requestTypeLabel(t models.RequestType) string {
	switch t {
	case models.RequestTypeEnroll:
		return "enrollment"
	case models.RequestTypeUnenroll:
		return "unenrollment"
	case models.RequestTypeBorrow:
		return "book borrow"
	case models.RequestTypeReturn:
		return "book return"
	case models.RequestTypeNewUser:
		return "account"
	default:
		return "general"
	}
}
