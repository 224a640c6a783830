package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type requestRepoStub struct {
	requests map[string]*models.Request
	seq      int
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.Request)}
}

func (s *requestRepoStub) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		s.seq++
		request.ID = fmt.Sprintf("req-%d", s.seq)
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	s.requests[request.ID] = request
	return nil
}

func (s *requestRepoStub) FindByID(ctx context.Context, id string) (*models.Request, error) {
	if request, ok := s.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	result := make([]models.Request, 0, len(s.requests))
	for _, request := range s.requests {
		result = append(result, *request)
	}
	return result, len(result), nil
}

func (s *requestRepoStub) MarkDecided(ctx context.Context, q sqlx.ExtContext, id string, status models.RequestStatus, adminNote, decidedBy string, decidedAt time.Time) (bool, error) {
	request, ok := s.requests[id]
	if !ok || request.Status != models.RequestStatusPending {
		return false, nil
	}
	request.Status = status
	request.AdminNote = adminNote
	request.DecidedBy = &decidedBy
	request.DecidedAt = &decidedAt
	return true, nil
}

type requestStudentStub struct {
	students map[string]*models.Student
}

func (s *requestStudentStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := s.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestStudentStub) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	for _, student := range s.students {
		if student.Email == email {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

type notifyCall struct {
	UserID  string
	Title   string
	Message string
	Type    models.NotificationType
}

type decisionNotifierStub struct {
	calls []notifyCall
}

func (s *decisionNotifierStub) Notify(ctx context.Context, userID, title, message string, ntype models.NotificationType) {
	s.calls = append(s.calls, notifyCall{UserID: userID, Title: title, Message: message, Type: ntype})
}

type decisionMetricsStub struct {
	decided map[string]int
}

func (s *decisionMetricsStub) RequestDecided(requestType, status string) {
	if s.decided == nil {
		s.decided = make(map[string]int)
	}
	s.decided[requestType+"/"+status]++
}

// txRunnerStub invokes the function directly; appliers under test do not
// touch the transaction handle.
type txRunnerStub struct{}

func (txRunnerStub) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func testStudent() *models.Student {
	userID := "user-1"
	return &models.Student{ID: "student-1", UserID: &userID, StudentNo: "S2026-0001", FullName: "Ada Lovelace", Email: "ada@example.com"}
}

func newTestRequestService(repo *requestRepoStub, students *requestStudentStub, notifier *decisionNotifierStub, metrics *decisionMetricsStub, appliers map[models.RequestType]RequestApplier) *RequestService {
	// Pass interface-typed nils so the service's nil checks see nil rather
	// than a non-nil interface wrapping a nil stub pointer.
	var n decisionNotifier
	if notifier != nil {
		n = notifier
	}
	var m decisionMetrics
	if metrics != nil {
		m = metrics
	}
	return NewRequestService(repo, students, txRunnerStub{}, n, m, appliers, nil, nil)
}

func TestRequestServiceCreateResolvesStudentByEmail(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	svc := newTestRequestService(repo, students, nil, nil, nil)

	request, err := svc.Create(context.Background(), CreateRequestRequest{
		Type:         string(models.RequestTypeEnroll),
		StudentEmail: "ada@example.com",
		CourseCode:   "CS101",
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.NotNil(t, request.StudentID)
	require.Equal(t, "student-1", *request.StudentID)
	require.NotNil(t, request.CourseCode)
	require.Equal(t, "CS101", *request.CourseCode)
}

func TestRequestServiceCreateUnknownStudent(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{}}
	svc := newTestRequestService(repo, students, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequestRequest{
		Type:         string(models.RequestTypeBorrow),
		StudentEmail: "ghost@example.com",
		BookID:       "book-1",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrReferenceNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCreateRejectsNewUserType(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	svc := newTestRequestService(repo, students, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequestRequest{
		Type:      string(models.RequestTypeNewUser),
		StudentID: "student-1",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCreateMissingReference(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	svc := newTestRequestService(repo, students, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequestRequest{
		Type:      string(models.RequestTypeEnroll),
		StudentID: "student-1",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceFileRegistration(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestRequestService(repo, &requestStudentStub{}, nil, nil, nil)

	request, err := svc.FileRegistration(context.Background(), "user-9", "first semester")
	require.NoError(t, err)
	require.Equal(t, models.RequestTypeNewUser, request.Type)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.NotNil(t, request.SubjectUserID)
	require.Equal(t, "user-9", *request.SubjectUserID)
}

func TestRequestServiceDecideApprovesAndRunsApplier(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	notifier := &decisionNotifierStub{}
	metrics := &decisionMetricsStub{}

	studentID := "student-1"
	courseCode := "CS101"
	repo.requests["req-1"] = &models.Request{
		ID:         "req-1",
		Type:       models.RequestTypeEnroll,
		Status:     models.RequestStatusPending,
		StudentID:  &studentID,
		CourseCode: &courseCode,
	}

	applied := false
	appliers := map[models.RequestType]RequestApplier{
		models.RequestTypeEnroll: RequestApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
			applied = true
			return "You have been enrolled in Algorithms (CS101).", nil
		}),
	}
	svc := newTestRequestService(repo, students, notifier, metrics, appliers)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	decided, err := svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: string(models.DecisionApproved), AdminNote: "ok"}, actor)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.RequestStatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	require.Equal(t, "admin-1", *decided.DecidedBy)

	require.Len(t, notifier.calls, 1)
	require.Equal(t, "user-1", notifier.calls[0].UserID)
	require.Contains(t, notifier.calls[0].Message, "enrolled in Algorithms")
	require.Equal(t, 1, metrics.decided["ENROLL/APPROVED"])
}

func TestRequestServiceDecideNormalizesStatusCase(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}

	studentID := "student-1"
	courseCode := "CS101"
	repo.requests["req-1"] = &models.Request{
		ID:         "req-1",
		Type:       models.RequestTypeEnroll,
		Status:     models.RequestStatusPending,
		StudentID:  &studentID,
		CourseCode: &courseCode,
	}

	appliers := map[models.RequestType]RequestApplier{
		models.RequestTypeEnroll: RequestApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
			return "enrolled", nil
		}),
	}
	svc := newTestRequestService(repo, students, nil, nil, appliers)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	decided, err := svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: "approved"}, actor)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, decided.Status)
}

func TestRequestServiceDecideRejectSkipsApplier(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	notifier := &decisionNotifierStub{}

	studentID := "student-1"
	bookID := "book-1"
	repo.requests["req-1"] = &models.Request{
		ID:        "req-1",
		Type:      models.RequestTypeBorrow,
		Status:    models.RequestStatusPending,
		StudentID: &studentID,
		BookID:    &bookID,
	}

	appliers := map[models.RequestType]RequestApplier{
		models.RequestTypeBorrow: RequestApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
			t.Fatal("applier must not run for rejections")
			return "", nil
		}),
	}
	svc := newTestRequestService(repo, students, notifier, nil, appliers)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	decided, err := svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: string(models.DecisionRejected)}, actor)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, decided.Status)
	require.Len(t, notifier.calls, 1)
	require.Equal(t, "Request rejected", notifier.calls[0].Title)
}

func TestRequestServiceDecideTwiceConflicts(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}

	studentID := "student-1"
	repo.requests["req-1"] = &models.Request{
		ID:        "req-1",
		Type:      models.RequestTypeOther,
		Status:    models.RequestStatusPending,
		StudentID: &studentID,
	}
	svc := newTestRequestService(repo, students, nil, nil, nil)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: string(models.DecisionApproved)}, actor)
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: string(models.DecisionRejected)}, actor)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceDecideApplierFailureAborts(t *testing.T) {
	repo := newRequestRepoStub()
	students := &requestStudentStub{students: map[string]*models.Student{"student-1": testStudent()}}
	notifier := &decisionNotifierStub{}

	studentID := "student-1"
	bookID := "book-1"
	repo.requests["req-1"] = &models.Request{
		ID:        "req-1",
		Type:      models.RequestTypeBorrow,
		Status:    models.RequestStatusPending,
		StudentID: &studentID,
		BookID:    &bookID,
	}

	appliers := map[models.RequestType]RequestApplier{
		models.RequestTypeBorrow: RequestApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.Request) (string, error) {
			return "", appErrors.Clone(appErrors.ErrUnavailable, "no copies available")
		}),
	}
	svc := newTestRequestService(repo, students, notifier, nil, appliers)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.Decide(context.Background(), "req-1", DecideRequestRequest{Status: string(models.DecisionApproved)}, actor)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
	require.Empty(t, notifier.calls)
}

func TestRequestServiceDecideUnknownRequest(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestRequestService(repo, &requestStudentStub{}, nil, nil, nil)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.Decide(context.Background(), "missing", DecideRequestRequest{Status: string(models.DecisionApproved)}, actor)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
