package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiva/campus-portal-api/internal/middleware"
	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type requestServiceMock struct {
	createResp *models.Request
	createErr  error
	listResp   []models.Request
	getResp    *models.Request
	getErr     error
	decideResp *models.Request
	decideErr  error
	lastCreate service.CreateRequestRequest
	lastFilter models.RequestFilter
	lastActor  *models.JWTClaims
}

func (m *requestServiceMock) Create(ctx context.Context, req service.CreateRequestRequest) (*models.Request, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *requestServiceMock) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *requestServiceMock) Get(ctx context.Context, id string) (*models.Request, error) {
	return m.getResp, m.getErr
}

func (m *requestServiceMock) Decide(ctx context.Context, id string, req service.DecideRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	m.lastActor = actor
	return m.decideResp, m.decideErr
}

type studentLookupMock struct {
	student *models.Student
	err     error
}

func (m *studentLookupMock) GetByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.student, nil
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "ada@example.com", Role: models.RoleStudent}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}
}

func TestRequestHandlerCreateForcesStudentSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{createResp: &models.Request{ID: "req-1", Status: models.RequestStatusPending}}
	handler := NewRequestHandler(mockSvc, &studentLookupMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := bytes.NewBufferString(`{"type":"ENROLL","student_id":"someone-else","course_code":"CS101"}`)
	req, _ := http.NewRequest(http.MethodPost, "/requests", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, mockSvc.lastCreate.StudentID)
	assert.Equal(t, "ada@example.com", mockSvc.lastCreate.StudentEmail)
	assert.Equal(t, "CS101", mockSvc.lastCreate.CourseCode)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&requestServiceMock{}, &studentLookupMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{"type":"ENROLL"`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerListScopesStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{}
	lookup := &studentLookupMock{student: &models.Student{ID: "student-1"}}
	handler := NewRequestHandler(mockSvc, lookup)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/requests?student_id=someone-else&status=pending", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-1", mockSvc.lastFilter.StudentID)
	assert.Equal(t, models.RequestStatusPending, mockSvc.lastFilter.Status)
}

func TestRequestHandlerListAdminPassthrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{}
	handler := NewRequestHandler(mockSvc, &studentLookupMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/requests?student_id=student-7", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-7", mockSvc.lastFilter.StudentID)
}

func TestRequestHandlerGetHidesForeignRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	otherStudent := "student-2"
	mockSvc := &requestServiceMock{getResp: &models.Request{ID: "req-1", StudentID: &otherStudent}}
	lookup := &studentLookupMock{student: &models.Student{ID: "student-1"}}
	handler := NewRequestHandler(mockSvc, lookup)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/requests/req-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestHandlerDecideConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{decideErr: appErrors.Clone(appErrors.ErrConflict, "request already decided")}
	handler := NewRequestHandler(mockSvc, &studentLookupMock{err: sql.ErrNoRows})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/requests/req-1/status", bytes.NewBufferString(`{"status":"APPROVED"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Decide(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "admin-1", mockSvc.lastActor.UserID)
}

func TestRequestHandlerDecideUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&requestServiceMock{}, &studentLookupMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/requests/req-1/status", bytes.NewBufferString(`{"status":"APPROVED"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Decide(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
