package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiva/campus-portal-api/internal/middleware"
	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type appointmentServiceMock struct {
	bookResp   *models.Appointment
	bookErr    error
	slotsResp  []models.Slot
	queueResp  []models.QueueEntry
	cancelErr  error
	lastBook   service.BookAppointmentRequest
	lastActor  *models.JWTClaims
	lastFilter models.AppointmentFilter
}

func (m *appointmentServiceMock) Book(ctx context.Context, req service.BookAppointmentRequest) (*models.Appointment, error) {
	m.lastBook = req
	return m.bookResp, m.bookErr
}

func (m *appointmentServiceMock) AvailableSlots(ctx context.Context, serviceID string, date time.Time) ([]models.Slot, error) {
	return m.slotsResp, nil
}

func (m *appointmentServiceMock) Get(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	return &models.AppointmentDetail{}, nil
}

func (m *appointmentServiceMock) List(ctx context.Context, filter models.AppointmentFilter, actor *models.JWTClaims) ([]models.AppointmentDetail, *models.Pagination, error) {
	m.lastFilter = filter
	m.lastActor = actor
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *appointmentServiceMock) UpdateStatus(ctx context.Context, id string, req service.UpdateAppointmentStatusRequest) (*models.Appointment, error) {
	return &models.Appointment{ID: id, Status: models.AppointmentStatus(req.Status)}, nil
}

func (m *appointmentServiceMock) Cancel(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.lastActor = actor
	return m.cancelErr
}

func (m *appointmentServiceMock) QueueToday(ctx context.Context) ([]models.QueueEntry, error) {
	return m.queueResp, nil
}

func (m *appointmentServiceMock) History(ctx context.Context, id string) ([]models.AppointmentEvent, error) {
	return nil, nil
}

func TestAppointmentHandlerBookForcesStudentSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{bookResp: &models.Appointment{ID: "apt-1", Token: "APT20260910001"}}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := bytes.NewBufferString(`{"service_id":"svc-1","date":"2026-09-10","time":"09:30","student_id":"someone-else"}`)
	req, _ := http.NewRequest(http.MethodPost, "/appointments", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Book(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, mockSvc.lastBook.StudentID)
	assert.Equal(t, "ada@example.com", mockSvc.lastBook.StudentEmail)
}

func TestAppointmentHandlerBookSlotConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{bookErr: appErrors.Clone(appErrors.ErrConflict, "slot is already booked")}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := bytes.NewBufferString(`{"service_id":"svc-1","date":"2026-09-10","time":"09:30"}`)
	req, _ := http.NewRequest(http.MethodPost, "/appointments", body)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Book(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAppointmentHandlerSlotsRequiresParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAppointmentHandler(&appointmentServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments/available-slots?date=2026-09-10", nil)
	c.Request = req

	handler.Slots(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	req, _ = http.NewRequest(http.MethodGet, "/appointments/available-slots?service_id=svc-1&date=tomorrow", nil)
	c.Request = req

	handler.Slots(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppointmentHandlerListIgnoresStudentFilterForStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments?student_id=student-7&status=pending", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.lastFilter.StudentID)
	assert.Equal(t, models.AppointmentStatusPending, mockSvc.lastFilter.Status)
	assert.Equal(t, models.RoleStudent, mockSvc.lastActor.Role)
}

func TestAppointmentHandlerCancelNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/appointments/apt-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "apt-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Cancel(c)
	// gin's engine flushes deferred status headers after the handler; the
	// bare test context does not, so flush before reading the recorder.
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", mockSvc.lastActor.UserID)
}

func TestAppointmentHandlerCancelForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{cancelErr: appErrors.Clone(appErrors.ErrForbidden, "appointment belongs to another student")}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/appointments/apt-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "apt-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Cancel(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAppointmentHandlerQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{queueResp: []models.QueueEntry{
		{AppointmentDetail: models.AppointmentDetail{Appointment: models.Appointment{ID: "apt-1"}}, QueuePosition: 1},
	}}
	handler := NewAppointmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments/queue/today", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue_position")
}
