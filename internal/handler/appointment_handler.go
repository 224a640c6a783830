package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/response"
)

type appointmentService interface {
	Book(ctx context.Context, req service.BookAppointmentRequest) (*models.Appointment, error)
	AvailableSlots(ctx context.Context, serviceID string, date time.Time) ([]models.Slot, error)
	Get(ctx context.Context, id string) (*models.AppointmentDetail, error)
	List(ctx context.Context, filter models.AppointmentFilter, actor *models.JWTClaims) ([]models.AppointmentDetail, *models.Pagination, error)
	UpdateStatus(ctx context.Context, id string, req service.UpdateAppointmentStatusRequest) (*models.Appointment, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) error
	QueueToday(ctx context.Context) ([]models.QueueEntry, error)
	History(ctx context.Context, id string) ([]models.AppointmentEvent, error)
}

// AppointmentHandler exposes booking and queue endpoints.
type AppointmentHandler struct {
	service appointmentService
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(service appointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// Book godoc
// @Summary Book an appointment slot
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.BookAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	var req service.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid booking payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// Students always book for themselves.
	if claims.Role == models.RoleStudent {
		req.StudentID = ""
		req.StudentEmail = claims.Email
	}
	appointment, err := h.service.Book(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, appointment, nil)
}

// Slots godoc
// @Summary List available slots for a service on a date
// @Tags Appointments
// @Produce json
// @Param service_id query string true "Service ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/available-slots [get]
func (h *AppointmentHandler) Slots(c *gin.Context) {
	serviceID := c.Query("service_id")
	if serviceID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "service_id is required"))
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD"))
		return
	}
	slots, err := h.service.AvailableSlots(c.Request.Context(), serviceID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param status query string false "Status"
// @Param service_id query string false "Service ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, size := pageParams(c)
	filter := models.AppointmentFilter{
		ServiceID: c.Query("service_id"),
		Status:    models.AppointmentStatus(strings.ToUpper(c.Query("status"))),
		Page:      page,
		PageSize:  size,
	}
	if claims.Role == models.RoleAdmin {
		filter.StudentID = c.Query("student_id")
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}

	appointments, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, pagination)
}

// Get godoc
// @Summary Get appointment detail
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// UpdateStatus godoc
// @Summary Transition an appointment (admin)
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UpdateAppointmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id}/status [patch]
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateAppointmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	appointment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /appointments/{id}/cancel [patch]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Queue godoc
// @Summary Today's appointment queue
// @Tags Appointments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/queue/today [get]
func (h *AppointmentHandler) Queue(c *gin.Context) {
	entries, err := h.service.QueueToday(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// History godoc
// @Summary Appointment audit trail
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id}/history [get]
func (h *AppointmentHandler) History(c *gin.Context) {
	events, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
