package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, req service.CreateRequestRequest) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Request, error)
	Decide(ctx context.Context, id string, req service.DecideRequestRequest, actor *models.JWTClaims) (*models.Request, error)
}

type requestStudentLookup interface {
	GetByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// RequestHandler exposes the request workflow endpoints.
type RequestHandler struct {
	service  requestService
	students requestStudentLookup
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService, students requestStudentLookup) *RequestHandler {
	return &RequestHandler{service: service, students: students}
}

// Create godoc
// @Summary File a new request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// Students always file for themselves.
	if claims.Role == models.RoleStudent {
		req.StudentID = ""
		req.StudentEmail = claims.Email
	}
	request, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List requests
// @Tags Requests
// @Produce json
// @Param status query string false "Request status"
// @Param type query string false "Request type"
// @Param student_id query string false "Student ID (admin only)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, size := pageParams(c)
	filter := models.RequestFilter{
		Status:    models.RequestStatus(strings.ToUpper(c.Query("status"))),
		Type:      models.RequestType(strings.ToUpper(c.Query("type"))),
		StudentID: c.Query("student_id"),
		Page:      page,
		PageSize:  size,
	}

	if claims.Role == models.RoleStudent {
		student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.JSON(c, http.StatusOK, []models.Request{}, &models.Pagination{Page: page, PageSize: size})
			return
		}
		filter.StudentID = student.ID
	}

	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleStudent {
		student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil || request.StudentID == nil || *request.StudentID != student.ID {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "request not found"))
			return
		}
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Approve or reject a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.DecideRequestRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{id}/status [put]
func (h *RequestHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DecideRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	request, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
