package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/response"
)

type campusServiceCatalog interface {
	List(ctx context.Context, activeOnly bool) ([]models.CampusService, error)
	Get(ctx context.Context, id string) (*models.CampusService, error)
	Create(ctx context.Context, req service.CreateCampusServiceRequest) (*models.CampusService, error)
}

// CampusServiceHandler exposes the catalog of bookable services.
type CampusServiceHandler struct {
	service campusServiceCatalog
}

// NewCampusServiceHandler constructs the handler.
func NewCampusServiceHandler(service campusServiceCatalog) *CampusServiceHandler {
	return &CampusServiceHandler{service: service}
}

// List godoc
// @Summary List campus services
// @Tags Services
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /services [get]
func (h *CampusServiceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	activeOnly := claims == nil || claims.Role != models.RoleAdmin
	services, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, services, nil)
}

// Get godoc
// @Summary Get a campus service
// @Tags Services
// @Produce json
// @Param id path string true "Service ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /services/{id} [get]
func (h *CampusServiceHandler) Get(c *gin.Context) {
	svc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc, nil)
}

// Create godoc
// @Summary Add a campus service (admin)
// @Tags Services
// @Accept json
// @Produce json
// @Param payload body service.CreateCampusServiceRequest true "Service payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /services [post]
func (h *CampusServiceHandler) Create(c *gin.Context) {
	var req service.CreateCampusServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid service payload"))
		return
	}
	svc, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, svc, nil)
}
