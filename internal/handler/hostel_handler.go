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

type hostelService interface {
	List(ctx context.Context) ([]models.Hostel, error)
	Create(ctx context.Context, req service.CreateHostelRequest) (*models.Hostel, error)
	Rooms(ctx context.Context, hostelID string) ([]models.Room, error)
	AddRoom(ctx context.Context, hostelID string, req service.CreateRoomRequest) (*models.Room, error)
}

// HostelHandler exposes hostel and room endpoints.
type HostelHandler struct {
	service hostelService
}

// NewHostelHandler constructs the handler.
func NewHostelHandler(service hostelService) *HostelHandler {
	return &HostelHandler{service: service}
}

// List godoc
// @Summary List hostels
// @Tags Hostels
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /hostels [get]
func (h *HostelHandler) List(c *gin.Context) {
	hostels, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hostels, nil)
}

// Create godoc
// @Summary Add a hostel (admin)
// @Tags Hostels
// @Accept json
// @Produce json
// @Param payload body service.CreateHostelRequest true "Hostel payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /hostels [post]
func (h *HostelHandler) Create(c *gin.Context) {
	var req service.CreateHostelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid hostel payload"))
		return
	}
	hostel, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, hostel, nil)
}

// Rooms godoc
// @Summary List rooms of a hostel
// @Tags Hostels
// @Produce json
// @Param id path string true "Hostel ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /hostels/{id}/rooms [get]
func (h *HostelHandler) Rooms(c *gin.Context) {
	rooms, err := h.service.Rooms(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// AddRoom godoc
// @Summary Add a room to a hostel (admin)
// @Tags Hostels
// @Accept json
// @Produce json
// @Param id path string true "Hostel ID"
// @Param payload body service.CreateRoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /hostels/{id}/rooms [post]
func (h *HostelHandler) AddRoom(c *gin.Context) {
	var req service.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid room payload"))
		return
	}
	room, err := h.service.AddRoom(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, room, nil)
}
