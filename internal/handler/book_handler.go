package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/service"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/response"
)

type bookService interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Book, error)
	Create(ctx context.Context, req service.CreateBookRequest) (*models.Book, error)
}

// BookHandler exposes the library catalog.
type BookHandler struct {
	service bookService
}

// NewBookHandler constructs the handler.
func NewBookHandler(service bookService) *BookHandler {
	return &BookHandler{service: service}
}

// List godoc
// @Summary List books
// @Tags Library
// @Produce json
// @Param search query string false "Search by title, author or ISBN"
// @Param available query bool false "Only books with available copies"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	availableOnly, _ := strconv.ParseBool(c.DefaultQuery("available", "false"))
	filter := models.BookFilter{
		Search:        c.Query("search"),
		AvailableOnly: availableOnly,
		Page:          page,
		PageSize:      size,
	}
	books, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// Get godoc
// @Summary Get a book
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Create godoc
// @Summary Add a book (admin)
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid book payload"))
		return
	}
	book, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, book, nil)
}
