package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/response"
)

type borrowingService interface {
	List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, *models.Pagination, error)
	SweepOverdue(ctx context.Context) (int64, error)
}

type borrowingStudentLookup interface {
	GetByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// BorrowingHandler exposes the borrowing ledger.
type BorrowingHandler struct {
	service  borrowingService
	students borrowingStudentLookup
}

// NewBorrowingHandler constructs the handler.
func NewBorrowingHandler(service borrowingService, students borrowingStudentLookup) *BorrowingHandler {
	return &BorrowingHandler{service: service, students: students}
}

// List godoc
// @Summary List borrowings
// @Tags Library
// @Produce json
// @Param status query string false "Borrowing status"
// @Param student_id query string false "Student ID (admin only)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /borrowings [get]
func (h *BorrowingHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, size := pageParams(c)
	filter := models.BorrowingFilter{
		Status:   models.BorrowingStatus(strings.ToUpper(c.Query("status"))),
		Page:     page,
		PageSize: size,
	}
	if claims.Role == models.RoleAdmin {
		filter.StudentID = c.Query("student_id")
	} else {
		student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.JSON(c, http.StatusOK, []models.BorrowingDetail{}, &models.Pagination{Page: page, PageSize: size})
			return
		}
		filter.StudentID = student.ID
	}

	borrowings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowings, pagination)
}

// SweepOverdue godoc
// @Summary Flag overdue borrowings and accrue fines (admin)
// @Tags Library
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /borrowings/sweep-overdue [post]
func (h *BorrowingHandler) SweepOverdue(c *gin.Context) {
	affected, err := h.service.SweepOverdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": affected}, nil)
}
