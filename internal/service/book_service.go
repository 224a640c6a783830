package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/pkg/database"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type bookStore interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
}

// CreateBookRequest is the admin payload for adding a book.
type CreateBookRequest struct {
	ISBN        string `json:"isbn" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	TotalCopies int    `json:"total_copies" validate:"required,min=1"`
}

// BookService manages the library catalog.
type BookService struct {
	repo      bookStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookService constructs the service.
func NewBookService(repo bookStore, validate *validator.Validate, logger *zap.Logger) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{repo: repo, validator: validate, logger: logger}
}

// List returns books with pagination metadata.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return books, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a book by id.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// Create adds a book; all copies start available.
func (s *BookService) Create(ctx context.Context, req CreateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book := &models.Book{
		ISBN:            req.ISBN,
		Title:           req.Title,
		Author:          req.Author,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a book with this ISBN already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	s.logger.Info("book created", zap.String("book_id", book.ID), zap.String("isbn", book.ISBN))
	return book, nil
}
