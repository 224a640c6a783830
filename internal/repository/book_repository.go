package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/campus-portal-api/internal/models"
)

// BookRepository handles persistence of library books.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) ext(q sqlx.ExtContext) sqlx.ExtContext {
	if q == nil {
		return r.db
	}
	return q
}

const bookColumns = `id, isbn, title, author, total_copies, available_copies, created_at`

// List returns books filtered by the provided criteria.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR isbn ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.AvailableOnly {
		conditions = append(conditions, "available_copies > 0")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY title ASC LIMIT %d OFFSET %d`, bookColumns, clause, size, offset)
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM books" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindByID returns a book by its ID. Tx-aware for workflow use.
func (r *BookRepository) FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)
	var book models.Book
	if err := sqlx.GetContext(ctx, r.ext(q), &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// Create persists a new book record.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO books (id, isbn, title, author, total_copies, available_copies, created_at)
        VALUES (:id, :isbn, :title, :author, :total_copies, :available_copies, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// DecrementAvailable takes one copy, guarded so the count never drops
// below zero. Returns false when no copies are left.
func (r *BookRepository) DecrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE books SET available_copies = available_copies - 1 WHERE id = $1 AND available_copies > 0`
	res, err := r.ext(q).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("decrement available copies: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement available copies rows: %w", err)
	}
	return affected > 0, nil
}

// IncrementAvailable returns one copy, guarded so the count never
// exceeds total_copies. Returns false when the book is already full.
func (r *BookRepository) IncrementAvailable(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE books SET available_copies = available_copies + 1 WHERE id = $1 AND available_copies < total_copies`
	res, err := r.ext(q).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("increment available copies: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment available copies rows: %w", err)
	}
	return affected > 0, nil
}
