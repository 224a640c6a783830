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

// BorrowingRepository handles persistence of borrowings.
type BorrowingRepository struct {
	db *sqlx.DB
}

// NewBorrowingRepository constructs the repository.
func NewBorrowingRepository(db *sqlx.DB) *BorrowingRepository {
	return &BorrowingRepository{db: db}
}

func (r *BorrowingRepository) ext(q sqlx.ExtContext) sqlx.ExtContext {
	if q == nil {
		return r.db
	}
	return q
}

// List returns borrowings filtered by the provided criteria.
func (r *BorrowingRepository) List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, int, error) {
	base := `FROM borrowings br
LEFT JOIN students s ON s.id = br.student_id
LEFT JOIN books b ON b.id = br.book_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("br.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("br.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("br.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf(`SELECT br.id, br.student_id, br.book_id, br.borrowed_at, br.due_at, br.returned_at, br.status, br.fine,
        s.full_name AS student_name, b.title AS book_title
        %s ORDER BY br.borrowed_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var borrowings []models.BorrowingDetail
	if err := r.db.SelectContext(ctx, &borrowings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}
	return borrowings, total, nil
}

// FindByID returns a borrowing by its ID. Tx-aware for workflow use.
func (r *BorrowingRepository) FindByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Borrowing, error) {
	const query = `SELECT id, student_id, book_id, borrowed_at, due_at, returned_at, status, fine FROM borrowings WHERE id = $1`
	var borrowing models.Borrowing
	if err := sqlx.GetContext(ctx, r.ext(q), &borrowing, query, id); err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// Create persists a new borrowing record.
func (r *BorrowingRepository) Create(ctx context.Context, q sqlx.ExtContext, borrowing *models.Borrowing) error {
	if borrowing.ID == "" {
		borrowing.ID = uuid.NewString()
	}
	if borrowing.BorrowedAt.IsZero() {
		borrowing.BorrowedAt = time.Now().UTC()
	}
	if borrowing.Status == "" {
		borrowing.Status = models.BorrowingStatusBorrowed
	}
	const query = `INSERT INTO borrowings (id, student_id, book_id, borrowed_at, due_at, returned_at, status, fine)
        VALUES (:id, :student_id, :book_id, :borrowed_at, :due_at, :returned_at, :status, :fine)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(q), query, borrowing); err != nil {
		return fmt.Errorf("create borrowing: %w", err)
	}
	return nil
}

// MarkReturned closes a borrowing, recording the return time and any
// accrued fine. Guarded on returned_at IS NULL so a second return of
// the same borrowing affects zero rows.
func (r *BorrowingRepository) MarkReturned(ctx context.Context, q sqlx.ExtContext, id string, returnedAt time.Time, fine float64) (bool, error) {
	const query = `UPDATE borrowings SET returned_at = $2, status = $3, fine = $4 WHERE id = $1 AND returned_at IS NULL`
	res, err := r.ext(q).ExecContext(ctx, query, id, returnedAt, models.BorrowingStatusReturned, fine)
	if err != nil {
		return false, fmt.Errorf("mark borrowing returned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark borrowing returned rows: %w", err)
	}
	return affected > 0, nil
}

// SweepOverdue flags open borrowings past their due date and accrues
// fines at the given daily rate. Returns the number of rows touched.
func (r *BorrowingRepository) SweepOverdue(ctx context.Context, finePerDay float64, now time.Time) (int64, error) {
	const query = `UPDATE borrowings
        SET status = $1,
            fine = CEIL(EXTRACT(EPOCH FROM ($2::timestamptz - due_at)) / 86400) * $3
        WHERE status = $4 AND due_at < $2`
	res, err := r.db.ExecContext(ctx, query, models.BorrowingStatusOverdue, now, finePerDay, models.BorrowingStatusBorrowed)
	if err != nil {
		return 0, fmt.Errorf("sweep overdue borrowings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep overdue rows: %w", err)
	}
	return affected, nil
}
