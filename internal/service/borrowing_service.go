package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type borrowingLister interface {
	List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, int, error)
	SweepOverdue(ctx context.Context, finePerDay float64, now time.Time) (int64, error)
}

// BorrowingService exposes the borrowing ledger and the overdue sweep.
// Borrowings themselves are opened and closed by request approvals.
type BorrowingService struct {
	repo       borrowingLister
	finePerDay float64
	logger     *zap.Logger
}

// NewBorrowingService constructs the service.
func NewBorrowingService(repo borrowingLister, finePerDay float64, logger *zap.Logger) *BorrowingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BorrowingService{repo: repo, finePerDay: finePerDay, logger: logger}
}

// List returns borrowings with pagination metadata.
func (s *BorrowingService) List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, *models.Pagination, error) {
	borrowings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrowings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return borrowings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// SweepOverdue flags open borrowings past their due date and accrues
// fines. Exposed as an admin maintenance operation.
func (s *BorrowingService) SweepOverdue(ctx context.Context) (int64, error) {
	affected, err := s.repo.SweepOverdue(ctx, s.finePerDay, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep overdue borrowings")
	}
	if affected > 0 {
		s.logger.Info("overdue borrowings swept", zap.Int64("count", affected))
	}
	return affected, nil
}
