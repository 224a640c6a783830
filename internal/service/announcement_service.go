package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type announcementStore interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type announcementBroadcaster interface {
	Broadcast(ctx context.Context, audience models.AnnouncementAudience, title, message string, ntype models.NotificationType)
}

// CreateAnnouncementRequest is the admin payload for publishing an
// announcement.
type CreateAnnouncementRequest struct {
	Title     string     `json:"title" validate:"required"`
	Content   string     `json:"content" validate:"required"`
	Audience  string     `json:"audience"`
	Priority  string     `json:"priority"`
	Pinned    bool       `json:"pinned"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// UpdateAnnouncementRequest edits a published announcement.
type UpdateAnnouncementRequest struct {
	Title     string     `json:"title" validate:"required"`
	Content   string     `json:"content" validate:"required"`
	Audience  string     `json:"audience"`
	Priority  string     `json:"priority"`
	Pinned    bool       `json:"pinned"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AnnouncementService publishes announcements and fans each one out to
// its audience as notifications.
type AnnouncementService struct {
	repo        announcementStore
	broadcaster announcementBroadcaster
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementStore, broadcaster announcementBroadcaster, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, broadcaster: broadcaster, validator: validate, logger: logger}
}

// List returns announcements visible to the given audience.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	announcements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return announcements, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Create publishes an announcement and notifies its audience.
func (s *AnnouncementService) Create(ctx context.Context, req CreateAnnouncementRequest, createdBy string) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	audience, err := parseAudience(req.Audience)
	if err != nil {
		return nil, err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	announcement := &models.Announcement{
		Title:       req.Title,
		Content:     req.Content,
		Audience:    audience,
		Priority:    priority,
		Pinned:      req.Pinned,
		PublishedAt: time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
	}
	if createdBy != "" {
		announcement.CreatedBy = &createdBy
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, audience, announcement.Title, announcement.Content, models.NotificationInfo)
	}
	s.logger.Info("announcement published",
		zap.String("announcement_id", announcement.ID),
		zap.String("audience", string(audience)))
	return announcement, nil
}

// Update edits an announcement. Edits are not re-broadcast.
func (s *AnnouncementService) Update(ctx context.Context, id string, req UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	audience, err := parseAudience(req.Audience)
	if err != nil {
		return nil, err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = audience
	announcement.Priority = priority
	announcement.Pinned = req.Pinned
	announcement.ExpiresAt = req.ExpiresAt

	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

func parseAudience(raw string) (models.AnnouncementAudience, error) {
	switch models.AnnouncementAudience(raw) {
	case "":
		return models.AnnouncementAudienceAll, nil
	case models.AnnouncementAudienceAll, models.AnnouncementAudienceStudents, models.AnnouncementAudienceAdmins:
		return models.AnnouncementAudience(raw), nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "audience must be ALL, STUDENTS or ADMINS")
	}
}

func parsePriority(raw string) (models.AnnouncementPriority, error) {
	switch models.AnnouncementPriority(raw) {
	case "":
		return models.AnnouncementPriorityNormal, nil
	case models.AnnouncementPriorityLow, models.AnnouncementPriorityNormal, models.AnnouncementPriorityHigh:
		return models.AnnouncementPriority(raw), nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "priority must be LOW, NORMAL or HIGH")
	}
}
